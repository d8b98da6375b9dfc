package cli

import (
	"log"

	"github.com/spf13/cobra"

	"docqa/internal/bootstrap"
	httptransport "docqa/internal/transport/http"
)

func newServeCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := o.open(ctx, bootstrap.Options{Chat: true})
			if err != nil {
				return err
			}
			defer closeApp(a)

			if err := a.Warmup(ctx); err != nil {
				return err
			}
			if a.Config.Documents.Watch {
				w := newWatcher(a)
				go func() {
					if err := w.Run(ctx); err != nil {
						log.Printf("watcher stopped: %v", err)
					}
				}()
			}
			return httptransport.Serve(ctx, a)
		},
	}
}
