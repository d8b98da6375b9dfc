package cli

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"docqa/internal/bootstrap"
	"docqa/internal/watcher"
)

func newWatchCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the index in sync with the documents directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.open(cmd.Context(), bootstrap.Options{})
			if err != nil {
				return err
			}
			defer closeApp(a)

			if err := a.Warmup(cmd.Context()); err != nil {
				return err
			}
			return newWatcher(a).Run(cmd.Context())
		},
	}
}

func newWatcher(a *bootstrap.App) *watcher.Watcher {
	return watcher.New(a.Config.Documents.Dir, a.Loader.Match, func(ctx context.Context) error {
		report, err := a.RAG.Sync(ctx)
		if err != nil {
			return err
		}
		log.Printf("watcher: index %s, %d new chunks, %d total", report.Mode, report.Chunks, report.Total)
		return nil
	}, watcher.DefaultDebounce)
}
