package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"docqa/internal/bootstrap"
	"docqa/internal/config"
)

type appFactory func(ctx context.Context, cfg *config.Config, opts bootstrap.Options) (*bootstrap.App, error)

type options struct {
	configPath string
	verbose    bool
	newApp     appFactory
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(bootstrap.New)
}

func newRootCommand(newApp appFactory) *cobra.Command {
	o := &options{newApp: newApp}
	root := &cobra.Command{
		Use:   "docqa",
		Short: "Ask questions about a folder of PDF documents",
		Long: `docqa indexes the PDFs in a documents directory into a local vector index
and answers questions with an LLM, citing the file and page of every passage
it used.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			log.SetOutput(cmd.ErrOrStderr())
			if o.verbose {
				log.SetFlags(log.LstdFlags | log.Lshortfile)
			}
		},
	}
	root.PersistentFlags().StringVarP(&o.configPath, "config", "c", "", "config file (default $CONFIG_FILE or configs/config.toml)")
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "verbose logging")

	root.AddCommand(
		newIndexCommand(o),
		newAskCommand(o),
		newChatCommand(o),
		newWatchCommand(o),
		newServeCommand(o),
		newTokenCommand(o),
	)
	return root
}

func (o *options) loadConfig() (*config.Config, error) {
	if o.configPath == "" {
		return config.Load()
	}
	return config.LoadFile(o.configPath)
}

func (o *options) open(ctx context.Context, opts bootstrap.Options) (*bootstrap.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	opts.Verbose = o.verbose
	return o.newApp(ctx, cfg, opts)
}

func closeApp(a *bootstrap.App) {
	if err := a.Close(); err != nil {
		log.Printf("close resources failed: %v", err)
	}
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
