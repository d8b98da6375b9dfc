package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	appsvc "docqa/internal/app"
	"docqa/internal/bootstrap"
	"docqa/internal/vectorindex"
)

func newIndexCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build and inspect the vector index",
	}
	cmd.AddCommand(newIndexBuildCommand(o), newIndexSyncCommand(o), newIndexStatsCommand(o))
	return cmd
}

func newIndexBuildCommand(o *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Re-index every document and replace the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			a, err := o.open(cmd.Context(), bootstrap.Options{})
			if err != nil {
				return err
			}
			defer closeApp(a)

			report, err := a.RAG.Rebuild(cmd.Context())
			if err != nil {
				return fmt.Errorf("rebuild index failed: %w", err)
			}
			return render(cmd.OutOrStdout(), output, report, func(w io.Writer) { writeReport(w, report) })
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", formatText, "output format: text, json or yaml")
	return cmd
}

func newIndexSyncCommand(o *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Index new documents and rebuild if any indexed document changed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			a, err := o.open(cmd.Context(), bootstrap.Options{})
			if err != nil {
				return err
			}
			defer closeApp(a)

			report, err := a.RAG.Sync(cmd.Context())
			if err != nil {
				return fmt.Errorf("sync index failed: %w", err)
			}
			return render(cmd.OutOrStdout(), output, report, func(w io.Writer) { writeReport(w, report) })
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", formatText, "output format: text, json or yaml")
	return cmd
}

func newIndexStatsCommand(o *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the persisted index without touching documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			cfg, err := o.loadConfig()
			if err != nil {
				return fmt.Errorf("load config failed: %w", err)
			}
			idx, err := vectorindex.Load(cfg.Index.Dir, vectorindex.LoadOptions{})
			if err != nil {
				return fmt.Errorf("load index failed: %w", err)
			}
			stats := idx.Stats()
			return render(cmd.OutOrStdout(), output, stats, func(w io.Writer) { writeStats(w, stats) })
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", formatText, "output format: text, json or yaml")
	return cmd
}

func writeReport(w io.Writer, r *appsvc.BuildReport) {
	fmt.Fprintf(w, "%s: %d files, %d new chunks, %d chunks total (%s)\n",
		r.Mode, r.Files, r.Chunks, r.Total, r.Elapsed.Round(time.Millisecond))
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  skipped %s\n", f)
	}
}

func writeStats(w io.Writer, s vectorindex.Stats) {
	fmt.Fprintf(w, "index:      %s (generation %d)\n", s.Dir, s.Generation)
	fmt.Fprintf(w, "chunks:     %d\n", s.Count)
	fmt.Fprintf(w, "dimension:  %d (%s)\n", s.Dimension, s.Metric)
	fmt.Fprintf(w, "embeddings: %s\n", s.EmbeddingModel)
	fmt.Fprintf(w, "created:    %s\n", s.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "sources:    %d\n", len(s.Sources))
	for _, src := range s.Sources {
		fmt.Fprintf(w, "  %s (%d bytes)\n", src.Name, src.Size)
	}
}
