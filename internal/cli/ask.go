package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	appsvc "docqa/internal/app"
	"docqa/internal/bootstrap"
)

func newAskCommand(o *options) *cobra.Command {
	var (
		topK        int
		output      string
		showContext bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question from the indexed documents",
		Long: `Syncs the index with the documents directory, retrieves the passages
closest to the question and asks the configured LLM to answer from them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			a, err := o.open(cmd.Context(), bootstrap.Options{Answer: true})
			if err != nil {
				return err
			}
			defer closeApp(a)

			if _, err := a.RAG.Sync(cmd.Context()); err != nil {
				return fmt.Errorf("sync index failed: %w", err)
			}
			result, err := a.RAG.Ask(cmd.Context(), appsvc.AskInput{
				Question: strings.Join(args, " "),
				TopK:     topK,
			})
			if err != nil {
				return fmt.Errorf("ask failed: %w", err)
			}

			return render(cmd.OutOrStdout(), output, result, func(w io.Writer) {
				writeAnswer(w, result.Answer, result.Citations)
				if !showContext {
					return
				}
				fmt.Fprintln(w)
				fmt.Fprintln(w, "Context:")
				for i, sc := range result.Context {
					fmt.Fprintf(w, "  [%d] %s (score %.3f)\n", i+1, sc.Chunk.Citation(), sc.Score)
				}
			})
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", appsvc.DefaultTopK, "number of passages to retrieve")
	cmd.Flags().StringVarP(&output, "output", "o", formatText, "output format: text, json or yaml")
	cmd.Flags().BoolVar(&showContext, "show-context", false, "list the retrieved passages")
	return cmd
}
