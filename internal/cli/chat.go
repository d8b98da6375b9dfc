package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docqa/internal/ai"
	appsvc "docqa/internal/app"
	"docqa/internal/bootstrap"
)

func newChatCommand(o *options) *cobra.Command {
	var (
		sessionID string
		topK      int
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Multi-turn question answering on stdin",
		Long: `Reads one question per line and answers each from the indexed documents.
Turns are kept in the configured chat store, so --session resumes an earlier
conversation. Type /clear to forget the conversation and /exit to quit.`,
		Args: cobra.NoArgs,
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
			sess, err := a.Chat.Open(ctx, sessionID, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "session %s", sess.ID)
			if n := sess.Len(); n > 0 {
				fmt.Fprintf(out, " (%d earlier turns)", n)
			}
			fmt.Fprintln(out)

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					fmt.Fprintln(out)
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "":
					continue
				case "/exit", "/quit":
					return nil
				case "/clear":
					if err := a.Chat.Clear(ctx, sess); err != nil {
						return err
					}
					fmt.Fprintln(out, "conversation cleared")
					continue
				}

				result, err := a.Chat.Ask(ctx, sess, appsvc.SendInput{Question: line, TopK: topK})
				if err != nil {
					if isRecoverable(err) {
						fmt.Fprintf(out, "error: %v\n", err)
						continue
					}
					return err
				}
				reply := result.Turns[len(result.Turns)-1]
				writeAnswer(out, reply.Content, reply.Citations)
			}
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id to resume (default: new session)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", appsvc.DefaultTopK, "number of passages to retrieve")
	return cmd
}

// isRecoverable reports whether the chat loop can keep going after err.
func isRecoverable(err error) bool {
	return errors.Is(err, appsvc.ErrEmptyQuestion) ||
		errors.Is(err, appsvc.ErrIndexNotReady) ||
		errors.Is(err, appsvc.ErrEmbeddingFailed) ||
		errors.Is(err, ai.ErrBackendCallFailed) ||
		errors.Is(err, ai.ErrBackendUnconfigured)
}
