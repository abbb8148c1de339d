package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chaicode/docsqa-go/internal/logging"
)

// NewAskCmd constructs the `docsqa ask` command, which answers a single
// question from the terminal without starting the HTTP server.
func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the Chai aur Code documentation",
		Long: `Ask a single natural language question against the documentation corpus.

The question goes through the same relevance gate, retrieval, and synthesis
steps as the HTTP API. Off-topic questions get a fixed rejection message.

Examples:
  docsqa ask "how do I create a branch in git?"
  docsqa ask "what are semantic HTML tags?"
  docsqa ask "how does Django handle migrations?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			qa, _, closeStore, err := buildPipeline(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer closeStore()

			question := strings.Join(args, " ")
			answer, err := qa.Answer(ctx, question)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, answer.Answer)
			if len(answer.RelevantLinks) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Sources:")
				for _, link := range answer.RelevantLinks {
					fmt.Fprintf(out, "  %s\n", link)
				}
			}

			return nil
		},
	}

	return cmd
}
