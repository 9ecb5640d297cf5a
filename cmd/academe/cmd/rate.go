package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/academe-ai/academe/internal/answer"
)

func newRateCmd() *cobra.Command {
	var down bool
	var comment string
	var docIDs []string

	cmd := &cobra.Command{
		Use:   "rate <question>",
		Short: "Rate the answer to a question",
		Long: `Records feedback on an answer. Negative feedback demotes the cited
documents in future retrieval for your questions.

Examples:
  academe rate "what is a B-tree"
  academe rate --down --doc doc1a2b3c "explain paging" --comment "cited the wrong chapter"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			rating := 1
			if down {
				rating = -1
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			citations := make([]answer.Citation, 0, len(docIDs))
			for _, id := range docIDs {
				citations = append(citations, answer.Citation{DocumentID: id})
			}

			if err := a.orchestrator.Rate(cmd.Context(), currentUser(), question, rating, comment, citations); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Feedback recorded")
			return nil
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "Rate the answer as unhelpful (default: helpful)")
	cmd.Flags().StringVar(&comment, "comment", "", "Optional comment")
	cmd.Flags().StringSliceVar(&docIDs, "doc", nil, "Document IDs cited by the rated answer")
	return cmd
}
