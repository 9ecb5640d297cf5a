package cmd

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/academe-ai/academe/internal/answer"
	"github.com/academe-ai/academe/internal/ui"
)

func newAskCmd() *cobra.Command {
	var verbose bool
	var noCache bool
	var hint string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about your study material",
		Long: `Answers a question from your uploaded documents. The answer carries
numbered citations back to the source passages.

Examples:
  academe ask "what is a B-tree"
  academe ask --verbose "compare paging and segmentation"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			var opts []answer.AskOption
			if hint != "" {
				opts = append(opts, answer.WithConversationHint(hint))
			}
			if noCache {
				opts = append(opts, answer.WithoutCache())
			}
			ans, err := a.orchestrator.Ask(cmd.Context(), currentUser(), question, opts...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			renderer := ui.NewAnswerRenderer(out, !ui.UseColor(out, noColor), verbose)
			if jsonOut {
				return renderer.RenderJSON(ans)
			}
			return renderer.Render(ans)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show answer diagnostics")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the response cache")
	cmd.Flags().StringVar(&hint, "hint", "", "Recent conversation context for resolving follow-up questions")
	return cmd
}
