package cmd

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/academe-ai/academe/internal/ui"
)

func newStatsCmd() *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show study statistics",
		Long: `Shows feedback aggregates for your answers and the documents most
often cited in downrated answers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			userID := currentUser()
			stats, err := a.orchestrator.Stats(cmd.Context(), userID, time.Now().Add(-since))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			renderer := ui.NewStatusRenderer(out, !ui.UseColor(out, noColor))
			if jsonOut {
				return renderer.RenderStatsJSON(stats, nil)
			}
			return renderer.RenderStats(userID, stats, nil)
		},
	}

	cmd.Flags().DurationVar(&since, "since", 720*time.Hour, "Feedback window")
	return cmd
}
