package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newSummarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <document-id>",
		Short: "Summarize a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			summary, err := a.orchestrator.Summarize(cmd.Context(), currentUser(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]string{
					"document_id": args[0],
					"summary":     summary,
				})
			}
			fmt.Fprintln(out, summary)
			return nil
		},
	}
}
