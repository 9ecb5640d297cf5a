package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/academe-ai/academe/internal/ui"
)

func newDocsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "docs",
		Short: "List your documents",
		Args:  cobra.NoArgs,
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
			docs, err := a.store.ListDocuments(cmd.Context(), userID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			renderer := ui.NewStatusRenderer(out, !ui.UseColor(out, noColor))
			if jsonOut {
				return renderer.RenderDocumentsJSON(docs)
			}
			return renderer.RenderDocuments(userID, docs)
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <document-id>",
		Short: "Show one document's ingestion status",
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

			doc, err := a.ingest.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", doc.Title, doc.ID)
			fmt.Fprintf(out, "  Status: %s\n", doc.Status)
			fmt.Fprintf(out, "  Type:   %s\n", doc.DocType)
			fmt.Fprintf(out, "  Chunks: %d\n", doc.ChunkCount)
			fmt.Fprintf(out, "  Size:   %s\n", ui.FormatBytes(doc.SizeBytes))
			if doc.FailureReason != "" {
				fmt.Fprintf(out, "  Error:  %s\n", doc.FailureReason)
			}
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document and everything derived from it",
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

			if err := a.ingest.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}
