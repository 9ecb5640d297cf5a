package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/academe-ai/academe/internal/store"
)

func newIngestCmd() *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Upload study material",
		Long: `Uploads one or more plain-text files. The document type (textbook,
paper, notes, code) is detected automatically and drives the chunking
strategy. The command waits until ingestion finishes.

Examples:
  academe ingest chapter3.md
  academe ingest --title "OS Lecture 5" notes.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if title != "" && len(args) > 1 {
				return fmt.Errorf("--title applies to a single file")
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

			ingestCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			a.ingest.Start(ingestCtx)

			userID := currentUser()
			out := cmd.OutOrStdout()

			var docIDs []string
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}

				docTitle := title
				if docTitle == "" {
					docTitle = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				}

				docID, err := a.ingest.Upload(cmd.Context(), userID, docTitle, path, string(data))
				if err != nil {
					return err
				}
				docIDs = append(docIDs, docID)
				fmt.Fprintf(out, "Queued %s (%s)\n", docTitle, docID)
			}

			// Stop drains the queue, so every upload has finished when it
			// returns.
			a.ingest.Stop()

			failed := 0
			for _, docID := range docIDs {
				doc, err := a.ingest.Status(cmd.Context(), docID)
				if err != nil {
					return err
				}
				switch doc.Status {
				case store.StatusReady:
					fmt.Fprintf(out, "Ready  %s: %d chunks (%s)\n", doc.Title, doc.ChunkCount, doc.DocType)
				case store.StatusFailed:
					failed++
					fmt.Fprintf(out, "Failed %s: %s\n", doc.Title, doc.FailureReason)
				default:
					fmt.Fprintf(out, "%s %s\n", doc.Status, doc.Title)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(docIDs))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Document title (single file only; default: file name)")
	return cmd
}
