package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/academe-ai/academe/internal/mcp"
	"github.com/academe-ai/academe/internal/watcher"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Starts the MCP server for AI clients. The ingestion worker pool runs
in the background; when the drop-box watcher is configured, files
dropped there are ingested automatically.

Stdout carries JSON-RPC only; diagnostics go to the log file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ingestCtx, cancelIngest := context.WithCancel(context.Background())
	defer cancelIngest()
	a.ingest.Start(ingestCtx)
	defer a.ingest.Stop()

	if cfg.Watcher.Enabled && cfg.Watcher.Dir != "" {
		box := watcher.NewDropBox(cfg.Watcher.Dir, watcher.Options{
			DebounceWindow: cfg.Watcher.Debounce,
			MaxFileBytes:   cfg.Storage.MaxDocumentBytes,
		}, a.ingest, a.store, logger)
		if err := box.Start(ctx); err != nil {
			return err
		}
		defer box.Stop()
	}

	server, err := mcp.NewServer(a.orchestrator, a.ingest, a.store, logger)
	if err != nil {
		return err
	}
	server.SetMetrics(a.metrics)

	return server.Serve(ctx, "stdio")
}
