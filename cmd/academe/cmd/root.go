// Package cmd provides the CLI commands for Academe.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/academe-ai/academe/internal/config"
	"github.com/academe-ai/academe/internal/logging"
	"github.com/academe-ai/academe/pkg/version"
)

// Persistent flags shared by all commands.
var (
	cfgPath  string
	userFlag string
	jsonOut  bool
	noColor  bool

	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the academe CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "academe",
		Short: "Local-first study assistant with retrieval-augmented answers",
		Long: `Academe answers questions about your own study material: textbook
chapters, papers, lecture notes, and code you upload.

Answers are grounded in your documents and carry citations back to the
source passages. Everything runs locally.

Run 'academe' with no arguments to start the MCP server over stdio.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			// MCP clients launch the bare binary; stdout is reserved for
			// JSON-RPC from here on.
			return runServe(cmd)
		},
	}

	cmd.SetVersionTemplate("academe version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file path (default ~/.academe/config.yaml)")
	cmd.PersistentFlags().StringVar(&userFlag, "user", "", "User whose documents are used (default $ACADEME_USER or the OS user)")
	cmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable color output")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.academe/logs/")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newDocsCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newRateCmd())
	cmd.AddCommand(newSummarizeCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// startLogging enables debug file logging when --debug is set.
func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug_logging_enabled",
		slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// loadConfig reads configuration honoring the --config flag.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgPath)
}

// currentUser resolves the acting user: --user flag, then
// ACADEME_USER, then the OS user.
func currentUser() string {
	if userFlag != "" {
		return userFlag
	}
	if env := os.Getenv("ACADEME_USER"); env != "" {
		return env
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "default"
}
