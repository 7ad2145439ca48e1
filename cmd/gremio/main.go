// Command gremio tracks Argentine labor unions: it researches union profiles
// with a generative model, folds news into the tracked records and keeps
// them in a local SQLite database or a Firebase Realtime Database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version = "0.1.0-dev"

var (
	verbose      bool
	jsonOutput   bool
	configPath   string
	llmFlag      string
	dbPathFlag   string
	storeFlag    string
	cooldownFlag string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gremio",
	Short: "Track unions, their leadership, actions and wage agreements",
	Long: `gremio keeps a directory of labor unions up to date.

Profiles are researched with a search-grounded model, news links are read and
folded into the matching union, and a bulk update refreshes every record.

Config precedence: built-in defaults < ~/.gremio/config.yaml < GREMIO_* env < flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		config.OutputPaths = []string{"stderr"}
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else {
			config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "Debug logging on stderr")
	pf.BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	pf.StringVar(&configPath, "config", "", "Config file (default ~/.gremio/config.yaml)")
	pf.StringVar(&llmFlag, "llm", "", "Model as provider/model, e.g. genai/gemini-2.5-flash")
	pf.StringVar(&dbPathFlag, "db", "", "SQLite database path")
	pf.StringVar(&storeFlag, "store", "", "Store backend: sqlite or firebase")
	pf.StringVar(&cooldownFlag, "cooldown", "", "Pause between bulk update entities, e.g. 2s")

	rootCmd.AddCommand(
		listCmd, investigateCmd, refreshCmd, analyzeCmd, newsCmd, chatCmd,
		logosCmd, bulkCmd, deleteCmd, historyCmd, statsCmd, configCmd,
		serveCmd, versionCmd,
	)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "gremio %s\n", version)
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func appLogger() *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
