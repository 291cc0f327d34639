package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/forgeline/forgeline/internal/config"
)

var (
	dbPath     string
	configPath string
	verbose    bool

	settings config.Settings
	logger   = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "forgeline",
	Short: "forgeline - A/B assignment and instant quotes for a fabrication shop site",
	Long: `forgeline serves headline experiments and instant quote pricing for a
metal-fabrication marketing site. Single Go binary, embedded SQLite.

Running without a subcommand starts the server (same as 'forgeline serve').`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		settings, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cmd.Flags().Changed("db") {
			settings.Paths.DB = dbPath
		}
		dbPath = settings.Paths.DB

		logger, err = newLogger(settings.Log.Level, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	RunE: runServe, // Default action is to start server
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getEnvOrDefault("FL_DB_PATH", config.DefaultDBPath), "database path")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "settings file (default $FL_CONFIG or ./forgeline.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func newLogger(level string, verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
