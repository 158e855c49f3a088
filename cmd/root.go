package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/pable/versus-overlay/internal/aggregator"
	"github.com/pable/versus-overlay/internal/config"
)

var (
	envFile string
	cfg     = config.Default()
	logger  = log.Default()
)

var rootCmd = &cobra.Command{
	Use:   "versus",
	Short: "1v1 match overlay service",
	Long: `Serve the 1v1 broadcast overlay: pull match results from a Google Sheet,
compute per-level player stats and push overlay state to display clients.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&envFile, "env", "", "path to a .env file (default: ./.env then ../.env)")
	pf.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to SQLite cache database")
	pf.StringVar(&cfg.StatePath, "state", cfg.StatePath, "path to the overlay state snapshot")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	pf.BoolVar(&cfg.LegacyStats, "legacy-stats", cfg.LegacyStats, "count games with a missing time as 0:00")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(leaderboardCmd)
	rootCmd.AddCommand(playersCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(sqlCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(dropCmd)
}

// loadConfig layers defaults, the .env file, VERSUS_* variables and finally
// any flag set explicitly on the command line.
func loadConfig(cmd *cobra.Command, _ []string) error {
	flags := cfg
	loaded, err := config.LoadEnvFile(envFile)
	if err != nil {
		return err
	}
	c, err := config.FromEnv(config.Default())
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	pf := cmd.Flags()
	if pf.Changed("db") {
		c.DBPath = flags.DBPath
	}
	if pf.Changed("state") {
		c.StatePath = flags.StatePath
	}
	if pf.Changed("log-level") {
		c.LogLevel = flags.LogLevel
	}
	if pf.Changed("legacy-stats") {
		c.LegacyStats = flags.LegacyStats
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cfg = c

	level, err := log.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		return err
	}
	logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           level,
	})
	if loaded != "" {
		logger.Debug("loaded env file", "path", loaded)
	}
	return nil
}

func statsOptions() aggregator.Options {
	return aggregator.Options{Legacy: cfg.LegacyStats}
}
