package main

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"shiptivity/api/internal/config"
)

var (
	// configFile is set by the --config flag.
	configFile string

	settings = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:   "shiptivity",
	Short: "Shiptivity board API",
	Long: `Shiptivity keeps clients in three swimlanes (backlog, in-progress,
complete) and reorders them while every lane stays ranked 1..N.
Running without a subcommand starts the HTTP server.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
	RunE:              runServe,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (yaml, toml or json)")
	flags.String("database-url", "", "postgres:// URL or SQLite path (env DATABASE_URL)")
	flags.String("log-level", "", "logrus level (env LOG_LEVEL)")
	flags.String("addr", "", "listen address (env API_ADDR)")
	flags.String("redis-url", "", "redis URL for the listing cache and reorder lock (env REDIS_URL)")

	bindFlag("database-url", config.KeyDatabaseURL)
	bindFlag("log-level", config.KeyLogLevel)
	bindFlag("addr", config.KeyAddr)
	bindFlag("redis-url", config.KeyRedisURL)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}

func bindFlag(name, key string) {
	if err := settings.BindPFlag(key, rootCmd.PersistentFlags().Lookup(name)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

// loadSettings merges the config file and configures logging before any
// subcommand runs.
func loadSettings(cmd *cobra.Command, args []string) error {
	if err := config.ReadFile(settings, configFile); err != nil {
		return err
	}
	return setupLogging(config.FromViper(settings).LogLevel)
}

func setupLogging(level string) error {
	log.SetFormatter(&log.JSONFormatter{})
	if strings.TrimSpace(level) == "" {
		level = "info"
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(parsed)
	return nil
}
