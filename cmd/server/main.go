package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "downwatch",
	Short: "Website uptime monitor with downtime logs and alerts",
	Long: `Downwatch probes registered URLs on a fixed cadence, records every
outage as a downtime interval and emails (or texts) the owner when a
site goes down.`,
	SilenceUsage: true,
	// no subcommand runs the server
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	defaultPath := os.Getenv("DOWNWATCH_CONFIG")
	if defaultPath == "" {
		defaultPath = "config.json"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultPath, "path to config.json or config.yaml")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}
