package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/config"
)

var (
	version = "dev"
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:           "eventsd",
	Short:         "Society event registration service",
	Long:          `eventsd serves the event registration API: capacity-limited sign-ups, waitlists and committee review.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file (environment variables and .env are always read)")
}

// loadViper builds the configuration source shared by every subcommand.
func loadViper() (*viper.Viper, error) {
	return config.New(cfgFile)
}

// newLogger returns the JSON application logger. Development runs log at
// debug level.
func newLogger(env string) *slog.Logger {
	level := slog.LevelInfo
	if env == "dev" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
