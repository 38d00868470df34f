// Package cli defines the command-line interface for rops.
package cli

import (
	"context"
	"log/slog"
	"os"

	envparse "github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/quantmind/rops/internal/logging"
)

const (
	// defaultConfigPath is the default path to the settings file.
	defaultConfigPath = "rops.yaml"
)

// Options stores global CLI options shared between commands.
type Options struct {
	ConfigPath string
	LogLevel   logging.Level
}

// rootEnv defines root CLI defaults sourced from ROPS_* env vars.
type rootEnv struct {
	// Config is the settings file path from ROPS_CONFIG.
	Config string `env:"ROPS_CONFIG"`
	// LogLevel is the logging level from ROPS_LOG_LEVEL.
	LogLevel string `env:"ROPS_LOG_LEVEL"`
}

// Execute builds the root command, runs it with the provided args and logger, and returns any error.
func Execute(args []string, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewLogger(os.Stderr, logging.LevelInfo)
	}

	rootOpts := &Options{
		ConfigPath: defaultConfigPath,
		LogLevel:   logging.LevelInfo,
	}

	rootCmd := newRootCommand(rootOpts, logger)
	rootCmd.SetArgs(args)

	return rootCmd.Execute()
}

// newRootCommand constructs the root cobra.Command with global flags and subcommands.
func newRootCommand(opts *Options, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rops",
		Short: "rops deploys helm charts and keeps routing blocks in sync",
		Long:  "rops is a deployment helper that pushes helm charts into Kubernetes clusters and reconciles the attached metablock routing blocks.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var fromEnv rootEnv
			if err := envparse.Parse(&fromEnv); err != nil {
				return err
			}
			if fromEnv.Config != "" && !cmd.Flags().Changed("config") {
				opts.ConfigPath = fromEnv.Config
			}
			levelValue := cmd.Flag("log-level").Value.String()
			if fromEnv.LogLevel != "" && !cmd.Flags().Changed("log-level") {
				levelValue = fromEnv.LogLevel
			}
			level := logging.ParseLevel(levelValue)
			opts.LogLevel = level
			logger = logging.NewLogger(os.Stderr, level)
			cmd.SetContext(context.WithValue(cmd.Context(), loggerKey{}, logger))
			logger.Debug("logger initialized", "level", level)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", defaultConfigPath, "Path to the rops settings file")
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newSettingsCommand(opts),
		newChartsCommand(opts),
		newBlocksCommand(opts),
	)

	return cmd
}

// loggerKey is a private context key used to store a logger in command contexts.
type loggerKey struct{}

// LoggerFromContext extracts a logger from the context or falls back to a default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return logging.NewLogger(os.Stderr, logging.LevelInfo)
	}
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return logging.NewLogger(os.Stderr, logging.LevelInfo)
}
