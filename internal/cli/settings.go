package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantmind/rops/internal/config"
	"github.com/quantmind/rops/internal/gitrepo"
)

// newSettingsCommand creates the "settings" subcommand that prints the
// resolved configuration with secrets masked.
func newSettingsCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Show the resolved settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())
			settings, err := config.Load(opts.ConfigPath, logger)
			if err != nil {
				return err
			}
			if settings.Git.Branch == "" {
				settings.Git.Branch = gitrepo.DetectBranch(logger)
			}
			if settings.Git.SHA == "" {
				settings.Git.SHA = gitrepo.DetectSHA(logger)
			}
			pretty, err := json.MarshalIndent(settings, "", "  ")
			if err != nil {
				return fmt.Errorf("serialize settings: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(pretty))
			return nil
		},
	}
}
