package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/quantmind/rops/internal/charts"
	"github.com/quantmind/rops/internal/config"
	"github.com/quantmind/rops/internal/execx"
)

// helmSecretsRepo is the helm plugin providing encrypted value files.
const helmSecretsRepo = "https://github.com/jkroepke/helm-secrets"

// newChartsCommand groups the chart-related subcommands.
func newChartsCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "charts",
		Short: "Deploy helm charts to Kubernetes",
	}
	cmd.AddCommand(
		newChartsListCommand(opts),
		newChartsUpdateCommand(opts),
		newChartsDeployCommand(opts),
	)
	return cmd
}

// newChartsListCommand creates the "charts list" subcommand printing the catalog.
func newChartsListCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all available charts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())
			_, catalog, err := loadChartState(opts, logger)
			if err != nil {
				return err
			}
			pretty, err := json.MarshalIndent(catalog, "", "  ")
			if err != nil {
				return fmt.Errorf("serialize chart catalog: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(pretty))
			return nil
		},
	}
}

// newChartsUpdateCommand creates the "charts update" subcommand installing helm plugins.
func newChartsUpdateCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Install or update the helm plugins used by deploys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())
			settings, err := config.Load(opts.ConfigPath, logger)
			if err != nil {
				return err
			}
			deployer := charts.NewDeployer(logger, settings, execx.NewRunner(logger))
			return deployer.InstallHelmPlugin(cmd.Context(), "secrets", helmSecretsRepo)
		},
	}
}

// newChartsDeployCommand creates the "charts deploy" subcommand running the pipeline.
func newChartsDeployCommand(opts *Options) *cobra.Command {
	req := charts.DeployRequest{}

	cmd := &cobra.Command{
		Use:   "deploy CHART",
		Short: "Deploy a chart and reconcile its routing block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := LoggerFromContext(cmd.Context())
			settings, catalog, err := loadChartState(opts, logger)
			if err != nil {
				return err
			}
			req.Chart = args[0]
			deployer := charts.NewDeployer(logger, settings, execx.NewRunner(logger))
			return deployer.Deploy(cmd.Context(), catalog, req)
		},
	}

	cmd.Flags().StringVarP(&req.Env, "env", "e", "", "Kubernetes environment to deploy to")
	cmd.Flags().StringVarP(&req.Namespace, "namespace", "n", "", "Namespace to deploy the chart in")
	cmd.Flags().StringVar(&req.Vars, "vars", "", "Override the additional variables path")
	cmd.Flags().StringArrayVar(&req.Set, "set", nil, "Explicit key=value overrides passed to helm --set")
	cmd.Flags().StringArrayVar(&req.Args, "args", nil, "Additional free-form helm arguments")
	cmd.Flags().BoolVar(&req.BlockOnly, "block", false, "Reconcile the routing block only")
	cmd.Flags().BoolVar(&req.Wait, "wait", false, "Wait for the deployment to finish")
	cmd.Flags().BoolVar(&req.DryRun, "dry-run", false, "Log commands without executing them")

	return cmd
}

// loadChartState loads the settings and the chart catalog they point at.
func loadChartState(opts *Options, logger *slog.Logger) (*config.Settings, charts.Catalog, error) {
	settings, err := config.Load(opts.ConfigPath, logger)
	if err != nil {
		return nil, nil, err
	}
	catalog, err := charts.LoadCatalog(settings.Charts.Config)
	if err != nil {
		return nil, nil, err
	}
	return settings, catalog, nil
}
