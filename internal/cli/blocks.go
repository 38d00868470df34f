package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantmind/rops/internal/metablock"
)

// newBlocksCommand groups the routing-block subcommands.
func newBlocksCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "Manage metablock routing blocks",
	}
	cmd.AddCommand(newBlocksApplyCommand(opts))
	return cmd
}

// newBlocksApplyCommand creates the "blocks apply" subcommand that
// reconciles a chart's routing block without deploying the chart.
func newBlocksApplyCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "apply CHART",
		Short: "Reconcile the routing block attached to a chart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := LoggerFromContext(cmd.Context())
			settings, catalog, err := loadChartState(opts, logger)
			if err != nil {
				return err
			}
			chart, err := catalog.Get(args[0])
			if err != nil {
				return err
			}
			if chart.Block == nil {
				return fmt.Errorf("chart %q has no block configuration", args[0])
			}
			client, err := metablock.NewClient(logger, settings.Blocks.APIURL, settings.Blocks.APIToken.Value())
			if err != nil {
				return err
			}
			_, err = client.Apply(cmd.Context(), settings.Blocks.DefaultSpace, chart.Block)
			return err
		},
	}
}
