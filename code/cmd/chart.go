package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xz3dev/quacklytics-sub000/code/config"
	"github.com/xz3dev/quacklytics-sub000/code/core/charts"
	"github.com/xz3dev/quacklytics-sub000/code/sdk"
)

var chartCmd = &cobra.Command{
	Use:   "chart [chart.yaml]",
	Short: "Render a chart definition as a dense bucket table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := charts.LoadDefinition(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd.Context(), func(s *sdk.Session, cfg *config.Config, logger *zap.Logger) error {
			if err := prepare(cmd, s); err != nil {
				return err
			}
			resp, err := s.ChartDefinition(cmd.Context(), def)
			if err != nil {
				return err
			}
			if resp.Table.Dropped > 0 {
				logger.Warn("points fell off the bucket grid", zap.Int("dropped", resp.Table.Dropped))
			}
			return printJSON(cmd.OutOrStdout(), resp.Table)
		})
	},
}

func init() {
	rootCmd.AddCommand(chartCmd)
}
