package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xz3dev/quacklytics-sub000/code/api"
	"github.com/xz3dev/quacklytics-sub000/code/config"
	"github.com/xz3dev/quacklytics-sub000/code/sdk"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local query API with background sync",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(s *sdk.Session, cfg *config.Config, logger *zap.Logger) error {
			if summary, err := s.Warm(cmd.Context()); err != nil {
				logger.Warn("warm start failed", zap.Error(err))
			} else {
				logger.Info("warm start", zap.Int("imported", len(summary.Imported)))
			}
			return api.Serve(cmd.Context(), s, cfg.API.Addr(), logger)
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
