package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xz3dev/quacklytics-sub000/code/config"
	"github.com/xz3dev/quacklytics-sub000/code/sdk"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download changed partitions into the cache and load them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(s *sdk.Session, cfg *config.Config, logger *zap.Logger) error {
			res, err := s.Sync(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("sync finished",
				zap.Int("files", len(res.Files)),
				zap.Int("downloaded", len(res.Downloaded)),
				zap.Int("failed", len(res.Failed)),
				zap.Int("skipped", len(res.Skipped)))
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
