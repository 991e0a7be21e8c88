package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xz3dev/quacklytics-sub000/code/config"
	"github.com/xz3dev/quacklytics-sub000/code/core/queries"
	"github.com/xz3dev/quacklytics-sub000/code/query"
	"github.com/xz3dev/quacklytics-sub000/code/sdk"
)

var (
	explain  bool
	skipSync bool
)

var queryCmd = &cobra.Command{
	Use:   "query [query.yaml]",
	Short: "Run a query file against the loaded events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := loadQuery(args[0])
		if err != nil {
			return err
		}
		return withSession(cmd.Context(), func(s *sdk.Session, cfg *config.Config, logger *zap.Logger) error {
			if !explain {
				if err := prepare(cmd, s); err != nil {
					return err
				}
			}
			resp, err := s.Query(cmd.Context(), queries.RunRequest{Query: *q, Explain: explain})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		})
	},
}

func init() {
	queryCmd.Flags().BoolVar(&explain, "explain", false, "Print the compiled SQL without running it")
	rootCmd.PersistentFlags().BoolVar(&skipSync, "no-sync", false, "Use cached partitions only")
	rootCmd.AddCommand(queryCmd)
}

func loadQuery(path string) (*query.Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var q query.Query
	if err := yaml.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("parse query %s: %w", path, err)
	}
	return &q, nil
}

// prepare loads cached partitions and, unless --no-sync is set, syncs before reading
func prepare(cmd *cobra.Command, s *sdk.Session) error {
	if _, err := s.Warm(cmd.Context()); err != nil {
		return err
	}
	if skipSync {
		return nil
	}
	_, err := s.Sync(cmd.Context())
	return err
}
