package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xz3dev/quacklytics-sub000/code/db/seed"
)

var (
	seedValue int64
	seedDays  int
	seedStart string
)

var seedCmd = &cobra.Command{
	Use:   "seed [dir]",
	Short: "Write deterministic sample partitions for the dir source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, err := loadConfig()
		if err != nil {
			return err
		}
		start, err := time.Parse(time.DateOnly, seedStart)
		if err != nil {
			return fmt.Errorf("--start: %w", err)
		}
		opts := seed.DefaultOptions(start)
		opts.Seed = seedValue
		opts.Days = seedDays

		events := seed.Generate(opts)
		parts, err := seed.WritePartitions(cmd.Context(), events, "", logger)
		if err != nil {
			return err
		}
		names, err := seed.WriteDir(args[0], parts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d events into %d partitions\n", len(events), len(names))
		for _, n := range names {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().Int64Var(&seedValue, "seed", 42, "Generator seed")
	seedCmd.Flags().IntVar(&seedDays, "days", 14, "Number of days to generate")
	seedCmd.Flags().StringVar(&seedStart, "start", "2024-01-01", "First day (YYYY-MM-DD)")
	rootCmd.AddCommand(seedCmd)
}
