package cmd

import (
	"fmt"
	"time"

	"github.com/Layr-Labs/storage-locator/pkg/migrationLocator"
	"github.com/spf13/cobra"
)

var printBlocksCmd = &cobra.Command{
	Use:   "print-blocks",
	Short: "Print the pallet state of every block, walking backward until a storage version is reached",
	Long: `Probes every block from --block (or the latest block) down, one by one, and prints its
number, time, storage version and migration flag. Stops at the first block whose version is at or
below --target-version with no migration running, or at block 0. Unlike find-migrations this does
not bisect, so it costs three requests per block.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		block, err := optionalBlock(cmd, flagBlock)
		if err != nil {
			return err
		}
		stop, err := stopCondition(cmd)
		if err != nil {
			return err
		}

		s, cleanup, err := newServices(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		return printBlocks(cmd, s, block, stop)
	},
}

func printBlocks(cmd *cobra.Command, s *services, from *uint32, stop migrationLocator.StopCondition) error {
	ctx := cmd.Context()
	state, err := s.prober.Probe(ctx, from)
	if err != nil {
		return err
	}
	for {
		ts, err := s.exporter.BlockTime(ctx, state.Identity.Hash)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\tversion=%d\tmigrationInProgress=%t\n",
			state.Identity.Number,
			ts.UTC().Format(time.DateTime),
			state.Version,
			state.MigrationInProgress,
		)
		if stop(state) || state.Identity.Number == 0 {
			return nil
		}
		if state, err = s.prober.ProbeNumber(ctx, state.Identity.Number-1); err != nil {
			return err
		}
	}
}
