package cmd

import (
	"fmt"

	"github.com/Layr-Labs/storage-locator/pkg/blockState"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var findMigrationsCmd = &cobra.Command{
	Use:   "find-migrations",
	Short: "Walk backward from a block and print every storage version boundary",
	Long: `Starting from --block (or the latest block), repeatedly bisect for the block right
before the previous change of the pallet's storage version or migration flag. Each boundary is
printed as soon as it is found, newest first.`,
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
		output, _ := cmd.Flags().GetString(flagOutput)

		s, cleanup, err := newServices(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		s.locator.OnBoundary = func(state *blockState.BlockState) {
			fmt.Fprintln(cmd.OutOrStdout(), state.String())
		}
		boundaries, err := s.locator.Walk(ctx, block, stop)
		if err != nil {
			return err
		}
		if len(boundaries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no storage version transitions found")
		}

		if output == "" {
			return nil
		}
		f, err := createOutput(output)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := s.exporter.ExportTransitions(ctx, boundaries, f); err != nil {
			return err
		}
		s.logger.Sugar().Infow("Wrote boundaries",
			zap.String("path", output),
			zap.Int("count", len(boundaries)),
		)
		return nil
	},
}
