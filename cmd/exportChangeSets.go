package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var exportChangeSetsCmd = &cobra.Command{
	Use:   "export-change-sets",
	Short: "Export the storage change sets from a block up to the latest block as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		fromBlock, _ := cmd.Flags().GetUint32(flagFromBlock)
		output, _ := cmd.Flags().GetString(flagOutput)

		s, cleanup, err := newServices(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		f, err := createOutput(output)
		if err != nil {
			return err
		}
		defer f.Close()

		sets, err := s.exporter.ExportChangeSets(ctx, fromBlock, f)
		if err != nil {
			return err
		}
		s.logger.Sugar().Infow("Exported change sets",
			zap.Uint32("fromBlock", fromBlock),
			zap.Int("changeSets", len(sets)),
			zap.String("path", output),
		)
		return nil
	},
}
