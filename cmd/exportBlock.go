package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var exportBlockCmd = &cobra.Command{
	Use:   "export-block",
	Short: "Export a signed block as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		block, err := optionalBlock(cmd, flagBlock)
		if err != nil {
			return err
		}
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

		signed, err := s.exporter.ExportBlock(ctx, block, f)
		if err != nil {
			return err
		}
		s.logger.Sugar().Infow("Exported block",
			zap.Uint64("blockNumber", uint64(signed.Block.Header.Number)),
			zap.String("path", output),
		)
		return nil
	},
}
