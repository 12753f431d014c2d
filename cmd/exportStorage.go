package cmd

import (
	"github.com/Layr-Labs/storage-locator/pkg/exporter"
	"github.com/Layr-Labs/storage-locator/pkg/snapshotStore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var exportStorageCmd = &cobra.Command{
	Use:   "export-storage",
	Short: "Export every storage key and value at a block as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		block, err := optionalBlock(cmd, flagBlock)
		if err != nil {
			return err
		}
		output, _ := cmd.Flags().GetString(flagOutput)
		childrenOutput, _ := cmd.Flags().GetString(flagChildrenOutput)
		levelDbPath, _ := cmd.Flags().GetString(flagLevelDb)

		s, cleanup, err := newServices(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		snapshot, err := s.exporter.Snapshot(ctx, block, childrenOutput != "")
		if err != nil {
			return err
		}

		f, err := createOutput(output)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := exporter.WriteStorage(f, snapshot); err != nil {
			return err
		}

		if childrenOutput != "" {
			cf, err := createOutput(childrenOutput)
			if err != nil {
				return err
			}
			defer cf.Close()
			if err := exporter.WriteChildTries(cf, snapshot); err != nil {
				return err
			}
		}

		if levelDbPath != "" {
			store, err := snapshotStore.NewSnapshotStore(levelDbPath, s.logger)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Save(snapshot); err != nil {
				return err
			}
		}

		s.logger.Sugar().Infow("Exported storage",
			zap.Uint32("blockNumber", snapshot.Block.Number),
			zap.String("blockHash", snapshot.Block.Hash.Hex()),
			zap.Int("entries", len(snapshot.Entries)),
			zap.String("path", output),
		)
		return nil
	},
}
