package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Print the pallet storage version and migration flag at a block",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		block, err := optionalBlock(cmd, flagBlock)
		if err != nil {
			return err
		}

		s, cleanup, err := newServices(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		state, err := s.prober.Probe(ctx, block)
		if err != nil {
			return err
		}
		out, err := json.Marshal(state)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}
