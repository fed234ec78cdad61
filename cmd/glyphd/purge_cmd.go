package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"pkt.systems/glyphd"
	"pkt.systems/pslog"
)

func newPurgeCommand(logger pslog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge <family> <weight>",
		Short: "Delete the persisted cache record for one font",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			font, err := parseFontArgs(args)
			if err != nil {
				return err
			}
			if err := glyphd.PurgeStore(cmd.Context(), viper.GetString("store"), font, logger); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %s\n", font)
			return nil
		},
	}
	return cmd
}
