package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"pkt.systems/glyphd"
	"pkt.systems/pslog"
)

func newCharsCommand(logger pslog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chars <family> <weight>",
		Short: "Show the persisted cache state for one font",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			font, err := parseFontArgs(args)
			if err != nil {
				return err
			}
			info, err := glyphd.InspectStore(cmd.Context(), viper.GetString("store"), font, logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "font:        %s\n", font)
			fmt.Fprintf(out, "fingerprint: %s\n", info.Fingerprint)
			fmt.Fprintf(out, "outline:     %t\n", info.OutlineOnly)
			fmt.Fprintf(out, "loadable:    %d glyphs\n", info.Loadable)
			fmt.Fprintf(out, "embedded:    %d characters\n", len(info.Embedded))
			fmt.Fprintf(out, "font bytes:  %s\n", humanizeBytes(info.FontBytes))
			if info.UpdatedAtUnix > 0 {
				fmt.Fprintf(out, "updated:     %s\n", time.Unix(info.UpdatedAtUnix, 0).UTC().Format(time.RFC3339))
			}
			if viper.GetBool("list") {
				for _, r := range info.Embedded {
					fmt.Fprintf(out, "U+%04X %q\n", r, string(r))
				}
			}
			return nil
		},
	}
	cmd.Flags().Bool("list", false, "list every embedded codepoint")
	bindFlags(cmd.Flags(), "list")
	return cmd
}

func parseFontArgs(args []string) (glyphd.FontIdentity, error) {
	weight, err := strconv.Atoi(args[1])
	if err != nil || weight <= 0 {
		return glyphd.FontIdentity{}, fmt.Errorf("invalid weight %q", args[1])
	}
	return glyphd.FontIdentity{Family: args[0], Weight: weight}, nil
}
