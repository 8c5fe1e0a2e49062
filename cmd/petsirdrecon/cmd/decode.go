package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"petsirdrecon/pkg/description"
	"petsirdrecon/pkg/geometry"
	"petsirdrecon/pkg/listmode"
)

var decodeCmd = &cobra.Command{
	Use:   "decode SCANNER EVENTS",
	Short: "Decode a time-block stream into list-mode events",
	Args:  cobra.ExactArgs(2),
	RunE:  runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().Bool("tof", false, "decode time-of-flight values; needs tofBinEdges in the scanner (default from listMode.enableTOF)")
	decodeCmd.Flags().Int("limit", 20, "number of events to print; negative prints all")
}

func runDecode(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	enableTOF := cfg.ListMode.EnableTOF
	if cmd.Flags().Changed("tof") {
		enableTOF, _ = cmd.Flags().GetBool("tof")
	}
	limit, _ := cmd.Flags().GetInt("limit")

	info, err := description.LoadScanner(args[0])
	if err != nil {
		return err
	}
	blocks, err := description.LoadTimeBlocks(args[1])
	if err != nil {
		return err
	}

	_, table, err := geometry.Canonicalize(info, geometry.WithLogger(logger))
	if err != nil {
		return err
	}
	events, err := listmode.New(info, table, blocks,
		listmode.WithTOF(enableTOF),
		listmode.WithLogger(logger))
	if err != nil {
		return err
	}

	n := events.Count()
	if limit >= 0 && limit < n {
		n = limit
	}
	for i := 0; i < n; i++ {
		if events.HasTOF() {
			fmt.Printf("%8d  t=%-8d  %6d %6d  tof=%9.3f ps\n",
				i, events.Timestamp(i), events.Detector1(i), events.Detector2(i), events.TOFValue(i))
		} else {
			fmt.Printf("%8d  t=%-8d  %6d %6d\n",
				i, events.Timestamp(i), events.Detector1(i), events.Detector2(i))
		}
	}
	fmt.Printf("%d of %d events shown\n", n, events.Count())
	return nil
}
