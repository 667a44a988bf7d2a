package cmd

import (
	"fmt"
	"os"

	"github.com/sergev/usbtool/dump"
	"github.com/spf13/cobra"
)

var (
	programClearMarks bool
	programStop       bool
	programBlocks     int
)

var programCmd = &cobra.Command{
	Use:   "program CHIP FILE",
	Short: "Write an image to the NAND chip",
	Long: `Erase and program the chip block by block from FILE.
The image must hold every block with its spare areas, as saved by the dump command.
Blocks the chip fails to erase or program are reported and skipped.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		num, err := parseChip(args[0])
		cobra.CheckErr(err)
		chip, g := knownChip(num)

		file, err := os.Open(args[1])
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to open image: %w", err))
		}
		defer file.Close()

		fmt.Printf("Programming NAND%d (%d MB) from %s\n", num, g.ChipSize, args[1])
		report, err := dump.Program(chip, session.Buffer(), file,
			dump.WithProgress(printProgress),
			dump.WithClearMarks(programClearMarks),
			dump.WithStopOnFailure(programStop),
			dump.WithBlockLimit(programBlocks))
		printFailures(report)
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to program NAND%d: %w", num, err))
		}
		if report.Truncated {
			fmt.Printf("Warning: image is larger than the chip, only %d blocks written\n", report.Blocks)
		}
		fmt.Printf("%d blocks written, %d failures\n", report.Blocks, len(report.Failures))
	},
}

// printFailures lists the blocks the chip failed to erase or program
func printFailures(report *dump.Report) {
	if report == nil {
		return
	}
	if len(report.Failures) > 0 {
		fmt.Printf("\n")
	}
	for _, f := range report.Failures {
		switch f.Op {
		case dump.OpErase:
			fmt.Printf("error erasing block %d\n", f.Block)
		case dump.OpWrite:
			fmt.Printf("error writing block %d\n", f.Block)
		}
	}
}

func init() {
	programCmd.Flags().BoolVar(&programClearMarks, "clear-marks", false, "mark every block good before erasing it")
	programCmd.Flags().BoolVar(&programStop, "stop-on-failure", false, "stop at the first block that fails")
	programCmd.Flags().IntVar(&programBlocks, "blocks", 0, "program only the first N blocks")
	rootCmd.AddCommand(programCmd)
}
