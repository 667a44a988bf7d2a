package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/sergev/usbtool/dump"
	"github.com/spf13/cobra"
)

var (
	eraseYes    bool
	eraseBlocks int
)

var eraseCmd = &cobra.Command{
	Use:   "erase CHIP",
	Short: "Erase the NAND chip",
	Long:  "Erase every block of the chip. Blocks which fail to erase are reported.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		num, err := parseChip(args[0])
		cobra.CheckErr(err)
		chip, g := knownChip(num)

		if !eraseYes {
			fmt.Printf("All data on NAND%d (%d MB) will be lost.\nContinue? [y/N] ", num, g.ChipSize)
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
				fmt.Printf("Cancelled\n")
				return
			}
		}

		report, err := dump.Erase(chip, dump.WithProgress(printProgress), dump.WithBlockLimit(eraseBlocks))
		printFailures(report)
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to erase NAND%d: %w", num, err))
		}
		fmt.Printf("%d blocks erased, %d failures\n", report.Blocks, len(report.Failures))
	},
}

func init() {
	eraseCmd.Flags().BoolVarP(&eraseYes, "yes", "y", false, "do not ask for confirmation")
	eraseCmd.Flags().IntVar(&eraseBlocks, "blocks", 0, "erase only the first N blocks")
	rootCmd.AddCommand(eraseCmd)
}
