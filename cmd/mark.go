package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var markCmd = &cobra.Command{
	Use:   "mark CHIP BLOCK [MARK]",
	Short: "Set the bad block table entry of a block",
	Long: `Set the entry of BLOCK in the programmer's bad block table.
MARK 0 marks the block good, any other value marks it bad. By default the block is marked bad.`,
	Args: cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		num, err := parseChip(args[0])
		cobra.CheckErr(err)
		block, err := parseUint32("block", args[1])
		cobra.CheckErr(err)
		mark := uint32(1)
		if len(args) > 2 {
			mark, err = parseUint32("mark", args[2])
			cobra.CheckErr(err)
		}

		chip, g := knownChip(num)
		if int(block) >= g.BlockCount() {
			cobra.CheckErr(fmt.Errorf("block %d is out of range: NAND%d has %d blocks", block, num, g.BlockCount()))
		}
		if err := chip.MarkBlock(int(block), mark); err != nil {
			cobra.CheckErr(fmt.Errorf("failed to mark block %d: %w", block, err))
		}
		state := "bad"
		if mark == 0 {
			state = "good"
		}
		fmt.Printf("NAND%d: block %d marked %s\n", num, block, state)
	},
}

func init() {
	rootCmd.AddCommand(markCmd)
}
