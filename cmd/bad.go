package cmd

import (
	"fmt"

	"github.com/sergev/usbtool/config"
	"github.com/sergev/usbtool/dump"
	"github.com/sergev/usbtool/usbtool"
	"github.com/spf13/cobra"
)

var badCmd = &cobra.Command{
	Use:   "bad [CHIP]",
	Short: "List bad blocks",
	Long:  "Print the blocks marked bad in the programmer's table, for CHIP or for every known chip.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var chips []*usbtool.Chip
		if len(args) > 0 {
			num, err := parseChip(args[0])
			cobra.CheckErr(err)
			chip, _ := knownChip(num)
			chips = append(chips, chip)
		} else {
			for num := 0; num < config.Chips; num++ {
				chip := session.Chip(num)
				g, err := chip.Info()
				if err != nil {
					cobra.CheckErr(fmt.Errorf("failed to query NAND%d: %w", num, err))
				}
				if g.Known {
					chips = append(chips, chip)
				}
			}
		}

		for _, chip := range chips {
			num := chip.Num()
			g, err := chip.Info()
			cobra.CheckErr(err)
			bad, err := chip.BadBlocks()
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to read bad block table of NAND%d: %w", num, err))
			}
			bad = usbtool.TruncateBadBlocks(bad, g.BlockCount())
			fmt.Printf("NAND%d: %d of %d blocks bad: %s\n", num, len(bad), g.BlockCount(), dump.FormatBadBlocks(bad))
		}
	},
}

func init() {
	rootCmd.AddCommand(badCmd)
}
