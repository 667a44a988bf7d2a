package cmd

import (
	"fmt"

	"github.com/sergev/usbtool/config"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the NAND chips attached to the programmer",
	Long:  "Query every chip select of the programmer and print the geometry of the chips found.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		found := 0
		for num := 0; num < config.Chips; num++ {
			g, err := session.Chip(num).Info()
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to query NAND%d: %w", num, err))
			}
			if !g.Present {
				continue
			}
			found++
			if !g.Known {
				fmt.Printf("Unknown NAND with ID: %s\n", g.IDString())
				continue
			}

			fmt.Printf("NAND%d: %d MB\n", num, g.ChipSize)
			fmt.Printf("    ID: %s\n", g.IDString())
			fmt.Printf("    Page: %d + %d bytes\n", g.PageSize, g.SpareSize)
			fmt.Printf("    Block: %d KB, %d pages, %d bytes with spare\n",
				g.BlockSize, g.PagesPerBlock(), g.BlockTransferSize())
			fmt.Printf("    Blocks: %d, %d plane(s), bad block marker at %d\n",
				g.BlockCount(), g.Planes, g.BadBlockMarker)
		}
		if found == 0 {
			fmt.Printf("No NAND chips found\n")
		}
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
