package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/sergev/usbtool/config"
	"github.com/sergev/usbtool/dump"
	"github.com/sergev/usbtool/usbtool"
	"github.com/spf13/cobra"
)

var dumpBlocks int

var dumpCmd = &cobra.Command{
	Use:   "dump [CHIP [FILE]]",
	Short: "Dump NAND contents with spare areas to a file",
	Long: `Read every block of the chip, including spare areas, and save it to FILE.
By default the image of chip N is saved as 'nandN.bin'.
A description of the chip is written next to it, as FILE.txt.
Without CHIP, every chip with known geometry is dumped.`,
	Args: cobra.MaximumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) > 0 {
			num, err := parseChip(args[0])
			cobra.CheckErr(err)
			filename := fmt.Sprintf("nand%d.bin", num)
			if len(args) > 1 {
				filename = args[1]
			}
			chip, _ := knownChip(num)
			cobra.CheckErr(dumpChip(chip, filename))
			return
		}

		for num := 0; num < config.Chips; num++ {
			chip := session.Chip(num)
			g, err := chip.Info()
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to query NAND%d: %w", num, err))
			}
			if !g.Present {
				continue
			}
			if !g.Known {
				fmt.Printf("Unknown NAND with ID: %s\n", g.IDString())
				continue
			}
			fmt.Printf("NAND%d: %d MB\n", num, g.ChipSize)
			cobra.CheckErr(dumpChip(chip, fmt.Sprintf("nand%d.bin", num)))
		}
	},
}

// dumpChip saves the image of a chip to filename and its description to filename.txt
func dumpChip(chip *usbtool.Chip, filename string) (err error) {
	num := chip.Num()
	meta, err := os.Create(filename + ".txt")
	if err != nil {
		return fmt.Errorf("failed to create metadata file: %w", err)
	}
	defer func() {
		err = errors.Join(err, meta.Close())
	}()

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()

	fmt.Printf("Dumping NAND%d to %s\n", num, filename)
	err = dump.Dump(chip, session.Buffer(), meta, file,
		dump.WithProgress(printProgress), dump.WithBlockLimit(dumpBlocks))
	if err != nil {
		fmt.Printf("\n")
		return fmt.Errorf("failed to dump NAND%d: %w", num, err)
	}
	return nil
}

func init() {
	dumpCmd.Flags().IntVar(&dumpBlocks, "blocks", 0, "dump only the first N blocks")
	rootCmd.AddCommand(dumpCmd)
}
