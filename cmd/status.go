package cmd

import (
	"fmt"

	"github.com/sergev/usbtool/config"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the status of the programmer",
	Long:  "Check the connection to the USB programmer and print the configuration in use.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Programmer: %04x:%04x via %s transport\n", config.VendorID, config.ProductID, config.Transport)
		fmt.Printf("Staging buffer: %d bytes, transfers of %d bytes\n", config.BufferSize, config.ChunkSize)
		fmt.Printf("Chip selects: %d, selected: ", config.Chips)
		if num := session.Selected(); num >= 0 {
			fmt.Printf("NAND%d\n", num)
		} else {
			fmt.Printf("none\n")
		}

		path := config.Path
		if path == "" {
			path = "(built-in)"
		}
		fmt.Printf("\nConfiguration script: %s\n", path)
		fmt.Printf("Device profile: %s\n", config.DeviceName)
		if config.Timeout > 0 {
			fmt.Printf("Timeout: %v\n", config.Timeout)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
