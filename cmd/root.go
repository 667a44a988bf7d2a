package cmd

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/sergev/usbtool/config"
	"github.com/sergev/usbtool/dump"
	"github.com/sergev/usbtool/transport"
	"github.com/sergev/usbtool/usbtool"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var session *usbtool.Session

// Values of global flags, applied over the config profile when set
var (
	profileFlag   string
	transportFlag string
	vidFlag       uint16
	pidFlag       uint16
)

var rootCmd = &cobra.Command{
	Use:   "usbtool",
	Short: "A CLI program which reads and writes NAND flash via USB programmer",
	Long:  "The usbtool is a CLI program which dumps, erases and programs NAND flash chips attached to a USB programmer board.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := config.Initialize()
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to initialize config: %w", err))
		}
		if profileFlag != "" {
			cobra.CheckErr(config.Select(profileFlag))
		}
		applyFlags(cmd.Flags())

		session, err = openSession()
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to find USB programmer: %w", err))
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if session != nil {
			session.Close()
		}
		glog.Flush()
	},
}

// addDeviceFlags registers the flags selecting a programmer
func addDeviceFlags(fs *pflag.FlagSet) {
	fs.StringVar(&profileFlag, "device", "", "device profile from the config file")
	fs.StringVar(&transportFlag, "transport", "", "transport: auto, "+strings.Join(transport.Names(), ", "))
	fs.Uint16Var(&vidFlag, "vid", 0, "USB vendor ID of the programmer")
	fs.Uint16Var(&pidFlag, "pid", 0, "USB product ID of the programmer")
}

func applyFlags(fs *pflag.FlagSet) {
	if fs.Changed("transport") {
		config.Transport = transportFlag
	}
	if fs.Changed("vid") {
		config.VendorID = vidFlag
	}
	if fs.Changed("pid") {
		config.ProductID = pidFlag
	}
}

// openSession opens the programmer described by the config
func openSession() (*usbtool.Session, error) {
	ch, err := transport.Open(config.Transport, transport.Options{
		VendorID:  config.VendorID,
		ProductID: config.ProductID,
		Timeout:   config.Timeout,
	})
	if err != nil {
		return nil, err
	}
	glog.V(1).Infof("opened %04x:%04x via %s", config.VendorID, config.ProductID, config.Transport)
	return usbtool.NewSession(ch,
		usbtool.WithChunkSize(config.ChunkSize),
		usbtool.WithBufferSize(config.BufferSize)), nil
}

// parseChip parses a chip index argument
func parseChip(arg string) (int, error) {
	num, err := strconv.Atoi(arg)
	if err != nil || num < 0 || num >= config.Chips {
		return 0, fmt.Errorf("invalid chip %q: must be 0..%d", arg, config.Chips-1)
	}
	return num, nil
}

// parseUint32 parses a decimal or 0x-prefixed argument
func parseUint32(name, arg string) (uint32, error) {
	v, err := strconv.ParseUint(arg, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, arg, err)
	}
	return uint32(v), nil
}

// knownChip returns the chip proxy and its geometry, failing for absent or unknown chips
func knownChip(num int) (*usbtool.Chip, usbtool.Geometry) {
	chip := session.Chip(num)
	g, err := chip.Info()
	if err != nil {
		cobra.CheckErr(fmt.Errorf("failed to query NAND%d: %w", num, err))
	}
	if !g.Known {
		cobra.CheckErr(&dump.UnknownChipError{Chip: num, Present: g.Present, ID: g.IDString()})
	}
	return chip, g
}

// printProgress renders pipeline progress on a single terminal line
func printProgress(p dump.Progress) {
	if p.Done {
		fmt.Printf("\x1b[2K\rcompleted\n")
		return
	}
	fmt.Printf("\x1b[2K\r%.1f%% complete", p.Percent)
}

func init() {
	addDeviceFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
