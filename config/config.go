package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sergev/usbtool/transport"
	"github.com/sergev/usbtool/usbtool"
)

//go:embed usbtool.toml
var defaultConfigData []byte

// Global state variables for the selected device profile
var (
	Path       string // config file in use
	DeviceName string
	Transport  string
	VendorID   uint16
	ProductID  uint16
	ChunkSize  int
	BufferSize uint32
	Chips      int
	Timeout    time.Duration
)

// Config represents the entire TOML configuration structure
type Config struct {
	Default string   `toml:"default"`
	Device  []Device `toml:"device"`
}

// Device represents a programmer profile
type Device struct {
	Name       string `toml:"name"`
	Transport  string `toml:"transport"`
	VID        int64  `toml:"vid"`
	PID        int64  `toml:"pid"`
	ChunkSize  int    `toml:"chunk_size"`
	BufferSize int64  `toml:"buffer_size"`
	Chips      int    `toml:"chips"`
	TimeoutMS  int    `toml:"timeout_ms"`
}

// configPath determines the config file path based on the operating system
func configPath() (string, error) {
	var configDir string
	var err error

	switch runtime.GOOS {
	case "windows":
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "usbtool")
	default:
		configDir, err = os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user home directory: %w", err)
		}
	}

	return filepath.Join(configDir, ".usbtool"), nil
}

// Initialize loads the user configuration file.
// If the file doesn't exist, it is created from the embedded default.
func Initialize() error {
	path, err := configPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory %s: %w", dir, err)
		}
		if err := os.WriteFile(path, defaultConfigData, 0644); err != nil {
			return fmt.Errorf("failed to create default config file at %s: %w", path, err)
		}
	}
	return Load(path)
}

// Load parses and validates a config file and selects its default profile
func Load(path string) error {
	var conf Config
	if _, err := toml.DecodeFile(path, &conf); err != nil {
		return fmt.Errorf("failed to parse TOML config at %s: %w", path, err)
	}
	if err := apply(&conf); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	Path = path
	return nil
}

// LoadDefault selects the default profile of the embedded configuration
func LoadDefault() error {
	var conf Config
	if _, err := toml.Decode(string(defaultConfigData), &conf); err != nil {
		return fmt.Errorf("failed to parse embedded config: %w", err)
	}
	if err := apply(&conf); err != nil {
		return err
	}
	Path = ""
	return nil
}

// Select switches to another profile of the config file in use
func Select(name string) error {
	var conf Config
	var err error
	if Path == "" {
		_, err = toml.Decode(string(defaultConfigData), &conf)
	} else {
		_, err = toml.DecodeFile(Path, &conf)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	conf.Default = name
	return apply(&conf)
}

func apply(conf *Config) error {
	if conf.Default == "" {
		return errors.New("`default` key is missing or empty in config")
	}

	var found *Device
	for i := range conf.Device {
		if conf.Device[i].Name == conf.Default {
			found = &conf.Device[i]
			break
		}
	}
	if found == nil {
		return fmt.Errorf("device %q not found in device array", conf.Default)
	}
	if err := found.validate(); err != nil {
		return err
	}

	DeviceName = found.Name
	Transport = found.Transport
	if Transport == "" {
		Transport = "auto"
	}
	VendorID = uint16(found.VID)
	ProductID = uint16(found.PID)
	ChunkSize = found.ChunkSize
	BufferSize = uint32(found.BufferSize)
	Chips = found.Chips
	Timeout = time.Duration(found.TimeoutMS) * time.Millisecond
	return nil
}

func (d *Device) validate() error {
	if d.Transport != "" && d.Transport != "auto" && !slices.Contains(transport.Names(), d.Transport) {
		return fmt.Errorf("device %q has unknown transport %q (known: auto %v)", d.Name, d.Transport, transport.Names())
	}
	if d.VID < 0 || d.VID > 0xffff {
		return fmt.Errorf("device %q has invalid vid: %#x", d.Name, d.VID)
	}
	if d.PID < 0 || d.PID > 0xffff {
		return fmt.Errorf("device %q has invalid pid: %#x", d.Name, d.PID)
	}
	if d.ChunkSize <= 0 {
		return fmt.Errorf("device %q has invalid chunk_size: %d (must be positive)", d.Name, d.ChunkSize)
	}
	if d.BufferSize < 2 || d.BufferSize > 0xffffffff {
		return fmt.Errorf("device %q has invalid buffer_size: %d", d.Name, d.BufferSize)
	}
	if d.Chips <= 0 || d.Chips > usbtool.MaxChips {
		return fmt.Errorf("device %q has invalid chips: %d (must be 1..%d)", d.Name, d.Chips, usbtool.MaxChips)
	}
	if d.TimeoutMS < 0 {
		return fmt.Errorf("device %q has invalid timeout_ms: %d", d.Name, d.TimeoutMS)
	}
	return nil
}
