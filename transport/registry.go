package transport

import (
	"errors"
	"fmt"
	"time"
)

// Options passed to a channel opener
type Options struct {
	VendorID  uint16
	ProductID uint16
	Timeout   time.Duration // zero means block forever
}

// Opener is a function that opens a channel to the device identified by opts
type Opener func(opts Options) (Channel, error)

// OpenerInfo contains information about a channel type
type OpenerInfo struct {
	Name   string
	Opener Opener
}

var registeredOpeners []OpenerInfo

// Raw bulk endpoints are preferred over the serial fallback
func init() {
	Register("usb", OpenUSB)
	Register("serial", OpenSerial)
}

// Register registers a channel opener under the given transport name
func Register(name string, opener Opener) {
	registeredOpeners = append(registeredOpeners, OpenerInfo{
		Name:   name,
		Opener: opener,
	})
}

// Names returns registered transport names in registration order
func Names() []string {
	names := make([]string, 0, len(registeredOpeners))
	for _, info := range registeredOpeners {
		names = append(names, info.Name)
	}
	return names
}

// Open opens a channel using the named transport.
// With name "auto" every registered transport is tried in registration order
// and the first one that finds the device wins.
func Open(name string, opts Options) (Channel, error) {
	if name == "" || name == "auto" {
		var errs []error
		for _, info := range registeredOpeners {
			ch, err := info.Opener(opts)
			if err == nil {
				return ch, nil
			}
			errs = append(errs, err)
		}
		if len(errs) == 0 {
			return nil, fmt.Errorf("no transports registered")
		}
		// A device that was found but failed to open takes precedence over not-found
		var failures []error
		for _, err := range errs {
			if !errors.Is(err, ErrDeviceNotFound) {
				failures = append(failures, err)
			}
		}
		if len(failures) > 0 {
			return nil, errors.Join(failures...)
		}
		notFound := &DeviceNotFoundError{Transport: "auto", VendorID: opts.VendorID, ProductID: opts.ProductID}
		return nil, errors.Join(append([]error{notFound}, errs...)...)
	}

	for _, info := range registeredOpeners {
		if info.Name == name {
			return info.Opener(opts)
		}
	}
	return nil, fmt.Errorf("unknown transport %q (available: %v)", name, Names())
}
