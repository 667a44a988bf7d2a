package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/google/gousb"
)

// USBChannel talks to the device over a pair of bulk endpoints
type USBChannel struct {
	ctx     *gousb.Context
	dev     *gousb.Device
	intf    *gousb.Interface
	done    func()
	bulkOut *gousb.OutEndpoint
	bulkIn  *gousb.InEndpoint
	timeout time.Duration
}

// OpenUSB opens the first device matching the vendor and product ID,
// claims its default interface and locates the bulk endpoints.
func OpenUSB(opts Options) (Channel, error) {
	ctx := gousb.NewContext()

	// Compare as uint16 since DeviceDesc.Vendor/Product are gousb.ID
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == opts.VendorID && uint16(desc.Product) == opts.ProductID
	})
	if len(devs) == 0 {
		ctx.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
		}
		return nil, &DeviceNotFoundError{Transport: "USB", VendorID: opts.VendorID, ProductID: opts.ProductID}
	}

	// Use the first matching device
	dev := devs[0]
	for i := 1; i < len(devs); i++ {
		devs[i].Close()
	}

	if err := dev.SetAutoDetach(true); err != nil {
		glog.Warningf("failed to enable kernel driver auto-detach: %v", err)
	}

	// Claim the first interface of the active configuration
	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("failed to claim default interface: %w", err)
	}

	ch := &USBChannel{
		ctx:     ctx,
		dev:     dev,
		intf:    intf,
		done:    done,
		timeout: opts.Timeout,
	}

	// Pick the first bulk endpoint in each direction
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn && ch.bulkIn == nil {
			ch.bulkIn, err = intf.InEndpoint(ep.Number)
		} else if ep.Direction == gousb.EndpointDirectionOut && ch.bulkOut == nil {
			ch.bulkOut, err = intf.OutEndpoint(ep.Number)
		}
		if err != nil {
			ch.Close()
			return nil, fmt.Errorf("failed to open endpoint %s: %w", ep, err)
		}
	}
	if ch.bulkOut == nil {
		ch.Close()
		return nil, fmt.Errorf("bulk out endpoint not found on %s", intf)
	}
	if ch.bulkIn == nil {
		ch.Close()
		return nil, fmt.Errorf("bulk in endpoint not found on %s", intf)
	}

	glog.V(1).Infof("opened USB device %04x:%04x, out %s, in %s",
		opts.VendorID, opts.ProductID, ch.bulkOut, ch.bulkIn)
	return ch, nil
}

func (c *USBChannel) context() (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.Background(), func() {}
	}
	return context.WithTimeout(context.Background(), c.timeout)
}

// Write performs one bulk OUT transfer
func (c *USBChannel) Write(p []byte) (int, error) {
	ctx, cancel := c.context()
	defer cancel()
	return c.bulkOut.WriteContext(ctx, p)
}

// Read performs one bulk IN transfer of up to len(p) bytes
func (c *USBChannel) Read(p []byte) (int, error) {
	ctx, cancel := c.context()
	defer cancel()
	return c.bulkIn.ReadContext(ctx, p)
}

// Close releases the interface and closes the USB connection
func (c *USBChannel) Close() error {
	if c.done != nil {
		c.done()
		c.done = nil
	}
	if c.dev != nil {
		c.dev.Close()
		c.dev = nil
	}
	if c.ctx != nil {
		err := c.ctx.Close()
		c.ctx = nil
		return err
	}
	return nil
}
