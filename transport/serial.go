package transport

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const serialBaudRate = 115200

// SerialChannel talks to firmware builds which expose a CDC-ACM port
// instead of raw bulk endpoints
type SerialChannel struct {
	port         serial.Port
	serialNumber string
	timeout      time.Duration
}

// OpenSerial finds a serial port with matching VID/PID and opens it
func OpenSerial(opts Options) (Channel, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	for _, port := range ports {
		if !matchPort(port, opts.VendorID, opts.ProductID) {
			continue
		}
		ch, err := openSerialPort(port, opts.Timeout)
		if err != nil {
			glog.Warningf("%v", err)
			continue // Try next port
		}
		return ch, nil
	}
	return nil, &DeviceNotFoundError{Transport: "serial", VendorID: opts.VendorID, ProductID: opts.ProductID}
}

func matchPort(port *enumerator.PortDetails, vendorID, productID uint16) bool {
	if !port.IsUSB {
		return false
	}
	portVID, err := strconv.ParseUint(port.VID, 16, 16)
	if err != nil {
		return false
	}
	portPID, err := strconv.ParseUint(port.PID, 16, 16)
	if err != nil {
		return false
	}
	return uint16(portVID) == vendorID && uint16(portPID) == productID
}

func openSerialPort(portDetails *enumerator.PortDetails, timeout time.Duration) (*SerialChannel, error) {
	mode := &serial.Mode{
		BaudRate: serialBaudRate,
	}
	port, err := serial.Open(portDetails.Name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portDetails.Name, err)
	}

	readTimeout := serial.NoTimeout
	if timeout > 0 {
		readTimeout = timeout
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", portDetails.Name, err)
	}

	glog.V(1).Infof("opened serial port %s (serial number %s)", portDetails.Name, portDetails.SerialNumber)
	return &SerialChannel{
		port:         port,
		serialNumber: portDetails.SerialNumber,
		timeout:      timeout,
	}, nil
}

// Write sends bytes to the port
func (c *SerialChannel) Write(p []byte) (int, error) {
	return c.port.Write(p)
}

// Read fills p completely, since a serial port has no transfer framing.
// A read timeout surfaces as an error with the bytes gathered so far.
func (c *SerialChannel) Read(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := c.port.Read(p[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			// Zero bytes without error means the read timeout expired
			return total, fmt.Errorf("serial read timeout after %v: %w", c.timeout, io.ErrUnexpectedEOF)
		}
	}
	return total, nil
}

// SerialNumber returns the USB serial number of the port
func (c *SerialChannel) SerialNumber() string {
	return c.serialNumber
}

// Close closes the serial port
func (c *SerialChannel) Close() error {
	return c.port.Close()
}
