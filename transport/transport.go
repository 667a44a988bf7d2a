package transport

import (
	"errors"
	"fmt"
	"io"

	"github.com/golang/glog"
)

// DefaultChunkSize is the largest single bulk write issued by Send.
const DefaultChunkSize = 64 * 1024

// Number of consecutive writes accepting zero bytes before Send gives up
const maxZeroWrites = 8

// Channel is a full-duplex ordered byte stream to the device.
// Write returns the number of bytes actually accepted.
// Read blocks until len(p) bytes are available, a transport-sized
// packet arrives, or the transport faults.
type Channel interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Close() error
}

// Sentinel errors for errors.Is
var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrChannelWrite   = errors.New("channel write error")
	ErrChannelRead    = errors.New("channel read error")
	ErrShortRead      = errors.New("short read")
)

// DeviceNotFoundError is returned when no device with the given identity is attached
type DeviceNotFoundError struct {
	Transport string
	VendorID  uint16
	ProductID uint16
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("%s device not found (VID=0x%04X PID=0x%04X)", e.Transport, e.VendorID, e.ProductID)
}

func (e *DeviceNotFoundError) Unwrap() error {
	return ErrDeviceNotFound
}

// ChannelWriteError reports a transport fault while sending a payload
type ChannelWriteError struct {
	Offset int // bytes accepted before the fault
	Err    error
}

func (e *ChannelWriteError) Error() string {
	return fmt.Sprintf("channel write failed at offset %d: %v", e.Offset, e.Err)
}

func (e *ChannelWriteError) Unwrap() []error {
	return []error{ErrChannelWrite, e.Err}
}

// ChannelReadError reports a transport fault while receiving a response
type ChannelReadError struct {
	Want int
	Err  error
}

func (e *ChannelReadError) Error() string {
	return fmt.Sprintf("channel read of %d bytes failed: %v", e.Want, e.Err)
}

func (e *ChannelReadError) Unwrap() []error {
	return []error{ErrChannelRead, e.Err}
}

// ShortReadError is returned when the device sent fewer bytes than a fixed-size record needs
type ShortReadError struct {
	Want int
	Got  int
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("short read: expected %d bytes, got %d", e.Want, e.Got)
}

func (e *ShortReadError) Unwrap() error {
	return ErrShortRead
}

// Send writes the whole payload to the channel in chunks of at most chunkSize bytes.
// Each chunk starts at the number of bytes accepted so far, so partial
// writes are resumed rather than skipped.
func Send(ch Channel, payload []byte, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	written := 0
	zeroWrites := 0
	for written < len(payload) {
		end := written + chunkSize
		if end > len(payload) {
			end = len(payload)
		}

		n, err := ch.Write(payload[written:end])
		if n < 0 || n > end-written {
			return &ChannelWriteError{Offset: written, Err: fmt.Errorf("channel accepted %d of %d bytes", n, end-written)}
		}
		if err != nil {
			return &ChannelWriteError{Offset: written + n, Err: err}
		}
		if glog.V(3) {
			glog.Infof("bulk out: %d bytes at offset %d (%d accepted)", end-written, written, n)
		}

		if n == 0 {
			zeroWrites++
			if zeroWrites >= maxZeroWrites {
				return &ChannelWriteError{Offset: written, Err: io.ErrNoProgress}
			}
			continue
		}
		zeroWrites = 0
		written += n
	}
	return nil
}

// Recv issues a single read for exactly length bytes.
// Every response of the device is a fixed-size record, so anything shorter is an error.
func Recv(ch Channel, length int) ([]byte, error) {
	if length <= 0 {
		return []byte{}, nil
	}

	buf := make([]byte, length)
	n, err := ch.Read(buf)
	if n < length && err != nil {
		return nil, &ChannelReadError{Want: length, Err: err}
	}
	if glog.V(3) {
		glog.Infof("bulk in: %d of %d bytes", n, length)
	}
	if n < length {
		return nil, &ShortReadError{Want: length, Got: n}
	}
	return buf[:length], nil
}
