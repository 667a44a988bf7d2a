package usbtool

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/sergev/usbtool/command"
	"github.com/sergev/usbtool/transport"
)

const (
	VendorID  = 0x0000 // Placeholder, override per real hardware
	ProductID = 0x7f21

	DefaultBufferSize = 16 * 1024 * 1024 // On-device staging memory
	MaxChips          = 2                // Chip selects on the reference board
)

// NoChip is the chip selection before the first nand select
const NoChip = -1

// Session is one controller of a device: it owns the channel and
// remembers which chip is currently selected, so that repeated
// operations on the same chip do not resend nand select.
// A Session is not safe for concurrent use.
type Session struct {
	ch         transport.Channel
	chunkSize  int
	bufferSize uint32
	selected   int
}

// Option configures a Session
type Option func(*Session)

// WithChunkSize sets the largest bulk write issued for a payload
func WithChunkSize(size int) Option {
	return func(s *Session) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithBufferSize sets the capacity of the staging buffer.
// The size is rounded down to even.
func WithBufferSize(size uint32) Option {
	return func(s *Session) {
		if size >= 2 {
			s.bufferSize = size &^ 1
		}
	}
}

// NewSession starts a session on an open channel
func NewSession(ch transport.Channel, opts ...Option) *Session {
	s := &Session{
		ch:         ch,
		chunkSize:  transport.DefaultChunkSize,
		bufferSize: DefaultBufferSize,
		selected:   NoChip,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Selected returns the index of the currently selected chip, or NoChip
func (s *Session) Selected() int {
	return s.selected
}

// Command sends a command line to the device.
// The device splits commands by transfer, so a command is never chunked.
func (s *Session) Command(cmd command.Command) error {
	glog.V(2).Infof("command: %s", cmd)
	data := cmd.Bytes()
	if err := transport.Send(s.ch, data, max(s.chunkSize, len(data))); err != nil {
		return fmt.Errorf("failed to send command %q: %w", cmd, err)
	}
	return nil
}

// send transfers a raw payload following a command
func (s *Session) send(payload []byte) error {
	return transport.Send(s.ch, payload, s.chunkSize)
}

// recv reads a fixed-size response
func (s *Session) recv(length int) ([]byte, error) {
	return transport.Recv(s.ch, length)
}

// query sends a command and reads its fixed-size response
func (s *Session) query(cmd command.Command, length int) ([]byte, error) {
	if err := s.Command(cmd); err != nil {
		return nil, err
	}
	data, err := s.recv(length)
	if err != nil {
		return nil, fmt.Errorf("failed to read response to %q: %w", cmd, err)
	}
	return data, nil
}

// selectChip makes chip the current one, unless it already is
func (s *Session) selectChip(chip int) error {
	if s.selected == chip {
		return nil
	}
	// The device state is unknown after a failed select
	s.selected = NoChip
	if err := s.Command(command.NandSelect(uint32(chip))); err != nil {
		return err
	}
	s.selected = chip
	return nil
}

// Buffer returns the staging buffer of the device
func (s *Session) Buffer() *Buffer {
	return &Buffer{session: s, size: s.bufferSize}
}

// Chip returns a proxy for the NAND chip with the given index
func (s *Session) Chip(num int) *Chip {
	return &Chip{session: s, num: num}
}

// Close closes the underlying channel
func (s *Session) Close() error {
	return s.ch.Close()
}
