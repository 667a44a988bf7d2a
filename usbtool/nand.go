package usbtool

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sergev/usbtool/command"
)

// StatusSize is the length of the erase/write status response
const StatusSize = 2

// Status value reported when the device could not run the operation at all
const statusFailed = -1

// Sentinel errors for errors.Is
var (
	ErrChipNotPresent = errors.New("chip not present")
	ErrOutOfRange     = errors.New("index out of range")
)

// RangeError reports a chip or block index the device cannot address.
// Such indices are rejected before anything is sent.
type RangeError struct {
	What  string // "chip" or "block"
	Index int
	Limit int // valid indices are 0..Limit-1
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %d out of range 0-%d", e.What, e.Index, e.Limit-1)
}

func (e *RangeError) Unwrap() error {
	return ErrOutOfRange
}

func checkBlock(block int) error {
	if block < 0 || block >= MaxBlocks {
		return &RangeError{What: "block", Index: block, Limit: MaxBlocks}
	}
	return nil
}

// Chip is a proxy for one NAND chip attached to the device.
// Every operation selects the chip first; the session skips
// the select when the chip is already current.
type Chip struct {
	session  *Session
	num      int
	geometry *Geometry // cached nand info, nil until the first successful query
}

// DecodeStatus parses the status of an erase or write.
// The operation succeeded unless the value is -1 or has the error bit (bit 0) set.
func DecodeStatus(data []byte) (int16, bool, error) {
	if len(data) != StatusSize {
		return 0, false, fmt.Errorf("status is %d bytes, expected %d", len(data), StatusSize)
	}
	status := int16(binary.LittleEndian.Uint16(data))
	return status, status != statusFailed && status&1 == 0, nil
}

// Num returns the chip index
func (c *Chip) Num() int {
	return c.num
}

func (c *Chip) selectChip() error {
	if c.num < 0 || c.num >= MaxChips {
		return &RangeError{What: "chip", Index: c.num, Limit: MaxChips}
	}
	if c.geometry != nil && !c.geometry.Present {
		return fmt.Errorf("NAND%d: %w", c.num, ErrChipNotPresent)
	}
	if err := c.session.selectChip(c.num); err != nil {
		return fmt.Errorf("failed to select NAND%d: %w", c.num, err)
	}
	return nil
}

// Info returns the chip geometry.
// The record is fetched once and cached for the lifetime of the proxy.
func (c *Chip) Info() (Geometry, error) {
	if c.geometry != nil {
		return *c.geometry, nil
	}
	if err := c.selectChip(); err != nil {
		return Geometry{}, err
	}

	data, err := c.session.query(command.NandInfo(), GeometrySize)
	if err != nil {
		return Geometry{}, err
	}
	g, err := DecodeGeometry(data)
	if err != nil {
		return Geometry{}, err
	}
	c.geometry = &g
	return g, nil
}

// Forget drops the cached geometry and forces the next operation
// to select the chip again, e.g. after the chip was swapped.
func (c *Chip) Forget() {
	c.geometry = nil
	if c.session.selected == c.num {
		c.session.selected = NoChip
	}
}

// BadBlocks returns the indices of blocks marked bad in the device's table,
// in ascending order. The bitmap always covers 4096 blocks; use
// TruncateBadBlocks to drop indices beyond the chip size.
func (c *Chip) BadBlocks() ([]int, error) {
	if err := c.selectChip(); err != nil {
		return nil, err
	}
	data, err := c.session.query(command.NandBad(), BadBlockMapSize)
	if err != nil {
		return nil, err
	}
	return DecodeBadBlocks(data), nil
}

// ReadBlock makes the device copy a block into its staging buffer at bufOffset.
// There is no response; fetch the data with Buffer.Read.
func (c *Chip) ReadBlock(block int, bufOffset uint32) error {
	if err := checkBlock(block); err != nil {
		return err
	}
	if err := c.selectChip(); err != nil {
		return err
	}
	return c.session.Command(command.NandRead(uint32(block), bufOffset))
}

// EraseBlock erases a block. A false result with nil error means
// the device reported an erase failure for this block.
func (c *Chip) EraseBlock(block int) (bool, error) {
	if err := checkBlock(block); err != nil {
		return false, err
	}
	if err := c.selectChip(); err != nil {
		return false, err
	}
	return c.status(command.NandErase(uint32(block)))
}

// WriteBlock programs a block from the staging buffer at bufOffset,
// which must already hold the block data.
// A false result with nil error means the device reported a write failure.
func (c *Chip) WriteBlock(block int, bufOffset uint32) (bool, error) {
	if err := checkBlock(block); err != nil {
		return false, err
	}
	if err := c.selectChip(); err != nil {
		return false, err
	}
	return c.status(command.NandWrite(uint32(block), bufOffset))
}

// MarkBlock sets the entry of a block in the device's bad block table:
// 0 marks the block good, other values mark it bad
func (c *Chip) MarkBlock(block int, mark uint32) error {
	if err := checkBlock(block); err != nil {
		return err
	}
	if err := c.selectChip(); err != nil {
		return err
	}
	return c.session.Command(command.NandMark(uint32(block), mark))
}

func (c *Chip) status(cmd command.Command) (bool, error) {
	data, err := c.session.query(cmd, StatusSize)
	if err != nil {
		return false, err
	}
	_, ok, err := DecodeStatus(data)
	return ok, err
}
