// Package usbtooltest provides an in-memory programmer device
// which speaks the command language over a transport.Channel.
package usbtooltest

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sergev/usbtool/usbtool"
)

// Chip is a simulated NAND chip
type Chip struct {
	Geometry usbtool.Geometry
	Bad      []int            // blocks flagged in the bad block table
	Blocks   map[int][]byte   // block contents; unset blocks read as BlockPattern
	Fail     map[int]bool     // blocks whose erase and write report failure
	Marks    map[int]uint32   // last nand mark value per block
	Erased   map[int]int      // erase count per block
	Written  map[int][]byte   // data programmed per block
	Status   map[string]int16 // override status by "erase:N" or "write:N"
}

// NewChip returns a known chip with the given geometry
func NewChip(g usbtool.Geometry) *Chip {
	return &Chip{
		Geometry: g,
		Blocks:   make(map[int][]byte),
		Fail:     make(map[int]bool),
		Marks:    make(map[int]uint32),
		Erased:   make(map[int]int),
		Written:  make(map[int][]byte),
		Status:   make(map[string]int16),
	}
}

// Device simulates the programmer firmware
type Device struct {
	Memory   []byte                  // staging buffer
	Chips    [usbtool.MaxChips]*Chip // nil entries are absent chips
	Commands []string                // every command received, in order

	Accept   int   // bytes accepted per write, 0 = all
	MaxRead  int   // bytes returned per read, 0 = all requested
	ReadErr  error // returned by every read when set
	WriteErr error // returned by every write when set
	FailAt   int   // with WriteErr, fail only the command number FailAt (1-based)

	selected   int
	pending    int // payload bytes still expected after buffer write
	pendingOff int
	out        bytes.Buffer
	closed     bool
}

// NewDevice returns a device with a staging buffer of the given size
func NewDevice(bufferSize int) *Device {
	return &Device{
		Memory:   make([]byte, bufferSize),
		selected: -1,
	}
}

// BlockPattern returns deterministic contents for an unwritten block
func BlockPattern(chip, block, size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i ^ block*31 ^ chip*97)
	}
	return data
}

// Count returns how many received commands start with prefix
func (d *Device) Count(prefix string) int {
	n := 0
	for _, cmd := range d.Commands {
		if strings.HasPrefix(cmd, prefix) {
			n++
		}
	}
	return n
}

// Write accepts either a command or payload bytes of a pending buffer write
func (d *Device) Write(p []byte) (int, error) {
	if d.closed {
		return 0, io.ErrClosedPipe
	}
	if d.pending > 0 {
		n := len(p)
		if n > d.pending {
			n = d.pending
		}
		if d.Accept > 0 && n > d.Accept {
			n = d.Accept
		}
		copy(d.Memory[d.pendingOff:], p[:n])
		d.pendingOff += n
		d.pending -= n
		return n, nil
	}

	if d.WriteErr != nil && (d.FailAt == 0 || d.FailAt == len(d.Commands)+1) {
		d.Commands = append(d.Commands, string(p))
		return 0, d.WriteErr
	}
	d.Commands = append(d.Commands, string(p))
	if err := d.execute(strings.Fields(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read returns queued response bytes
func (d *Device) Read(p []byte) (int, error) {
	if d.closed {
		return 0, io.ErrClosedPipe
	}
	if d.ReadErr != nil {
		return 0, d.ReadErr
	}
	if d.out.Len() == 0 {
		return 0, errors.New("usbtooltest: read with no response pending")
	}
	limit := len(p)
	if d.MaxRead > 0 && limit > d.MaxRead {
		limit = d.MaxRead
	}
	return d.out.Read(p[:limit])
}

// Discard drops response bytes left unread, as a bus reset would
func (d *Device) Discard() {
	d.out.Reset()
	d.pending = 0
}

// Close marks the device as disconnected
func (d *Device) Close() error {
	d.closed = true
	return nil
}

func parseHex(tokens []string, count int) ([]int, error) {
	if len(tokens) != count {
		return nil, fmt.Errorf("expected %d arguments, got %d", count, len(tokens))
	}
	values := make([]int, count)
	for i, tok := range tokens {
		if len(tok) != 8 {
			return nil, fmt.Errorf("argument %q is not 8 hex digits", tok)
		}
		v, err := strconv.ParseUint(tok, 16, 32)
		if err != nil {
			return nil, err
		}
		values[i] = int(v)
	}
	return values, nil
}

func (d *Device) execute(tokens []string) error {
	if len(tokens) < 2 {
		return fmt.Errorf("usbtooltest: bad command %q", tokens)
	}
	verb := tokens[0] + " " + tokens[1]
	args := tokens[2:]
	switch verb {
	case "buffer write":
		v, err := parseHex(args, 2)
		if err != nil {
			return err
		}
		if err := d.checkSpan(v[0], v[1]); err != nil {
			return err
		}
		d.pendingOff, d.pending = v[0], v[1]
	case "buffer read":
		v, err := parseHex(args, 2)
		if err != nil {
			return err
		}
		if err := d.checkSpan(v[0], v[1]); err != nil {
			return err
		}
		d.out.Write(d.Memory[v[0] : v[0]+v[1]])
	case "nand select":
		v, err := parseHex(args, 1)
		if err != nil {
			return err
		}
		d.selected = v[0]
	case "nand info":
		if chip := d.chip(); chip != nil {
			d.out.Write(chip.Geometry.Encode())
		} else {
			d.out.Write(make([]byte, usbtool.GeometrySize))
		}
	case "nand bad":
		bitmap := make([]byte, usbtool.BadBlockMapSize)
		if chip := d.chip(); chip != nil {
			var err error
			bitmap, err = usbtool.EncodeBadBlocks(chip.Bad)
			if err != nil {
				return err
			}
		}
		d.out.Write(bitmap)
	case "nand read":
		v, err := parseHex(args, 2)
		if err != nil {
			return err
		}
		chip, size, err := d.activeChip()
		if err != nil {
			return err
		}
		if v[1]+size > len(d.Memory) {
			return fmt.Errorf("usbtooltest: block at 0x%x overruns buffer", v[1])
		}
		data, ok := chip.Blocks[v[0]]
		if !ok {
			data = BlockPattern(d.selected, v[0], size)
		}
		copy(d.Memory[v[1]:], data)
	case "nand erase":
		v, err := parseHex(args, 1)
		if err != nil {
			return err
		}
		chip, size, err := d.activeChip()
		if err != nil {
			return err
		}
		status := d.status(chip, "erase", v[0])
		if succeeded(status) {
			chip.Erased[v[0]]++
			chip.Blocks[v[0]] = bytes.Repeat([]byte{0xff}, size)
		}
		d.writeStatus(status)
	case "nand write":
		v, err := parseHex(args, 2)
		if err != nil {
			return err
		}
		chip, size, err := d.activeChip()
		if err != nil {
			return err
		}
		if v[1]+size > len(d.Memory) {
			return fmt.Errorf("usbtooltest: block at 0x%x overruns buffer", v[1])
		}
		status := d.status(chip, "write", v[0])
		if succeeded(status) {
			data := make([]byte, size)
			copy(data, d.Memory[v[1]:])
			chip.Blocks[v[0]] = data
			chip.Written[v[0]] = data
		}
		d.writeStatus(status)
	case "nand mark":
		v, err := parseHex(args, 2)
		if err != nil {
			return err
		}
		chip, _, err := d.activeChip()
		if err != nil {
			return err
		}
		chip.Marks[v[0]] = uint32(v[1])
	default:
		return fmt.Errorf("usbtooltest: unknown command %q", strings.Join(tokens, " "))
	}
	return nil
}

func (d *Device) checkSpan(offset, length int) error {
	if offset%2 != 0 || length%2 != 0 {
		return fmt.Errorf("usbtooltest: odd buffer access 0x%x+0x%x", offset, length)
	}
	if offset+length > len(d.Memory) {
		return fmt.Errorf("usbtooltest: buffer access 0x%x+0x%x beyond 0x%x", offset, length, len(d.Memory))
	}
	return nil
}

func (d *Device) chip() *Chip {
	if d.selected < 0 || d.selected >= len(d.Chips) {
		return nil
	}
	return d.Chips[d.selected]
}

func (d *Device) activeChip() (*Chip, int, error) {
	chip := d.chip()
	if chip == nil || !chip.Geometry.Known {
		return nil, 0, fmt.Errorf("usbtooltest: no usable chip selected (%d)", d.selected)
	}
	return chip, chip.Geometry.BlockTransferSize(), nil
}

func (d *Device) status(chip *Chip, op string, block int) int16 {
	if status, ok := chip.Status[fmt.Sprintf("%s:%d", op, block)]; ok {
		return status
	}
	if chip.Fail[block] {
		return 1
	}
	return 0
}

func succeeded(status int16) bool {
	return status != -1 && status&1 == 0
}

func (d *Device) writeStatus(status int16) {
	var buf [usbtool.StatusSize]byte
	binary.LittleEndian.PutUint16(buf[:], uint16(status))
	d.out.Write(buf[:])
}
