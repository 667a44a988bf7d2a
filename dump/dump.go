package dump

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/sergev/usbtool/usbtool"
)

// Chip is the part of usbtool.Chip used by the pipelines
type Chip interface {
	Num() int
	Info() (usbtool.Geometry, error)
	BadBlocks() ([]int, error)
	ReadBlock(block int, bufOffset uint32) error
	EraseBlock(block int) (bool, error)
	WriteBlock(block int, bufOffset uint32) (bool, error)
	MarkBlock(block int, mark uint32) error
}

// Staging is the part of usbtool.Buffer used by the pipelines
type Staging interface {
	Read(length int, offset uint32) ([]byte, error)
	Write(offset uint32, data []byte) (int, error)
}

// Progress is reported before every block and once more when the loop ends
type Progress struct {
	Block   int     // block about to be processed
	Total   int     // number of blocks in the run
	Percent float64 // 100 * Block / Total
	Done    bool    // set only on the final event; Block is then the number of blocks processed
}

// ProgressFunc receives progress events; it must return quickly
type ProgressFunc func(Progress)

type config struct {
	progress      ProgressFunc
	now           func() time.Time
	clearMarks    bool
	stopOnFailure bool
	limit         int
}

// Option configures a pipeline run
type Option func(*config)

// WithProgress sets a callback for progress events
func WithProgress(fn ProgressFunc) Option {
	return func(c *config) {
		c.progress = fn
	}
}

// WithClock sets the time source for the metadata timestamp
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// WithClearMarks makes Program mark every block good before erasing it
func WithClearMarks(clear bool) Option {
	return func(c *config) {
		c.clearMarks = clear
	}
}

// WithStopOnFailure makes Program and Erase stop at the first failed block
func WithStopOnFailure(stop bool) Option {
	return func(c *config) {
		c.stopOnFailure = stop
	}
}

// WithBlockLimit processes at most n blocks from the start of the chip.
// Zero or negative means the whole chip.
func WithBlockLimit(n int) Option {
	return func(c *config) {
		c.limit = n
	}
}

func newConfig(opts []Option) *config {
	c := &config{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// blocks returns the number of blocks a run covers on a chip of the given geometry
func (c *config) blocks(g usbtool.Geometry) int {
	total := g.BlockCount()
	if c.limit > 0 && c.limit < total {
		return c.limit
	}
	return total
}

func (c *config) report(block, total int) {
	if c.progress == nil {
		return
	}
	p := Progress{Block: block, Total: total}
	if total > 0 {
		p.Percent = 100 * float64(block) / float64(total)
	}
	c.progress(p)
}

// done reports the end of a run which processed blocks of total
func (c *config) done(blocks, total int) {
	if c.progress == nil {
		return
	}
	p := Progress{Block: blocks, Total: total, Percent: 100, Done: true}
	if total > 0 && blocks < total {
		p.Percent = 100 * float64(blocks) / float64(total)
	}
	c.progress(p)
}

// knownGeometry fetches the chip geometry and rejects chips the device cannot address
func knownGeometry(chip Chip) (usbtool.Geometry, error) {
	g, err := chip.Info()
	if err != nil {
		return g, fmt.Errorf("failed to query NAND%d: %w", chip.Num(), err)
	}
	if !g.Known {
		return g, &UnknownChipError{Chip: chip.Num(), Present: g.Present, ID: g.IDString()}
	}
	return g, nil
}

// FormatBadBlocks renders a bad block list for humans
func FormatBadBlocks(blocks []int) string {
	if len(blocks) == 0 {
		return "(none)"
	}
	s := make([]string, len(blocks))
	for i, b := range blocks {
		s[i] = strconv.Itoa(b)
	}
	return strings.Join(s, ", ")
}

// WriteMetadata writes the text preamble describing a dump
func WriteMetadata(w io.Writer, chip int, g usbtool.Geometry, badBlocks []int, when time.Time) error {
	_, err := fmt.Fprintf(w,
		"dump time:  %s\n"+
			"chip num:   %d\n"+
			"page size:  %d B\n"+
			"oob size:   %d B\n"+
			"block size: %d KB\n"+
			"chip size:  %d MB\n"+
			"bad blocks: %s\n",
		when.Format(time.ANSIC), chip, g.PageSize, g.SpareSize, g.BlockSize, g.ChipSize,
		FormatBadBlocks(badBlocks))
	if err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// Dump copies every block of the chip, bad or not, to sink in block order.
// Each block is read into the staging buffer at offset 0 and then fetched
// with its spare areas. The metadata preamble goes to meta, if not nil.
// A transfer error aborts the dump; data already written to sink stays there.
func Dump(chip Chip, staging Staging, meta, sink io.Writer, opts ...Option) error {
	c := newConfig(opts)

	g, err := knownGeometry(chip)
	if err != nil {
		return err
	}
	total := c.blocks(g)
	size := g.BlockTransferSize()

	if meta != nil {
		bad, err := chip.BadBlocks()
		if err != nil {
			return fmt.Errorf("failed to read bad block table of NAND%d: %w", chip.Num(), err)
		}
		bad = usbtool.TruncateBadBlocks(bad, g.BlockCount())
		if err := WriteMetadata(meta, chip.Num(), g, bad, c.now()); err != nil {
			return err
		}
	}

	glog.V(1).Infof("dumping NAND%d: %d blocks of %d bytes", chip.Num(), total, size)
	for block := 0; block < total; block++ {
		c.report(block, total)

		if err := chip.ReadBlock(block, 0); err != nil {
			return fmt.Errorf("failed to read block %d: %w", block, err)
		}
		data, err := staging.Read(size, 0)
		if err != nil {
			return fmt.Errorf("failed to fetch block %d: %w", block, err)
		}
		if len(data) < size {
			return fmt.Errorf("block %d: got %d bytes from buffer, expected %d", block, len(data), size)
		}
		if _, err := sink.Write(data[:size]); err != nil {
			return fmt.Errorf("failed to save block %d: %w", block, err)
		}
	}
	c.done(total, total)
	return nil
}
