package dump

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/golang/glog"
)

// Report lists the outcome of a Program or Erase run
type Report struct {
	Chip      int
	Blocks    int           // blocks processed
	Failures  []*BlockError // blocks the device failed to erase or program
	Truncated bool          // the image was larger than the chip
}

// Err joins all block failures, or returns nil when there were none
func (r *Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

func (r *Report) fail(block int, op Op) *BlockError {
	e := &BlockError{Chip: r.Chip, Block: block, Op: op}
	r.Failures = append(r.Failures, e)
	glog.Warningf("%v", e)
	return e
}

// Program writes an image to the chip block by block: each block is erased,
// copied into the staging buffer at offset 0 and programmed from there.
// The image holds main data plus spare areas per block, as produced by Dump.
// A short final block is padded with 0xff, the erased state of flash.
// Failed erases and writes are collected in the report and do not stop
// the run unless WithStopOnFailure is set; transfer errors abort it.
func Program(chip Chip, staging Staging, src io.Reader, opts ...Option) (*Report, error) {
	c := newConfig(opts)

	g, err := knownGeometry(chip)
	if err != nil {
		return nil, err
	}
	total := c.blocks(g)
	size := g.BlockTransferSize()
	report := &Report{Chip: chip.Num()}

	glog.V(1).Infof("programming NAND%d: up to %d blocks of %d bytes", chip.Num(), total, size)
	data := make([]byte, size)
	for block := 0; block < total; block++ {
		n, err := io.ReadFull(src, data)
		if err == io.EOF {
			break
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return report, fmt.Errorf("failed to read image for block %d: %w", block, err)
		}
		if n < size {
			copy(data[n:], bytes.Repeat([]byte{0xff}, size-n))
		}

		c.report(block, total)

		if c.clearMarks {
			if err := chip.MarkBlock(block, 0); err != nil {
				return report, fmt.Errorf("failed to mark block %d: %w", block, err)
			}
		}

		ok, err := chip.EraseBlock(block)
		if err != nil {
			return report, fmt.Errorf("failed to erase block %d: %w", block, err)
		}
		if !ok {
			e := report.fail(block, OpErase)
			if c.stopOnFailure {
				return report, e
			}
		}

		if _, err := staging.Write(0, data); err != nil {
			return report, fmt.Errorf("failed to load block %d: %w", block, err)
		}
		ok, err = chip.WriteBlock(block, 0)
		if err != nil {
			return report, fmt.Errorf("failed to write block %d: %w", block, err)
		}
		if !ok {
			e := report.fail(block, OpWrite)
			if c.stopOnFailure {
				return report, e
			}
		}
		report.Blocks++

		if n < size {
			break
		}
	}

	// Anything left in the image does not fit on the chip
	if report.Blocks == total {
		var probe [1]byte
		if n, _ := src.Read(probe[:]); n > 0 {
			report.Truncated = true
		}
	}
	c.done(report.Blocks, total)
	return report, nil
}

// Erase erases every block of the chip, collecting failures in the report
func Erase(chip Chip, opts ...Option) (*Report, error) {
	c := newConfig(opts)

	g, err := knownGeometry(chip)
	if err != nil {
		return nil, err
	}
	total := c.blocks(g)
	report := &Report{Chip: chip.Num()}

	for block := 0; block < total; block++ {
		c.report(block, total)

		ok, err := chip.EraseBlock(block)
		if err != nil {
			return report, fmt.Errorf("failed to erase block %d: %w", block, err)
		}
		if !ok {
			e := report.fail(block, OpErase)
			if c.stopOnFailure {
				return report, e
			}
		}
		report.Blocks++
	}
	c.done(total, total)
	return report, nil
}
