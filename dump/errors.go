package dump

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is
var (
	ErrUnknownChip = errors.New("unknown chip")
	ErrEraseFailed = errors.New("erase failed")
	ErrWriteFailed = errors.New("write failed")
)

// UnknownChipError indicates that the device does not recognize the chip ID,
// so its geometry is not usable
type UnknownChipError struct {
	Chip    int
	Present bool
	ID      string
}

func (e *UnknownChipError) Error() string {
	if !e.Present {
		return fmt.Sprintf("NAND%d: no chip present", e.Chip)
	}
	return fmt.Sprintf("NAND%d: unknown chip with ID %s", e.Chip, e.ID)
}

func (e *UnknownChipError) Unwrap() error {
	return ErrUnknownChip
}

// Op names a block operation
type Op string

const (
	OpErase Op = "erase"
	OpWrite Op = "write"
)

// BlockError reports a block the device failed to erase or program
type BlockError struct {
	Chip  int
	Block int
	Op    Op
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("NAND%d: %s of block %d failed", e.Chip, e.Op, e.Block)
}

func (e *BlockError) Unwrap() error {
	if e.Op == OpErase {
		return ErrEraseFailed
	}
	return ErrWriteFailed
}
