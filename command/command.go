package command

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Command verbs understood by the device
const (
	VerbBuffer = "buffer"
	VerbNand   = "nand"
)

// ErrInvalidArgumentType is matched by errors.Is for any argument
// that is neither a string nor an unsigned integer.
var ErrInvalidArgumentType = errors.New("invalid argument type")

// InvalidArgumentTypeError reports the position and value of a rejected argument
type InvalidArgumentTypeError struct {
	Index int
	Value any
}

func (e *InvalidArgumentTypeError) Error() string {
	return fmt.Sprintf("argument %d: invalid type %T (value %v)", e.Index, e.Value, e.Value)
}

func (e *InvalidArgumentTypeError) Unwrap() error {
	return ErrInvalidArgumentType
}

// Arg is one command argument.
// Only Text and Uint implement it.
type Arg interface {
	token() string
}

// Text is a literal token, sent as is
type Text string

func (t Text) token() string {
	return string(t)
}

// Uint is an unsigned integer, sent as 8 lowercase hex digits
type Uint uint32

func (u Uint) token() string {
	return fmt.Sprintf("%08x", uint32(u))
}

// Command is an ASCII command line for the device.
// Tokens are separated by single spaces; there is no terminator.
type Command string

// Build joins the verb and arguments into a command
func Build(verb string, args ...Arg) Command {
	tokens := make([]string, 0, len(args)+1)
	tokens = append(tokens, verb)
	for _, arg := range args {
		tokens = append(tokens, arg.token())
	}
	return Command(strings.Join(tokens, " "))
}

// Args converts loosely typed values into command arguments.
// Strings become Text, integers in range 0..0xffffffff become Uint.
func Args(values ...any) ([]Arg, error) {
	args := make([]Arg, 0, len(values))
	for i, v := range values {
		arg, ok := toArg(v)
		if !ok {
			return nil, &InvalidArgumentTypeError{Index: i, Value: v}
		}
		args = append(args, arg)
	}
	return args, nil
}

func toArg(v any) (Arg, bool) {
	switch x := v.(type) {
	case Arg:
		return x, true
	case string:
		return Text(x), true
	case uint8:
		return Uint(x), true
	case uint16:
		return Uint(x), true
	case uint32:
		return Uint(x), true
	case uint:
		return fromUint64(uint64(x))
	case uint64:
		return fromUint64(x)
	case int:
		return fromInt64(int64(x))
	case int8:
		return fromInt64(int64(x))
	case int16:
		return fromInt64(int64(x))
	case int32:
		return fromInt64(int64(x))
	case int64:
		return fromInt64(x)
	}
	return nil, false
}

func fromUint64(v uint64) (Arg, bool) {
	if v > math.MaxUint32 {
		return nil, false
	}
	return Uint(v), true
}

func fromInt64(v int64) (Arg, bool) {
	if v < 0 {
		return nil, false
	}
	return fromUint64(uint64(v))
}

// String returns the command line
func (c Command) String() string {
	return string(c)
}

// Bytes returns the wire form of the command
func (c Command) Bytes() []byte {
	return []byte(c)
}

// BufferWrite announces a write of length bytes into the staging buffer at offset
func BufferWrite(offset, length uint32) Command {
	return Build(VerbBuffer, Text("write"), Uint(offset), Uint(length))
}

// BufferRead requests length bytes of the staging buffer from offset
func BufferRead(offset, length uint32) Command {
	return Build(VerbBuffer, Text("read"), Uint(offset), Uint(length))
}

// NandSelect makes chip the target of the following nand commands
func NandSelect(chip uint32) Command {
	return Build(VerbNand, Text("select"), Uint(chip))
}

// NandInfo requests the 20-byte geometry record
func NandInfo() Command {
	return Build(VerbNand, Text("info"))
}

// NandBad requests the 1024-byte bad block bitmap
func NandBad() Command {
	return Build(VerbNand, Text("bad"))
}

// NandRead copies a block into the staging buffer at offset
func NandRead(block, offset uint32) Command {
	return Build(VerbNand, Text("read"), Uint(block), Uint(offset))
}

// NandErase erases a block
func NandErase(block uint32) Command {
	return Build(VerbNand, Text("erase"), Uint(block))
}

// NandWrite programs a block from the staging buffer at offset
func NandWrite(block, offset uint32) Command {
	return Build(VerbNand, Text("write"), Uint(block), Uint(offset))
}

// NandMark sets the bad block table entry of a block
func NandMark(block, mark uint32) Command {
	return Build(VerbNand, Text("mark"), Uint(block), Uint(mark))
}
