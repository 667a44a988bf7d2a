package usbtool

import (
	"fmt"

	"github.com/sergev/usbtool/command"
)

// Buffer is the device's staging memory.
// Nothing is cached on the host: every access is a round trip.
// The memory bus only handles even offsets and lengths,
// so odd values are rounded here and never reach the device.
type Buffer struct {
	session *Session
	size    uint32
}

// Size returns the capacity of the buffer in bytes
func (b *Buffer) Size() uint32 {
	return b.size
}

// span rounds offset down to even and clamps length to the buffer end,
// then rounds length up to even
func (b *Buffer) span(offset uint32, length int) (uint32, uint32) {
	offset &^= 1
	if offset >= b.size {
		return offset, 0
	}
	n := uint64(length)
	if avail := uint64(b.size - offset); n > avail {
		n = avail
	}
	n += n & 1
	return offset, uint32(n)
}

// Write copies data into the buffer at offset and returns the number of
// bytes transferred. Data past the end of the buffer is dropped;
// an odd length is padded with a zero byte.
func (b *Buffer) Write(offset uint32, data []byte) (int, error) {
	offset, length := b.span(offset, len(data))
	if length == 0 {
		return 0, nil
	}

	payload := data
	if int(length) != len(data) {
		payload = make([]byte, length)
		copy(payload, data)
	}

	err := b.session.Command(command.BufferWrite(offset, length))
	if err != nil {
		return 0, err
	}
	err = b.session.send(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to write %d bytes to buffer at 0x%x: %w", length, offset, err)
	}
	return int(length), nil
}

// Read returns length bytes of the buffer starting at offset.
// Length is clamped to the buffer end and rounded up to even,
// so the result may be one byte longer than requested.
func (b *Buffer) Read(length int, offset uint32) ([]byte, error) {
	if length < 0 {
		return nil, fmt.Errorf("negative read length %d", length)
	}
	offset, n := b.span(offset, length)
	if n == 0 {
		return []byte{}, nil
	}

	err := b.session.Command(command.BufferRead(offset, n))
	if err != nil {
		return nil, err
	}
	data, err := b.session.recv(int(n))
	if err != nil {
		return nil, fmt.Errorf("failed to read %d bytes from buffer at 0x%x: %w", n, offset, err)
	}
	return data, nil
}
