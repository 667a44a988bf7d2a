package usbtool

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// GeometrySize is the length of the nand info record
const GeometrySize = 20

// Geometry describes a NAND chip as reported by nand info
type Geometry struct {
	Present        bool    // A chip answers on this chip select
	Known          bool    // The device recognizes the chip ID
	ID             [8]byte // Raw READ ID bytes
	BadBlockMarker uint8   // Offset of the bad block marker in the spare area
	Planes         uint8
	PageSize       uint16 // bytes
	SpareSize      uint16 // bytes of out-of-band area per page
	BlockSize      uint16 // KiB
	ChipSize       uint16 // MiB
}

// DecodeGeometry parses the 20-byte nand info record
func DecodeGeometry(data []byte) (Geometry, error) {
	var g Geometry
	if len(data) != GeometrySize {
		return g, fmt.Errorf("geometry record is %d bytes, expected %d", len(data), GeometrySize)
	}

	// Packed little-endian layout:
	// byte 0: present (bool)
	// byte 1: known (bool)
	// bytes 2-9: id
	// byte 10: bad block marker position
	// byte 11: number of planes
	// bytes 12-13: page size (B)
	// bytes 14-15: spare size (B)
	// bytes 16-17: block size (KiB)
	// bytes 18-19: chip size (MiB)
	g.Present = data[0] != 0
	g.Known = data[1] != 0
	copy(g.ID[:], data[2:10])
	g.BadBlockMarker = data[10]
	g.Planes = data[11]
	g.PageSize = binary.LittleEndian.Uint16(data[12:14])
	g.SpareSize = binary.LittleEndian.Uint16(data[14:16])
	g.BlockSize = binary.LittleEndian.Uint16(data[16:18])
	g.ChipSize = binary.LittleEndian.Uint16(data[18:20])
	return g, nil
}

// Encode returns the record as the device would send it
func (g Geometry) Encode() []byte {
	data := make([]byte, GeometrySize)
	if g.Present {
		data[0] = 1
	}
	if g.Known {
		data[1] = 1
	}
	copy(data[2:10], g.ID[:])
	data[10] = g.BadBlockMarker
	data[11] = g.Planes
	binary.LittleEndian.PutUint16(data[12:14], g.PageSize)
	binary.LittleEndian.PutUint16(data[14:16], g.SpareSize)
	binary.LittleEndian.PutUint16(data[16:18], g.BlockSize)
	binary.LittleEndian.PutUint16(data[18:20], g.ChipSize)
	return data
}

// IDString returns the chip ID in hex
func (g Geometry) IDString() string {
	return hex.EncodeToString(g.ID[:])
}

// BlockCount returns the number of erase blocks, or 0 for an unknown chip
func (g Geometry) BlockCount() int {
	if !g.Known || g.BlockSize == 0 {
		return 0
	}
	return int(g.ChipSize) * 1024 / int(g.BlockSize)
}

// PagesPerBlock returns the number of pages in a block, or 0 for an unknown chip
func (g Geometry) PagesPerBlock() int {
	if !g.Known || g.PageSize == 0 {
		return 0
	}
	return int(g.BlockSize) * 1024 / int(g.PageSize)
}

// BlockTransferSize returns the bytes moved per block: main data of all
// pages plus their spare areas. Zero for an unknown chip.
func (g Geometry) BlockTransferSize() int {
	if !g.Known {
		return 0
	}
	return int(g.BlockSize)*1024 + int(g.SpareSize)*g.PagesPerBlock()
}
