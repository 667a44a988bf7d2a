package usbtool

import "fmt"

const (
	BadBlockMapSize = 1024 // bytes returned by nand bad
	MaxBlocks       = 4096 // two bits per block
)

// DecodeBadBlocks returns indices of blocks whose 2-bit field is non-zero.
// Block 0 is in the low bits of byte 0.
// The result is not bounded by the chip size.
func DecodeBadBlocks(data []byte) []int {
	var bad []int
	block := 0
	for _, b := range data {
		for i := 0; i < 4; i++ {
			if b&(0x3<<(i*2)) != 0 {
				bad = append(bad, block)
			}
			block++
		}
	}
	return bad
}

// EncodeBadBlocks builds a bitmap with the given blocks marked bad
func EncodeBadBlocks(blocks []int) ([]byte, error) {
	data := make([]byte, BadBlockMapSize)
	for _, block := range blocks {
		if block < 0 || block >= MaxBlocks {
			return nil, fmt.Errorf("block %d out of range 0-%d", block, MaxBlocks-1)
		}
		data[block/4] |= 0x1 << ((block % 4) * 2)
	}
	return data, nil
}

// TruncateBadBlocks drops entries at or beyond blockCount
func TruncateBadBlocks(blocks []int, blockCount int) []int {
	var result []int
	for _, block := range blocks {
		if block < blockCount {
			result = append(result, block)
		}
	}
	return result
}
