package storage

import (
	"encoding/binary"
	"math/bits"

	"github.com/woqer/Database-from-Scratch/common"
)

// Bitmap is a growable bit set backed by 64-bit words. Scans work a word at a time to skip full blocks
// of set bits. Tables use it to track which record slots are occupied.
type Bitmap struct {
	words   []uint64
	numBits int
}

// NewBitmap returns a bitmap of numBits cleared bits.
func NewBitmap(numBits int) Bitmap {
	common.Assert(numBits >= 0, "negative bitmap size")
	return Bitmap{
		words:   make([]uint64, (numBits+63)/64),
		numBits: numBits,
	}
}

// Len returns the number of addressable bits.
func (b *Bitmap) Len() int {
	return b.numBits
}

// Grow extends the bitmap to numBits bits; new bits are cleared. Shrinking is not supported.
func (b *Bitmap) Grow(numBits int) {
	if numBits <= b.numBits {
		return
	}
	numWords := (numBits + 63) / 64
	for len(b.words) < numWords {
		b.words = append(b.words, 0)
	}
	b.numBits = numBits
}

// SetBit sets the bit at index i to the given value.
// Returns the previous value of the bit.
func (b *Bitmap) SetBit(i int, on bool) (originalValue bool) {
	common.Assert(i >= 0 && i < b.numBits, "indexing out of bounds")
	wordIdx := i / 64
	bitIdx := uint(i % 64)
	mask := uint64(1) << bitIdx

	ptr := &b.words[wordIdx]
	originalValue = (*ptr & mask) != 0
	if on {
		*ptr |= mask
	} else {
		*ptr &^= mask
	}
	return originalValue
}

// LoadBit returns the value of the bit at index i.
func (b *Bitmap) LoadBit(i int) bool {
	common.Assert(i >= 0 && i < b.numBits, "indexing out of bounds")
	wordIdx := i / 64
	bitIdx := uint(i % 64)
	return (b.words[wordIdx] & (1 << bitIdx)) != 0
}

// Count returns the number of set bits.
func (b *Bitmap) Count() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// FindFirstZero searches for the first bit set to 0 (false) in the bitmap.
// It begins the search at startHint and scans to the end of the bitmap.
// If no zero bit is found, it wraps around and scans from the beginning (index 0)
// up to startHint.
//
// Returns the index of the first zero bit found, or -1 if the bitmap is entirely full.
func (b *Bitmap) FindFirstZero(startHint int) int {
	if r := b.FindFirstZeroInRange(startHint, b.numBits); r != -1 {
		return r
	}
	return b.FindFirstZeroInRange(0, startHint)
}

// FindFirstZeroInRange returns the first cleared bit in [start, end), or -1.
func (b *Bitmap) FindFirstZeroInRange(start, end int) int {
	common.Assert(start >= 0 && start <= end && end <= b.numBits, "invalid Bitmap range")
	if start == end {
		return -1
	}
	startWord := start / 64
	endWord := (end - 1) / 64

	for i := startWord; i <= endWord; i++ {
		word := b.words[i]

		// If word is all 1s, skip entirely
		if word == ^uint64(0) {
			continue
		}

		bitStart, bitEnd := 0, 64
		if i == startWord {
			bitStart = start % 64
		}
		if i == endWord {
			if limit := end % 64; limit != 0 {
				bitEnd = limit
			}
		}

		// Lowest cleared bit at or after bitStart
		free := ^word >> uint(bitStart)
		if free == 0 {
			continue
		}
		j := bitStart + bits.TrailingZeros64(free)
		if j < bitEnd {
			return i*64 + j
		}
	}
	return -1
}

// FindNextSet returns the first set bit at or after start, or -1.
func (b *Bitmap) FindNextSet(start int) int {
	if start < 0 {
		start = 0
	}
	for i := start / 64; i < len(b.words); i++ {
		word := b.words[i]
		if i == start/64 {
			word &= ^uint64(0) << uint(start%64)
		}
		if word == 0 {
			continue
		}
		idx := i*64 + bits.TrailingZeros64(word)
		if idx >= b.numBits {
			return -1
		}
		return idx
	}
	return -1
}

// EncodedSize returns the number of bytes WriteTo produces.
func (b *Bitmap) EncodedSize() int {
	return 4 + 8*len(b.words)
}

// WriteTo serializes the bitmap as its bit count followed by its words, little endian.
func (b *Bitmap) WriteTo(data []byte) {
	common.Assert(len(data) >= b.EncodedSize(), "buffer too small")
	binary.LittleEndian.PutUint32(data, uint32(b.numBits))
	for i, w := range b.words {
		binary.LittleEndian.PutUint64(data[4+8*i:], w)
	}
}

// LoadBitmap deserializes a bitmap written by WriteTo and returns it with the number of bytes consumed.
func LoadBitmap(data []byte) (Bitmap, int, error) {
	if len(data) < 4 {
		return Bitmap{}, 0, common.NewError(common.CorruptHeaderError, "bitmap truncated")
	}
	numBits := int(binary.LittleEndian.Uint32(data))
	b := NewBitmap(numBits)
	if len(data) < b.EncodedSize() {
		return Bitmap{}, 0, common.NewError(common.CorruptHeaderError,
			"bitmap of %d bits needs %d bytes, have %d", numBits, b.EncodedSize(), len(data))
	}
	for i := range b.words {
		b.words[i] = binary.LittleEndian.Uint64(data[4+8*i:])
	}
	return b, b.EncodedSize(), nil
}

// Clone returns an independent copy.
func (b *Bitmap) Clone() Bitmap {
	return Bitmap{words: append([]uint64(nil), b.words...), numBits: b.numBits}
}
