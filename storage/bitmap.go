package storage

import (
	"math/bits"

	"mit.edu/dsg/rowdb/common"
)

// Bitmap is a growable set of bits backed by uint64 words. Table heaps use it to track live slots.
//
// Scans work a word at a time to skip full (or empty) blocks of bits.
type Bitmap struct {
	words   []uint64
	numBits int
}

// NewBitmap creates a Bitmap with numBits zero bits.
func NewBitmap(numBits int) *Bitmap {
	return &Bitmap{
		words:   make([]uint64, (numBits+63)/64),
		numBits: numBits,
	}
}

// Len returns the number of bits in the bitmap.
func (b *Bitmap) Len() int {
	return b.numBits
}

// Grow extends the bitmap to numBits bits. New bits are zero. Shrinking is not supported.
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
	mask := uint64(1) << uint(i%64)

	ptr := &b.words[i/64]
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
	return (b.words[i/64] & (1 << uint(i%64))) != 0
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
	if startHint > b.numBits {
		startHint = b.numBits
	}
	if r := b.findFirstZeroInRange(startHint, b.numBits); r != -1 {
		return r
	}
	return b.findFirstZeroInRange(0, startHint)
}

func (b *Bitmap) findFirstZeroInRange(start, end int) int {
	common.Assert(start >= 0 && start <= end && end <= b.numBits, "invalid Bitmap range")
	if start == end {
		return -1
	}
	for i := start / 64; i <= (end-1)/64; i++ {
		// If word is all 1s, skip entirely
		word := ^b.words[i]
		if i == start/64 {
			word &= ^uint64(0) << uint(start%64)
		}
		if word == 0 {
			continue
		}
		idx := i*64 + bits.TrailingZeros64(word)
		if idx >= end {
			return -1
		}
		return idx
	}
	return -1
}

// NextSetBit returns the index of the first set bit at or after start, or -1 if there is none.
func (b *Bitmap) NextSetBit(start int) int {
	if start < 0 {
		start = 0
	}
	if start >= b.numBits {
		return -1
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
