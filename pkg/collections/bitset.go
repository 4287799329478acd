// Package collections provides compact data structures used by the heap scanners.
package collections

import (
	"math/bits"
)

// ============================================================================
// Bitset - Memory-efficient boolean set
// ============================================================================

// Bitset is a boolean set keyed by small non-negative integers.
// It uses 1 bit per element, so a visited set for 100M heap objects costs ~12MB.
type Bitset struct {
	bits []uint64
	size int
}

// NewBitset creates a new bitset with the given size.
func NewBitset(size int) *Bitset {
	if size <= 0 {
		size = 64
	}
	numWords := (size + 63) / 64
	return &Bitset{
		bits: make([]uint64, numWords),
		size: size,
	}
}

// Set sets the bit at index i, growing the set if needed.
func (b *Bitset) Set(i int) {
	if i < 0 {
		return
	}
	wordIdx := i / 64
	if wordIdx >= len(b.bits) {
		b.grow(i + 1)
	}
	b.bits[wordIdx] |= 1 << (i % 64)
	if i >= b.size {
		b.size = i + 1
	}
}

// TestAndSet sets the bit at index i and reports whether it was already set.
func (b *Bitset) TestAndSet(i int) bool {
	if i < 0 {
		return false
	}
	wordIdx := i / 64
	if wordIdx >= len(b.bits) {
		b.grow(i + 1)
	}
	mask := uint64(1) << (i % 64)
	was := b.bits[wordIdx]&mask != 0
	b.bits[wordIdx] |= mask
	if i >= b.size {
		b.size = i + 1
	}
	return was
}

// Clear clears the bit at index i.
func (b *Bitset) Clear(i int) {
	if i < 0 || i/64 >= len(b.bits) {
		return
	}
	b.bits[i/64] &^= 1 << (i % 64)
}

// Test returns true if the bit at index i is set.
func (b *Bitset) Test(i int) bool {
	if i < 0 || i/64 >= len(b.bits) {
		return false
	}
	return b.bits[i/64]&(1<<(i%64)) != 0
}

// ClearAll clears all bits.
func (b *Bitset) ClearAll() {
	for i := range b.bits {
		b.bits[i] = 0
	}
}

// Count returns the number of set bits.
func (b *Bitset) Count() int {
	count := 0
	for _, word := range b.bits {
		count += bits.OnesCount64(word)
	}
	return count
}

// Size returns the logical size of the bitset.
func (b *Bitset) Size() int {
	return b.size
}

func (b *Bitset) grow(newSize int) {
	numWords := (newSize + 63) / 64
	if numWords <= len(b.bits) {
		return
	}
	newCap := len(b.bits) * 2
	if newCap < numWords {
		newCap = numWords
	}
	newBits := make([]uint64, newCap)
	copy(newBits, b.bits)
	b.bits = newBits
}

// Iterate calls fn for each set bit in ascending order.
// Iteration stops early if fn returns false.
func (b *Bitset) Iterate(fn func(i int) bool) {
	for wordIdx, word := range b.bits {
		for word != 0 {
			bitIdx := bits.TrailingZeros64(word)
			if !fn(wordIdx*64 + bitIdx) {
				return
			}
			word &= word - 1
		}
	}
}
