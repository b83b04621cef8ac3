// Package bitmap implements the on-disk block bitmap allocator: a first-fit
// scan with a word-level fast path that skips fully-allocated bitmap words,
// zeroing newly allocated blocks before handing them back.
//
// This is deliberately not built on github.com/boljen/go-bitmap (used
// elsewhere in this module for in-memory bookkeeping, see block.Cache):
// that package manages a bitmap as a single in-memory byte slice, but here
// the bitmap itself is split across on-disk blocks addressed by
// bitmapBlockFor, and the allocator must walk it one block/word at a time to
// get the word-skip fast path. A generic in-memory bitmap type doesn't model
// that addressing.
package bitmap

import (
	"encoding/binary"
	"log"

	"github.com/MrBad/cofs"
	"github.com/MrBad/cofs/block"
)

// Allocator is the block bitmap allocator. It tracks allocation state for
// every block in the file system, including the metadata blocks (block 0,
// superblock, bitmap, inode table) that mkfs marks allocated up front.
type Allocator struct {
	cache       *block.Cache
	bitmapStart block.ID
	totalBlocks uint32
}

// New creates an Allocator whose bitmap begins at bitmapStart and which
// tracks totalBlocks blocks total: the whole file system, not just the
// data region.
func New(cache *block.Cache, bitmapStart block.ID, totalBlocks uint32) *Allocator {
	return &Allocator{cache: cache, bitmapStart: bitmapStart, totalBlocks: totalBlocks}
}

// bitmapBlockFor returns the bitmap block that holds the bit for block b.
func (a *Allocator) bitmapBlockFor(b uint32) block.ID {
	return a.bitmapStart + block.ID(b/cofs.BitsPerBlock)
}

// Alloc finds the lowest-numbered free block, marks it allocated, zeroes its
// contents, and returns its index. A block that holds the bitmap itself is
// marked allocated but not zeroed, since zeroing it would erase the bits it
// stores, including the one just set for it. It returns cofs.ErrNoSpace if
// the bitmap has no clear bits left.
func (a *Allocator) Alloc() (uint32, error) {
	for base := uint32(0); base < a.totalBlocks; base += cofs.BitsPerBlock {
		h, err := a.cache.Get(a.bitmapBlockFor(base))
		if err != nil {
			return 0, err
		}

		found, ok, err := a.scanBlockForFreeBit(h, base)
		a.cache.Release(h)
		if err != nil {
			return 0, err
		}
		if ok {
			lastBitmapBlock := a.bitmapBlockFor(a.totalBlocks - 1)
			if block.ID(found) < a.bitmapStart || block.ID(found) > lastBitmapBlock {
				if err := a.zero(found); err != nil {
					return 0, err
				}
			}
			return found, nil
		}
	}
	return 0, cofs.ErrNoSpace.WithMessage("bitmap allocator exhausted")
}

// scanBlockForFreeBit scans one bitmap block word by word, skipping any word
// that is entirely 0xFFFFFFFF, and returns the absolute index of the first
// clear bit it finds (base + word*32 + bit), having already set that bit and
// marked the block dirty.
func (a *Allocator) scanBlockForFreeBit(h *block.Handle, base uint32) (uint32, bool, error) {
	data := h.Data()
	numWords := cofs.BlockSize / 4

	for word := 0; word < numWords; word++ {
		value := binary.LittleEndian.Uint32(data[word*4 : word*4+4])
		if value == 0xFFFFFFFF {
			continue
		}
		for bit := 0; bit < 32; bit++ {
			idx := base + uint32(word*32+bit)
			if idx >= a.totalBlocks {
				return 0, false, nil
			}
			byteIdx := word*4 + bit/8
			mask := byte(1) << uint(bit%8)
			if data[byteIdx]&mask != 0 {
				continue
			}
			data[byteIdx] |= mask
			h.MarkDirty()
			return idx, true, nil
		}
	}
	return 0, false, nil
}

// zero fills the given block with BlockSize zero bytes. This must happen
// after the bitmap bit is set and before the caller can write content into
// the block, so a crash between the two never exposes stale data under a
// still-free block number.
func (a *Allocator) zero(blockNo uint32) error {
	h, err := a.cache.Get(block.ID(blockNo))
	if err != nil {
		return err
	}
	data := h.Data()
	for i := range data {
		data[i] = 0
	}
	h.MarkDirty()
	a.cache.Release(h)
	return nil
}

// Free clears the bit for blockNo. It returns cofs.ErrAlreadyFree if the
// block wasn't allocated, surfacing double-frees as corruption (logged as a
// warning) rather than silently ignoring them.
func (a *Allocator) Free(blockNo uint32) error {
	if blockNo >= a.totalBlocks {
		return cofs.ErrInvalidArgument.WithMessage("block index out of range")
	}
	h, err := a.cache.Get(a.bitmapBlockFor(blockNo))
	if err != nil {
		return err
	}
	defer a.cache.Release(h)

	bit := blockNo % cofs.BitsPerBlock
	byteIdx := bit / 8
	mask := byte(1) << (bit % 8)
	data := h.Data()

	if data[byteIdx]&mask == 0 {
		log.Printf("cofs: block %d freed while already free", blockNo)
		return cofs.ErrAlreadyFree.WithMessage("block already free")
	}
	data[byteIdx] &^= mask
	h.MarkDirty()
	return nil
}

// CountNonzeroWords counts the number of nonzero 32-bit words in the given
// block. Truncate uses this to detect when an indirect or double-indirect
// table has become entirely zero and can itself be freed.
func (a *Allocator) CountNonzeroWords(blockNo uint32) (int, error) {
	h, err := a.cache.Get(block.ID(blockNo))
	if err != nil {
		return 0, err
	}
	defer a.cache.Release(h)

	data := h.Data()
	count := 0
	for word := 0; word < cofs.BlockSize/4; word++ {
		if binary.LittleEndian.Uint32(data[word*4:word*4+4]) != 0 {
			count++
		}
	}
	return count, nil
}
