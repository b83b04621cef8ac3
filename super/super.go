// Package super implements the superblock codec: load and store the
// fixed-layout superblock record at block index 1.
package super

import (
	"bytes"
	"encoding/binary"

	"github.com/MrBad/cofs"
	"github.com/MrBad/cofs/block"
	"github.com/noxer/bytewriter"
)

// Superblock mirrors cofs_superblock_t: every field is a 32-bit unsigned
// integer in little-endian byte order, stored at block index 1.
type Superblock struct {
	Magic       uint32
	Size        uint32 // total file system size, in blocks
	NumBlocks   uint32 // number of data-region blocks
	NumInodes   uint32 // total inode slots
	BitmapStart uint32 // first bitmap block (always 2)
	InodeStart  uint32 // first inode-table block
	DataBlock   uint32 // first data-region block
}

// SuperblockBlock is the fixed location of the superblock.
const SuperblockBlock = block.ID(1)

// Load reads and validates the superblock from block 1 of cache. It returns
// cofs.ErrInvalidFormat if the magic number doesn't match.
func Load(cache *block.Cache) (*Superblock, error) {
	h, err := cache.Get(SuperblockBlock)
	if err != nil {
		return nil, err
	}
	defer cache.Release(h)

	var sb Superblock
	if err := binary.Read(bytes.NewReader(h.Data()), binary.LittleEndian, &sb); err != nil {
		return nil, cofs.ErrIO.Wrap(err)
	}
	if sb.Magic != cofs.Magic {
		return nil, cofs.ErrInvalidFormat.WithMessage("superblock magic mismatch")
	}
	return &sb, nil
}

// Store writes sb to block 1 of cache and marks it dirty. The fields are
// laid out directly into the block's backing slice through a bytewriter, one
// sequential field at a time, rather than built up in a separate buffer and
// copied in.
func Store(cache *block.Cache, sb *Superblock) error {
	h, err := cache.Get(SuperblockBlock)
	if err != nil {
		return err
	}
	defer cache.Release(h)

	data := h.Data()
	for i := range data {
		data[i] = 0
	}

	writer := bytewriter.New(data)
	if err := binary.Write(writer, binary.LittleEndian, sb); err != nil {
		return cofs.ErrIO.Wrap(err)
	}
	h.MarkDirty()
	return nil
}
