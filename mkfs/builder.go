// Package mkfs implements the offline image builder: computing the on-disk
// layout for a given image size, writing the superblock, and seeding the
// root directory and any initial files.
//
// State that a C-level implementation would thread through a handful of
// globals (the open file descriptor, the superblock, the next free block
// counter) is encapsulated here in a single Builder value passed by
// reference.
package mkfs

import (
	"fmt"

	"github.com/MrBad/cofs"
	"github.com/MrBad/cofs/bitmap"
	"github.com/MrBad/cofs/block"
	"github.com/MrBad/cofs/dirent"
	"github.com/MrBad/cofs/file"
	"github.com/MrBad/cofs/inode"
	"github.com/MrBad/cofs/super"
	multierror "github.com/hashicorp/go-multierror"
)

// Builder formats a fresh image and optionally seeds its root directory.
// Once New has returned, Cache, Table, and Root give callers (seed-file
// helpers, cofsfsck, tests) access to the freshly built file system without
// re-opening it.
type Builder struct {
	Cache *block.Cache
	Super *super.Superblock
	Alloc *bitmap.Allocator
	Table *inode.Table
	Root  *inode.Inode
}

// layout is the set of derived sizes computed from the image's total block
// count: how many inodes it can hold, and how many blocks each metadata
// region occupies.
type layout struct {
	numInodes   uint32
	bitmapSize  uint32
	inodeBlocks uint32
	metaBlocks  uint32
}

func computeLayout(totalBlocks uint32) layout {
	numInodes := totalBlocks * cofs.BlockSize / 4096
	bitmapSize := 1 + totalBlocks/cofs.BitsPerBlock
	inodeBlocks := 1 + numInodes/cofs.NumInodesPerBlock
	metaBlocks := 2 + inodeBlocks + bitmapSize
	return layout{
		numInodes:   numInodes,
		bitmapSize:  bitmapSize,
		inodeBlocks: inodeBlocks,
		metaBlocks:  metaBlocks,
	}
}

// New formats a fresh file system of totalBlocks blocks on device and
// returns a Builder ready to seed files into it.
func New(device block.Device) (*Builder, error) {
	totalBlocks := device.TotalBlocks()
	cache := block.NewCache(device)

	if err := zeroEverything(cache, totalBlocks); err != nil {
		return nil, err
	}

	l := computeLayout(totalBlocks)
	if totalBlocks <= l.metaBlocks {
		return nil, cofs.ErrInvalidArgument.WithMessage("image too small to hold its own metadata")
	}

	sb := &super.Superblock{
		Magic:       cofs.Magic,
		Size:        totalBlocks,
		NumBlocks:   totalBlocks - l.metaBlocks,
		NumInodes:   l.numInodes,
		BitmapStart: 2,
		InodeStart:  2 + l.bitmapSize,
		DataBlock:   l.metaBlocks,
	}

	alloc := bitmap.New(cache, block.ID(sb.BitmapStart), totalBlocks)

	// The bitmap starts out entirely clear, so a first-fit scan hands out
	// blocks 0, 1, 2, ... in order; claiming metaBlocks of them up front
	// reserves exactly the unused block, the superblock, the bitmap, and
	// the inode table, so the next first-fit scan lands on the first data
	// block. Alloc zeroes every block it hands out except the bitmap's own,
	// so the superblock is stored only after this reservation.
	for want := uint32(0); want < l.metaBlocks; want++ {
		got, err := alloc.Alloc()
		if err != nil {
			return nil, err
		}
		if got != want {
			return nil, cofs.ErrCorrupted.WithMessage("metadata blocks were not allocated contiguously from block 0")
		}
	}
	if err := super.Store(cache, sb); err != nil {
		return nil, err
	}

	table := inode.NewTable(cache, sb, alloc)

	root, err := table.AllocInode(cofs.TypeDir)
	if err != nil {
		return nil, err
	}
	if root.Ino != 1 {
		return nil, cofs.ErrCorrupted.WithMessage("root inode was not allocated as inode 1")
	}
	root.Nlink = 1

	rootCursor := dirent.NewCursor(cache, table, root)
	if err := rootCursor.Link(root.Ino, "."); err != nil {
		return nil, err
	}
	if err := rootCursor.Link(root.Ino, ".."); err != nil {
		return nil, err
	}
	root.Nlink++ // the ".." back-pointer to itself
	if err := table.Iput(root); err != nil {
		return nil, err
	}

	return &Builder{Cache: cache, Super: sb, Alloc: alloc, Table: table, Root: root}, nil
}

func zeroEverything(cache *block.Cache, totalBlocks uint32) error {
	zero := make([]byte, cofs.BlockSize)
	for i := uint32(0); i < totalBlocks; i++ {
		h, err := cache.Get(block.ID(i))
		if err != nil {
			return err
		}
		copy(h.Data(), zero)
		h.MarkDirty()
		cache.Release(h)
	}
	return nil
}

// SeedFile creates a regular file named name under the root directory and
// writes data as its contents.
func (b *Builder) SeedFile(name string, data []byte) error {
	child, err := b.Table.AllocInode(cofs.TypeFile)
	if err != nil {
		return err
	}
	child.Nlink = 1
	if err := b.Table.Iput(child); err != nil {
		return err
	}

	rootCursor := dirent.NewCursor(b.Cache, b.Table, b.Root)
	if err := rootCursor.Link(child.Ino, name); err != nil {
		return err
	}

	if len(data) > 0 {
		if _, err := file.Write(b.Cache, b.Table, child, 0, data); err != nil {
			return err
		}
	}
	return nil
}

// SeedFiles adds every (name, data) pair to the root directory, continuing
// past individual failures and returning them all together, so one bad seed
// file doesn't abort an otherwise-valid image build.
func (b *Builder) SeedFiles(files map[string][]byte) error {
	var result *multierror.Error
	for name, data := range files {
		if err := b.SeedFile(name, data); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
		}
	}
	return result.ErrorOrNil()
}

// Flush writes every dirty block back to the underlying device.
func (b *Builder) Flush() error {
	return b.Cache.Flush()
}
