// Package fsstat implements a statfs-style summary of a mounted image,
// following the shape of disko's FSStat() method.
package fsstat

import (
	"github.com/MrBad/cofs"
	"github.com/MrBad/cofs/block"
	"github.com/MrBad/cofs/inode"
	"github.com/MrBad/cofs/super"
)

// Info is a platform-independent summary of a mounted image, analogous to
// syscall.Statfs_t.
type Info struct {
	Type          uint32
	BlockSize     uint32
	NameMaxLength uint32
	TotalBlocks   uint32
	FreeBlocks    uint32
	TotalInodes   uint32
	FreeInodes    uint32
}

// Compute walks the bitmap and inode table to report current usage. Both
// walks are brute-force linear scans; there is no cached counter to keep in
// sync with allocation and free activity elsewhere in the file system.
func Compute(cache *block.Cache, sb *super.Superblock, table *inode.Table) (Info, error) {
	info := Info{
		Type:          cofs.Magic,
		BlockSize:     cofs.BlockSize,
		NameMaxLength: cofs.NameMaxLen,
		TotalBlocks:   sb.Size,
		TotalInodes:   sb.NumInodes,
	}

	freeBlocks, err := countFreeBlocks(cache, sb)
	if err != nil {
		return Info{}, err
	}
	info.FreeBlocks = freeBlocks

	freeInodes, err := countFreeInodes(table, sb)
	if err != nil {
		return Info{}, err
	}
	info.FreeInodes = freeInodes

	return info, nil
}

func countFreeBlocks(cache *block.Cache, sb *super.Superblock) (uint32, error) {
	var free uint32
	for b := uint32(0); b < sb.Size; b += cofs.BitsPerBlock {
		h, err := cache.Get(block.ID(sb.BitmapStart) + block.ID(b/cofs.BitsPerBlock))
		if err != nil {
			return 0, err
		}
		data := h.Data()
		for bit := 0; bit < cofs.BitsPerBlock && b+uint32(bit) < sb.Size; bit++ {
			byteIdx := bit / 8
			mask := byte(1) << uint(bit%8)
			if data[byteIdx]&mask == 0 {
				free++
			}
		}
		cache.Release(h)
	}
	return free, nil
}

func countFreeInodes(table *inode.Table, sb *super.Superblock) (uint32, error) {
	var free uint32
	for ino := inode.Num(1); ino < inode.Num(sb.NumInodes); ino++ {
		typ, err := table.TypeOf(ino)
		if err != nil {
			return 0, err
		}
		if typ == cofs.TypeFree {
			free++
		}
	}
	return free, nil
}
