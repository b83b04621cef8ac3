// Package file implements byte-range read and write on top of the inode
// block map.
package file

import (
	"github.com/MrBad/cofs"
	"github.com/MrBad/cofs/block"
	"github.com/MrBad/cofs/inode"
)

// Read copies up to len(dst) bytes starting at offset from in into dst,
// clamping to the file's current size. Reads past a hole (an unallocated
// block within the file's range) yield zeros. Read never modifies in.
func Read(cache *block.Cache, table *inode.Table, in *inode.Inode, offset int64, dst []byte) (int, error) {
	if offset >= in.Size {
		return 0, nil
	}
	n := int64(len(dst))
	if offset+n > in.Size {
		n = in.Size - offset
	}

	var total int64
	for total < n {
		relBlock := uint32((offset + total) / cofs.BlockSize)
		inBlockOff := int((offset + total) % cofs.BlockSize)
		chunk := minInt64(n-total, cofs.BlockSize-int64(inBlockOff))

		phys, err := table.BlockMap(in, relBlock, false)
		if err != nil {
			return int(total), err
		}

		dstSlice := dst[total : total+chunk]
		if phys == 0 {
			for i := range dstSlice {
				dstSlice[i] = 0
			}
		} else {
			h, err := cache.Get(phys)
			if err != nil {
				return int(total), err
			}
			copy(dstSlice, h.Data()[inBlockOff:int64(inBlockOff)+chunk])
			cache.Release(h)
		}
		total += chunk
	}
	return int(total), nil
}

// Write copies src into in starting at offset, allocating blocks as needed.
// Writing at an offset beyond the current end of file is rejected: growing
// only happens by appending, not by seeking past EOF. If the write extends
// the file, in.Size is updated and the inode is flushed.
func Write(cache *block.Cache, table *inode.Table, in *inode.Inode, offset int64, src []byte) (int, error) {
	if offset > in.Size {
		return 0, cofs.ErrInvalidArgument.WithMessage("write offset beyond end of file")
	}
	if offset+int64(len(src)) > cofs.MaxFileSize {
		return 0, cofs.ErrTooLarge.WithMessage("write would exceed MaxFileSize")
	}

	n := int64(len(src))
	var total int64
	for total < n {
		relBlock := uint32((offset + total) / cofs.BlockSize)
		inBlockOff := int((offset + total) % cofs.BlockSize)
		chunk := minInt64(n-total, cofs.BlockSize-int64(inBlockOff))

		phys, err := table.BlockMap(in, relBlock, true)
		if err != nil {
			return int(total), err
		}
		if phys == 0 {
			return int(total), cofs.ErrNoSpace.WithMessage("bmap returned no block while allocating")
		}

		h, err := cache.Get(phys)
		if err != nil {
			return int(total), err
		}
		copy(h.Data()[inBlockOff:int64(inBlockOff)+chunk], src[total:total+chunk])
		h.MarkDirty()
		cache.Release(h)

		total += chunk
	}

	if offset+n > in.Size {
		in.Size = offset + n
		if err := table.Iput(in); err != nil {
			return int(total), err
		}
	}
	return int(total), nil
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
