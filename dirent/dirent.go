// Package dirent implements the directory entry protocol: fixed-size
// slotted records, linear-scan lookup and insertion, and the
// mknod/mkdir/create operations built on top of them.
//
// Lookup, List, and Readdir all walk a directory's entries the same way, so
// all three go through the shared Cursor.forEach scan below instead of each
// writing its own loop. Link is also a Cursor method but scans block by
// block with its own loop, since it writes into the free slot it finds.
package dirent

import (
	"bytes"

	"github.com/MrBad/cofs"
	"github.com/MrBad/cofs/block"
	"github.com/MrBad/cofs/inode"
)

// Dirent is the decoded form of a 32-byte on-disk directory entry. Ino == 0
// marks an empty slot.
type Dirent struct {
	Ino  inode.Num
	Name string
}

func decodeDirent(raw []byte) Dirent {
	ino := leUint32(raw[:4])
	nameBytes := raw[4:cofs.DirentSize]
	end := bytes.IndexByte(nameBytes, 0)
	if end == -1 {
		end = len(nameBytes)
	}
	return Dirent{Ino: inode.Num(ino), Name: string(nameBytes[:end])}
}

func encodeDirent(raw []byte, ino inode.Num, name string) {
	for i := range raw {
		raw[i] = 0
	}
	putLeUint32(raw[:4], uint32(ino))
	copy(raw[4:cofs.DirentSize], name)
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLeUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// Cursor iterates the directory entries of a single directory inode, using
// the inode table's block map to translate logical blocks to physical ones
// on demand.
type Cursor struct {
	cache *block.Cache
	table *inode.Table
	dir   *inode.Inode
}

// NewCursor creates a Cursor over dir's entries.
func NewCursor(cache *block.Cache, table *inode.Table, dir *inode.Inode) *Cursor {
	return &Cursor{cache: cache, table: table, dir: dir}
}

// forEach calls fn once per directory-sized slot from offset 0 to dir.Size,
// in order, passing the decoded entry. If fn returns true, iteration stops.
func (c *Cursor) forEach(fn func(pos int64, entry Dirent) (stop bool, err error)) error {
	for pos := int64(0); pos < c.dir.Size; pos += cofs.DirentSize {
		relBlock := uint32(pos / cofs.BlockSize)
		inBlockOff := int(pos % cofs.BlockSize)

		phys, err := c.table.BlockMap(c.dir, relBlock, false)
		if err != nil {
			return err
		}
		if phys == 0 {
			// A directory block that was never materialized reads as all
			// empty slots.
			stop, err := fn(pos, Dirent{})
			if err != nil || stop {
				return err
			}
			continue
		}

		h, err := c.cache.Get(phys)
		if err != nil {
			return err
		}
		raw := h.Data()[inBlockOff : inBlockOff+cofs.DirentSize]
		entry := decodeDirent(raw)
		c.cache.Release(h)

		stop, err := fn(pos, entry)
		if err != nil || stop {
			return err
		}
	}
	return nil
}

// Lookup scans dir for an entry named name and returns its inode number.
// The second return value is false if no such entry exists.
func (c *Cursor) Lookup(name string) (inode.Num, bool, error) {
	var found inode.Num
	var ok bool
	err := c.forEach(func(pos int64, entry Dirent) (bool, error) {
		if entry.Ino != 0 && entry.Name == name {
			found, ok = entry.Ino, true
			return true, nil
		}
		return false, nil
	})
	return found, ok, err
}

// List returns every non-empty entry in dir, in on-disk order.
func (c *Cursor) List() ([]Dirent, error) {
	var entries []Dirent
	err := c.forEach(func(pos int64, entry Dirent) (bool, error) {
		if entry.Ino != 0 {
			entries = append(entries, entry)
		}
		return false, nil
	})
	return entries, err
}

// Readdir yields every non-empty entry at or after byte offset pos, calling
// emit for each one; emit returning false stops iteration early. It returns
// the offset iteration stopped at (dir.Size if it ran to completion).
func (c *Cursor) Readdir(pos int64, emit func(ino inode.Num, name string) bool) (int64, error) {
	stopPos := c.dir.Size
	err := c.forEach(func(p int64, entry Dirent) (bool, error) {
		if p < pos {
			return false, nil
		}
		if entry.Ino == 0 {
			return false, nil
		}
		if !emit(entry.Ino, entry.Name) {
			stopPos = p
			return true, nil
		}
		return false, nil
	})
	return stopPos, err
}

// Link inserts a (ino, name) entry into dir: the first free slot in an
// already-allocated block is reused; if none exists, a new directory block
// is allocated (zeroed by the allocator) and the entry is placed at its
// first slot, extending dir.Size by one block. Link never touches nlink on
// either inode; callers (Mknod/Mkdir) bump nlink explicitly only for the
// cases that need it.
func (c *Cursor) Link(ino inode.Num, name string) error {
	numBlocks := uint32(c.dir.Size / cofs.BlockSize)

	for b := uint32(0); b < numBlocks; b++ {
		phys, err := c.table.BlockMap(c.dir, b, false)
		if err != nil {
			return err
		}
		if phys == 0 {
			continue
		}
		h, err := c.cache.Get(phys)
		if err != nil {
			return err
		}
		data := h.Data()
		linked := false
		for off := 0; off < cofs.BlockSize; off += cofs.DirentSize {
			raw := data[off : off+cofs.DirentSize]
			if leUint32(raw[:4]) == 0 {
				encodeDirent(raw, ino, name)
				h.MarkDirty()
				linked = true
				break
			}
		}
		c.cache.Release(h)
		if linked {
			return nil
		}
	}

	phys, err := c.table.BlockMap(c.dir, numBlocks, true)
	if err != nil {
		return err
	}
	if phys == 0 {
		return cofs.ErrNoSpace.WithMessage("could not allocate a new directory block")
	}

	h, err := c.cache.Get(phys)
	if err != nil {
		return err
	}
	encodeDirent(h.Data()[0:cofs.DirentSize], ino, name)
	h.MarkDirty()
	c.cache.Release(h)

	c.dir.Size += cofs.BlockSize
	return c.table.Iput(c.dir)
}
