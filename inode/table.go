package inode

import (
	"log"
	"time"

	"github.com/MrBad/cofs"
	"github.com/MrBad/cofs/bitmap"
	"github.com/MrBad/cofs/block"
	"github.com/MrBad/cofs/super"
)

// Table is the inode table: it reads and writes raw inode records, pins
// in-memory Inode values by number, allocates free slots, and evicts them.
type Table struct {
	cache  *block.Cache
	sb     *super.Superblock
	alloc  *bitmap.Allocator
	cached map[Num]*pinnedInode
}

type pinnedInode struct {
	inode *Inode
	refs  int
}

// NewTable creates an inode table backed by cache, described by sb, with
// alloc used to allocate and free data/indirect blocks for bmap and
// Truncate.
func NewTable(cache *block.Cache, sb *super.Superblock, alloc *bitmap.Allocator) *Table {
	return &Table{
		cache:  cache,
		sb:     sb,
		alloc:  alloc,
		cached: make(map[Num]*pinnedInode),
	}
}

// location computes the block and in-block slot of inode ino:
// block = inode_start + ino/NUM_INOPB, slot = ino % NUM_INOPB.
func (t *Table) location(ino Num) (block.ID, int) {
	blockNo := t.sb.InodeStart + uint32(ino)/cofs.NumInodesPerBlock
	slot := int(uint32(ino) % cofs.NumInodesPerBlock)
	return block.ID(blockNo), slot
}

func (t *Table) readRaw(ino Num) (RawInode, error) {
	blockNo, slot := t.location(ino)
	h, err := t.cache.Get(blockNo)
	if err != nil {
		return RawInode{}, err
	}
	defer t.cache.Release(h)

	offset := slot * cofs.InodeSize
	return decodeRawInode(h.Data()[offset : offset+cofs.InodeSize])
}

func (t *Table) writeRaw(ino Num, raw RawInode) error {
	blockNo, slot := t.location(ino)
	h, err := t.cache.Get(blockNo)
	if err != nil {
		return err
	}
	defer t.cache.Release(h)

	encoded, err := encodeRawInode(raw)
	if err != nil {
		return cofs.ErrIO.Wrap(err)
	}
	offset := slot * cofs.InodeSize
	copy(h.Data()[offset:offset+cofs.InodeSize], encoded)
	h.MarkDirty()
	return nil
}

// Iget returns the pinned in-memory inode identified by ino, reading it from
// disk the first time and returning the same value on every subsequent call
// for as long as it stays pinned.
func (t *Table) Iget(ino Num) (*Inode, error) {
	if pinned, ok := t.cached[ino]; ok {
		pinned.refs++
		return pinned.inode, nil
	}

	raw, err := t.readRaw(ino)
	if err != nil {
		return nil, err
	}

	in := inodeFromRaw(ino, raw)
	switch in.Type() {
	case cofs.TypeDir, cofs.TypeFile, cofs.TypeLink, cofs.TypeDevice, cofs.TypeFree:
	default:
		log.Printf("cofs: inode %d has unrecognized type %#o; leaving mode as-is", ino, in.Mode)
	}

	t.cached[ino] = &pinnedInode{inode: in, refs: 1}
	return in, nil
}

// Iput flushes an in-memory inode back to disk: mode, uid, gid, nlink,
// timestamps, size, and the pointer table are all written in one pass, so
// there is no window where Addrs mutated by bmap/Truncate can be lost.
func (t *Table) Iput(in *Inode) error {
	raw := rawFromInode(in)
	if err := t.writeRaw(in.Ino, raw); err != nil {
		return err
	}
	in.dirty = false
	return nil
}

// AllocInode scans the inode table for the first free slot (type ==
// cofs.TypeFree), claims it for the given type, and returns a pinned handle
// to it. Slot 0 (block 0, index 0) is reserved as the null inode and is
// always skipped. This is an O(num_inodes) linear scan; a production port
// would replace it with an inode bitmap the way data blocks already use one.
func (t *Table) AllocInode(fileType uint16) (*Inode, error) {
	for ino := Num(1); ino < Num(t.sb.NumInodes); ino++ {
		raw, err := t.readRaw(ino)
		if err != nil {
			return nil, err
		}
		if raw.Type != cofs.TypeFree {
			continue
		}

		now := uint32(time.Now().Unix())
		fresh := RawInode{
			Type:  fileType,
			Atime: now,
			Mtime: now,
			Ctime: now,
		}
		if err := t.writeRaw(ino, fresh); err != nil {
			return nil, err
		}
		return t.Iget(ino)
	}
	return nil, cofs.ErrNoInodes.WithMessage("inode table exhausted")
}

// TypeOf reports the on-disk type bits of ino without pinning it or
// affecting the cache's refcounts — a read-only peek used by diagnostic
// tools (fsstat, cofsfsck) that need to scan every slot without disturbing
// the inode lifecycle.
func (t *Table) TypeOf(ino Num) (uint16, error) {
	raw, err := t.readRaw(ino)
	if err != nil {
		return 0, err
	}
	return raw.Type, nil
}

// Evict releases the caller's pin on in. If no other pins remain: inodes
// with Nlink > 0 are simply dropped from the cache; inodes with Nlink == 0
// have their mode cleared and are truncated to zero length, freeing every
// data block and indirect table they owned.
func (t *Table) Evict(in *Inode) error {
	pinned, ok := t.cached[in.Ino]
	if !ok {
		return nil
	}
	pinned.refs--
	if pinned.refs > 0 {
		return nil
	}
	delete(t.cached, in.Ino)

	if in.Nlink > 0 {
		return nil
	}

	in.Mode = cofs.TypeFree
	if err := t.Truncate(in, 0); err != nil {
		return err
	}
	return t.Iput(in)
}
