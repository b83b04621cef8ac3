package inode

import (
	"encoding/binary"

	"github.com/MrBad/cofs"
	"github.com/MrBad/cofs/block"
)

func readPointer(data []byte, idx uint32) uint32 {
	return binary.LittleEndian.Uint32(data[idx*4 : idx*4+4])
}

func writePointer(data []byte, idx uint32, value uint32) {
	binary.LittleEndian.PutUint32(data[idx*4:idx*4+4], value)
}

// BlockMap translates an inode-relative block index into a physical block
// number, optionally allocating data and indirect-table blocks along the
// way. It returns 0 with no error when the block doesn't exist and allocate
// is false — callers reading past a hole see zeros.
func (t *Table) BlockMap(in *Inode, rel uint32, allocate bool) (block.ID, error) {
	switch {
	case rel < cofs.NumDirect:
		return t.directBlock(in, rel, allocate)
	case rel < cofs.NumDirect+cofs.PointersPerBlock:
		return t.singleIndirectBlock(in, rel, allocate)
	case rel < cofs.MaxFileBlocks:
		return t.doubleIndirectBlock(in, rel, allocate)
	default:
		return 0, cofs.ErrTooLarge.WithMessage("block index beyond MaxFileBlocks")
	}
}

func (t *Table) directBlock(in *Inode, rel uint32, allocate bool) (block.ID, error) {
	if in.Addrs[rel] == 0 {
		if !allocate {
			return 0, nil
		}
		newBlock, err := t.alloc.Alloc()
		if err != nil {
			return 0, err
		}
		in.Addrs[rel] = newBlock
		in.markDirty()
	}
	return block.ID(in.Addrs[rel]), nil
}

// ensureTableBlock returns the block holding *slot (allocating a fresh,
// zeroed table block and writing it into *slot if it's 0 and allocate is
// true), or 0 if it's still unallocated.
func (t *Table) ensureTableBlock(slot *uint32, markParentDirty func(), allocate bool) (uint32, error) {
	if *slot != 0 {
		return *slot, nil
	}
	if !allocate {
		return 0, nil
	}
	newBlock, err := t.alloc.Alloc()
	if err != nil {
		return 0, err
	}
	*slot = newBlock
	markParentDirty()
	return newBlock, nil
}

func (t *Table) singleIndirectBlock(in *Inode, rel uint32, allocate bool) (block.ID, error) {
	sindBlock, err := t.ensureTableBlock(&in.Addrs[cofs.SindIdx], in.markDirty, allocate)
	if err != nil {
		return 0, err
	}
	if sindBlock == 0 {
		return 0, nil
	}

	h, err := t.cache.Get(block.ID(sindBlock))
	if err != nil {
		return 0, err
	}
	defer t.cache.Release(h)

	sidx := rel - cofs.NumDirect
	data := h.Data()
	ptr := readPointer(data, sidx)
	if ptr == 0 {
		if !allocate {
			return 0, nil
		}
		newBlock, err := t.alloc.Alloc()
		if err != nil {
			return 0, err
		}
		writePointer(data, sidx, newBlock)
		h.MarkDirty()
		ptr = newBlock
	}
	return block.ID(ptr), nil
}

func (t *Table) doubleIndirectBlock(in *Inode, rel uint32, allocate bool) (block.ID, error) {
	dindBlock, err := t.ensureTableBlock(&in.Addrs[cofs.DindIdx], in.markDirty, allocate)
	if err != nil {
		return 0, err
	}
	if dindBlock == 0 {
		return 0, nil
	}

	// relInZone is relative to the double-indirect zone's own base, not
	// the raw inode-relative index; indexing the L1/L2 tables with the
	// raw rel would read and write the wrong slot.
	relInZone := rel - cofs.NumDirect - cofs.PointersPerBlock
	sidx := relInZone / cofs.PointersPerBlock
	didx := relInZone % cofs.PointersPerBlock

	l1, err := t.cache.Get(block.ID(dindBlock))
	if err != nil {
		return 0, err
	}
	l1Data := l1.Data()
	pblock := readPointer(l1Data, sidx)
	if pblock == 0 {
		if !allocate {
			t.cache.Release(l1)
			return 0, nil
		}
		newBlock, err := t.alloc.Alloc()
		if err != nil {
			t.cache.Release(l1)
			return 0, err
		}
		writePointer(l1Data, sidx, newBlock)
		l1.MarkDirty()
		pblock = newBlock
	}
	t.cache.Release(l1)

	l2, err := t.cache.Get(block.ID(pblock))
	if err != nil {
		return 0, err
	}
	defer t.cache.Release(l2)

	l2Data := l2.Data()
	ptr := readPointer(l2Data, didx)
	if ptr == 0 {
		if !allocate {
			return 0, nil
		}
		newBlock, err := t.alloc.Alloc()
		if err != nil {
			return 0, err
		}
		writePointer(l2Data, didx, newBlock)
		l2.MarkDirty()
		ptr = newBlock
	}
	return block.ID(ptr), nil
}

// Truncate shrinks in to newLen bytes, freeing every data block and
// indirect table that falls beyond the new length, pruning indirect tables
// that become entirely empty. Growing is not supported; Write past EOF is
// the only way to extend a file.
func (t *Table) Truncate(in *Inode, newLen int64) error {
	if newLen > in.Size {
		return cofs.ErrInvalidArgument.WithMessage("truncate does not support growing files")
	}

	fbs := uint32(newLen / cofs.BlockSize)
	fbe := uint32((in.Size + cofs.BlockSize - 1) / cofs.BlockSize) // ceil(size/B): in.Size may fall mid-block

	for fbn := fbs; fbn < fbe; fbn++ {
		if err := t.truncateOneBlock(in, fbn); err != nil {
			return err
		}
	}

	in.Size = newLen
	in.markDirty()
	return t.Iput(in)
}

func (t *Table) truncateOneBlock(in *Inode, fbn uint32) error {
	switch {
	case fbn < cofs.NumDirect:
		if in.Addrs[fbn] != 0 {
			if err := t.alloc.Free(in.Addrs[fbn]); err != nil {
				return err
			}
			in.Addrs[fbn] = 0
		}
		return nil

	case fbn < cofs.NumDirect+cofs.PointersPerBlock:
		return t.truncateSingleIndirectEntry(in, fbn)

	case fbn < cofs.MaxFileBlocks:
		return t.truncateDoubleIndirectEntry(in, fbn)
	}
	return nil
}

func (t *Table) truncateSingleIndirectEntry(in *Inode, fbn uint32) error {
	if in.Addrs[cofs.SindIdx] == 0 {
		return nil
	}
	h, err := t.cache.Get(block.ID(in.Addrs[cofs.SindIdx]))
	if err != nil {
		return err
	}
	data := h.Data()
	sidx := fbn - cofs.NumDirect
	if ptr := readPointer(data, sidx); ptr != 0 {
		if err := t.alloc.Free(ptr); err != nil {
			t.cache.Release(h)
			return err
		}
		writePointer(data, sidx, 0)
		h.MarkDirty()
	}
	t.cache.Release(h)

	count, err := t.alloc.CountNonzeroWords(in.Addrs[cofs.SindIdx])
	if err != nil {
		return err
	}
	if count == 0 {
		if err := t.alloc.Free(in.Addrs[cofs.SindIdx]); err != nil {
			return err
		}
		in.Addrs[cofs.SindIdx] = 0
	}
	return nil
}

func (t *Table) truncateDoubleIndirectEntry(in *Inode, fbn uint32) error {
	if in.Addrs[cofs.DindIdx] == 0 {
		return nil
	}
	relInZone := fbn - cofs.NumDirect - cofs.PointersPerBlock
	sidx := relInZone / cofs.PointersPerBlock
	didx := relInZone % cofs.PointersPerBlock

	l1, err := t.cache.Get(block.ID(in.Addrs[cofs.DindIdx]))
	if err != nil {
		return err
	}
	l1Data := l1.Data()
	pblock := readPointer(l1Data, sidx)

	if pblock != 0 {
		l2, err := t.cache.Get(block.ID(pblock))
		if err != nil {
			t.cache.Release(l1)
			return err
		}
		l2Data := l2.Data()
		if ptr := readPointer(l2Data, didx); ptr != 0 {
			if err := t.alloc.Free(ptr); err != nil {
				t.cache.Release(l2)
				t.cache.Release(l1)
				return err
			}
			writePointer(l2Data, didx, 0)
			l2.MarkDirty()
		}
		t.cache.Release(l2)

		count, err := t.alloc.CountNonzeroWords(pblock)
		if err != nil {
			t.cache.Release(l1)
			return err
		}
		if count == 0 {
			if err := t.alloc.Free(pblock); err != nil {
				t.cache.Release(l1)
				return err
			}
			writePointer(l1Data, sidx, 0)
			l1.MarkDirty()
		}
	}
	t.cache.Release(l1)

	count, err := t.alloc.CountNonzeroWords(in.Addrs[cofs.DindIdx])
	if err != nil {
		return err
	}
	if count == 0 {
		if err := t.alloc.Free(in.Addrs[cofs.DindIdx]); err != nil {
			return err
		}
		in.Addrs[cofs.DindIdx] = 0
	}
	return nil
}
