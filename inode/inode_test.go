package inode_test

import (
	"testing"

	"github.com/MrBad/cofs"
	"github.com/MrBad/cofs/bitmap"
	"github.com/MrBad/cofs/block"
	"github.com/MrBad/cofs/cofstest"
	"github.com/MrBad/cofs/inode"
	"github.com/MrBad/cofs/super"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestTable mirrors mkfs's layout math on a small scale so inode tests don't
// need to depend on the mkfs package.
func newTestTable(t *testing.T, totalBlocks, numInodes uint32) (*block.Cache, *inode.Table) {
	t.Helper()
	device := cofstest.NewImage(totalBlocks)
	cache := block.NewCache(device)

	bitmapSize := uint32(1)
	inodeBlocks := 1 + numInodes/cofs.NumInodesPerBlock
	metaBlocks := 2 + inodeBlocks + bitmapSize

	sb := &super.Superblock{
		Magic:       cofs.Magic,
		Size:        totalBlocks,
		NumBlocks:   totalBlocks - metaBlocks,
		NumInodes:   numInodes,
		BitmapStart: 2,
		InodeStart:  2 + bitmapSize,
		DataBlock:   metaBlocks,
	}
	require.NoError(t, super.Store(cache, sb))

	alloc := bitmap.New(cache, block.ID(sb.BitmapStart), totalBlocks)
	for i := uint32(0); i < metaBlocks; i++ {
		got, err := alloc.Alloc()
		require.NoError(t, err)
		require.EqualValues(t, i, got)
	}

	return cache, inode.NewTable(cache, sb, alloc)
}

func TestAllocInodeSkipsNullInode(t *testing.T) {
	_, table := newTestTable(t, 300, 32)

	in, err := table.AllocInode(cofs.TypeFile)
	require.NoError(t, err)
	assert.EqualValues(t, 1, in.Ino)
	assert.True(t, in.IsFile())
}

func TestIgetReturnsSamePinnedValue(t *testing.T) {
	_, table := newTestTable(t, 300, 32)

	in, err := table.AllocInode(cofs.TypeFile)
	require.NoError(t, err)

	again, err := table.Iget(in.Ino)
	require.NoError(t, err)
	assert.Same(t, in, again)
}

func TestIputPersistsAddrsAcrossEviction(t *testing.T) {
	_, table := newTestTable(t, 300, 32)

	in, err := table.AllocInode(cofs.TypeFile)
	require.NoError(t, err)
	in.Nlink = 1

	phys, err := table.BlockMap(in, 0, true)
	require.NoError(t, err)
	require.NotZero(t, phys)
	require.NoError(t, table.Iput(in))

	// Drop every pin so a fresh Iget has to decode from disk.
	require.NoError(t, table.Evict(in))

	reloaded, err := table.Iget(in.Ino)
	require.NoError(t, err)
	assert.Equal(t, uint32(phys), reloaded.Addrs[0])
}

func TestEvictFreesUnlinkedInode(t *testing.T) {
	_, table := newTestTable(t, 300, 32)

	in, err := table.AllocInode(cofs.TypeFile)
	require.NoError(t, err)
	// Nlink left at 0: evict should reclaim it immediately.
	require.NoError(t, table.Evict(in))

	reused, err := table.AllocInode(cofs.TypeDir)
	require.NoError(t, err)
	assert.Equal(t, in.Ino, reused.Ino)
}

func TestBlockMapInjectiveAcrossDirectSindDind(t *testing.T) {
	_, table := newTestTable(t, 400, 32)

	in, err := table.AllocInode(cofs.TypeFile)
	require.NoError(t, err)

	rels := []uint32{0, 1, 5, 6, 7, 133, 134, 135}
	seen := map[block.ID]uint32{}
	for _, rel := range rels {
		phys, err := table.BlockMap(in, rel, true)
		require.NoError(t, err)
		require.NotZero(t, phys)
		for otherPhys, otherRel := range seen {
			assert.NotEqual(t, otherPhys, phys, "rel %d and %d mapped to the same block", otherRel, rel)
		}
		seen[phys] = rel
	}
}

func TestTruncateToZeroFreesEverything(t *testing.T) {
	cache, table := newTestTable(t, 400, 32)

	in, err := table.AllocInode(cofs.TypeFile)
	require.NoError(t, err)

	rels := []uint32{0, 5, 6, 7, 133, 134}
	var allocated []block.ID
	for _, rel := range rels {
		phys, err := table.BlockMap(in, rel, true)
		require.NoError(t, err)
		allocated = append(allocated, phys)
	}
	in.Size = int64(rels[len(rels)-1]+1) * cofs.BlockSize
	require.NoError(t, table.Iput(in))

	require.NoError(t, table.Truncate(in, 0))

	assert.Equal(t, [cofs.NumAddrs]uint32{}, in.Addrs)

	alloc := bitmap.New(cache, block.ID(2), 400)
	for _, phys := range allocated {
		// Every previously allocated block must now be free: Free returns
		// ErrAlreadyFree only for a block whose bit is already clear.
		err := alloc.Free(uint32(phys))
		assert.ErrorIs(t, err, cofs.ErrAlreadyFree)
	}
}
