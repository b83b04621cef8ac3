package dirent_test

import (
	"fmt"
	"testing"

	"github.com/MrBad/cofs"
	"github.com/MrBad/cofs/bitmap"
	"github.com/MrBad/cofs/block"
	"github.com/MrBad/cofs/cofstest"
	"github.com/MrBad/cofs/dirent"
	"github.com/MrBad/cofs/inode"
	"github.com/MrBad/cofs/super"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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
		_, err := alloc.Alloc()
		require.NoError(t, err)
	}
	return cache, inode.NewTable(cache, sb, alloc)
}

func newRootDir(t *testing.T, cache *block.Cache, table *inode.Table) *inode.Inode {
	t.Helper()
	root, err := table.AllocInode(cofs.TypeDir)
	require.NoError(t, err)
	root.Nlink = 1
	c := dirent.NewCursor(cache, table, root)
	require.NoError(t, c.Link(root.Ino, "."))
	require.NoError(t, c.Link(root.Ino, ".."))
	root.Nlink++
	require.NoError(t, table.Iput(root))
	return root
}

func TestRootHasDotAndDotDot(t *testing.T) {
	cache, table := newTestTable(t, 300, 32)
	root := newRootDir(t, cache, table)

	c := dirent.NewCursor(cache, table, root)
	entries, err := c.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ".", entries[0].Name)
	assert.Equal(t, root.Ino, entries[0].Ino)
	assert.Equal(t, "..", entries[1].Name)
	assert.Equal(t, root.Ino, entries[1].Ino)
	assert.EqualValues(t, 2, root.Nlink)
	assert.EqualValues(t, cofs.BlockSize, root.Size)
}

func TestCreateThenLookup(t *testing.T) {
	cache, table := newTestTable(t, 300, 32)
	root := newRootDir(t, cache, table)

	child, err := dirent.Create(cache, table, root, "hello.txt")
	require.NoError(t, err)
	assert.True(t, child.IsFile())
	assert.EqualValues(t, 1, child.Nlink)

	found, ok, err := dirent.NewCursor(cache, table, root).Lookup("hello.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, child.Ino, found)
}

func TestLookupMissingNameNotFound(t *testing.T) {
	cache, table := newTestTable(t, 300, 32)
	root := newRootDir(t, cache, table)

	_, ok, err := dirent.NewCursor(cache, table, root).Lookup("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMkdirLinksBackToParent(t *testing.T) {
	cache, table := newTestTable(t, 300, 32)
	root := newRootDir(t, cache, table)
	rootNlinkBefore := root.Nlink

	sub, err := dirent.Mkdir(cache, table, root, "sub")
	require.NoError(t, err)
	assert.True(t, sub.IsDir())
	assert.EqualValues(t, rootNlinkBefore+1, root.Nlink)

	subEntries, err := dirent.NewCursor(cache, table, sub).List()
	require.NoError(t, err)
	require.Len(t, subEntries, 2)
	assert.Equal(t, sub.Ino, subEntries[0].Ino)
	assert.Equal(t, root.Ino, subEntries[1].Ino)
}

func TestLinkFillsBlockBeforeGrowing(t *testing.T) {
	cache, table := newTestTable(t, 400, 64)
	root := newRootDir(t, cache, table)
	sizeAfterInit := root.Size
	require.EqualValues(t, cofs.BlockSize, sizeAfterInit)

	// The root block already holds "." and "..", leaving
	// DirentsPerBlock-2 free slots before a second block is needed.
	for i := 0; i < cofs.DirentsPerBlock-2; i++ {
		_, err := dirent.Create(cache, table, root, fmt.Sprintf("f%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, sizeAfterInit, root.Size, "filling existing slots must not grow the directory")

	_, err := dirent.Create(cache, table, root, "overflow")
	require.NoError(t, err)
	assert.Equal(t, sizeAfterInit+cofs.BlockSize, root.Size, "a full block must grow the directory")
}

func TestReaddirYieldsEveryNonEmptyEntryInOrder(t *testing.T) {
	cache, table := newTestTable(t, 300, 32)
	root := newRootDir(t, cache, table)

	var names []string
	for i := 0; i < 3; i++ {
		_, err := dirent.Create(cache, table, root, fmt.Sprintf("f%d", i))
		require.NoError(t, err)
		names = append(names, fmt.Sprintf("f%d", i))
	}

	var seen []string
	c := dirent.NewCursor(cache, table, root)
	_, err := c.Readdir(0, func(ino inode.Num, name string) bool {
		seen = append(seen, name)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, append([]string{".", ".."}, names...), seen)
}
