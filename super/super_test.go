package super_test

import (
	"testing"

	"github.com/MrBad/cofs"
	"github.com/MrBad/cofs/block"
	"github.com/MrBad/cofs/cofstest"
	"github.com/MrBad/cofs/super"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreThenLoadRoundTrip(t *testing.T) {
	device := cofstest.NewImage(64)
	cache := block.NewCache(device)

	sb := &super.Superblock{
		Magic:       cofs.Magic,
		Size:        64,
		NumBlocks:   50,
		NumInodes:   32,
		BitmapStart: 2,
		InodeStart:  3,
		DataBlock:   10,
	}
	require.NoError(t, super.Store(cache, sb))

	loaded, err := super.Load(cache)
	require.NoError(t, err)
	assert.Equal(t, sb, loaded)
}

func TestLoadRejectsBadMagic(t *testing.T) {
	device := cofstest.NewImage(64)
	cache := block.NewCache(device)

	_, err := super.Load(cache)
	assert.ErrorIs(t, err, cofs.ErrInvalidFormat)
}
