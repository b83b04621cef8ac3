package fsstat_test

import (
	"testing"

	"github.com/MrBad/cofs/cofstest"
	"github.com/MrBad/cofs/fsstat"
	"github.com/MrBad/cofs/mkfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeReportsFreshlyFormattedImage(t *testing.T) {
	device := cofstest.NewImage(2048)
	builder, err := mkfs.New(device)
	require.NoError(t, err)

	info, err := fsstat.Compute(builder.Cache, builder.Super, builder.Table)
	require.NoError(t, err)

	assert.EqualValues(t, builder.Super.Size, info.TotalBlocks)
	assert.EqualValues(t, builder.Super.NumInodes, info.TotalInodes)
	assert.Less(t, info.FreeBlocks, info.TotalBlocks)
	assert.Greater(t, info.FreeBlocks, uint32(0))
	// Only the root inode is allocated. Slot 0 is the reserved null inode and
	// is never counted, so every slot from 2 up must read free.
	assert.EqualValues(t, info.TotalInodes-2, info.FreeInodes)
}
