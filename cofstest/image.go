// Package cofstest provides helpers for building in-memory file system
// images in tests: a plain byte slice wrapped as an io.ReadWriteSeeker,
// with no real device involved.
package cofstest

import (
	"github.com/MrBad/cofs"
	"github.com/MrBad/cofs/block"
	"github.com/xaionaro-go/bytesextra"
)

// NewImage allocates an all-zero in-memory image of numBlocks blocks and
// wraps it as a block.Device.
func NewImage(numBlocks uint32) block.Device {
	raw := make([]byte, uint64(numBlocks)*cofs.BlockSize)
	stream := bytesextra.NewReadWriteSeeker(raw)
	return block.NewStreamDevice(stream, numBlocks)
}
