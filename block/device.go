// Package block provides the block device abstraction: fixed-size reads and
// writes by block index, plus a small write-back cache that the rest of the
// file system acquires and releases block handles through.
package block

import (
	"fmt"
	"io"

	"github.com/MrBad/cofs"
)

// ID is a physical block number, addressing a fixed cofs.BlockSize-byte
// block within the whole image (including the unused block 0, the
// superblock, the bitmap, and the inode table).
type ID uint32

// Device reads and writes whole blocks of exactly cofs.BlockSize bytes.
type Device interface {
	ReadBlock(id ID, buf []byte) error
	WriteBlock(id ID, buf []byte) error
	TotalBlocks() uint32
}

// StreamDevice adapts an io.ReadWriteSeeker (an *os.File or an in-memory
// image, see cofstest) into a Device of fixed-size blocks. Every access seeks
// first, which is safe because the file system core never interleaves two
// StreamDevice operations against the same device without an external lock.
type StreamDevice struct {
	stream      io.ReadWriteSeeker
	totalBlocks uint32
}

// NewStreamDevice wraps stream as a Device with totalBlocks blocks of
// cofs.BlockSize bytes each.
func NewStreamDevice(stream io.ReadWriteSeeker, totalBlocks uint32) *StreamDevice {
	return &StreamDevice{stream: stream, totalBlocks: totalBlocks}
}

func (d *StreamDevice) TotalBlocks() uint32 {
	return d.totalBlocks
}

func (d *StreamDevice) checkBounds(id ID) error {
	if uint32(id) >= d.totalBlocks {
		return cofs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("block %d not in range [0, %d)", id, d.totalBlocks))
	}
	return nil
}

func (d *StreamDevice) ReadBlock(id ID, buf []byte) error {
	if err := d.checkBounds(id); err != nil {
		return err
	}
	if len(buf) != cofs.BlockSize {
		return cofs.ErrInvalidArgument.WithMessage("buffer must be exactly one block")
	}
	if _, err := d.stream.Seek(int64(id)*cofs.BlockSize, io.SeekStart); err != nil {
		return cofs.ErrIO.Wrap(err)
	}
	n, err := io.ReadFull(d.stream, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return cofs.ErrIO.Wrap(err)
	}
	for ; n < len(buf); n++ {
		buf[n] = 0
	}
	return nil
}

func (d *StreamDevice) WriteBlock(id ID, buf []byte) error {
	if err := d.checkBounds(id); err != nil {
		return err
	}
	if len(buf) != cofs.BlockSize {
		return cofs.ErrInvalidArgument.WithMessage("buffer must be exactly one block")
	}
	if _, err := d.stream.Seek(int64(id)*cofs.BlockSize, io.SeekStart); err != nil {
		return cofs.ErrIO.Wrap(err)
	}
	if _, err := d.stream.Write(buf); err != nil {
		return cofs.ErrIO.Wrap(err)
	}
	return nil
}
