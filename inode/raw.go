// Package inode implements the inode table, the block map, and the inode
// lifecycle (iget/iput/evict).
package inode

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/MrBad/cofs"
)

// Num identifies an inode by its slot number in the inode table. Inode 0 is
// reserved as the "null inode" and is never allocated; inode 1 is always the
// root directory once the image has been formatted.
type Num uint32

// RawInode is the on-disk inode record (cofs_inode_t): fixed at
// cofs.InodeSize bytes, holding the direct/single-indirect/double-indirect
// pointer table in Addrs.
type RawInode struct {
	Type      uint16
	Major     uint16
	Minor     uint16
	Uid       uint16
	Gid       uint16
	NumLinks  uint16
	Atime     uint32
	Mtime     uint32
	Ctime     uint32
	Size      uint32
	Addrs     [cofs.NumAddrs]uint32
}

// Inode is the in-memory form of a RawInode: the decoded fields plus the
// slot number and a dirty flag. It owns the authoritative copy of Addrs —
// bmap and Truncate mutate it directly and mark it dirty, and Table.Iput
// persists the whole record (including Addrs) every time it's called, so
// there is no separate on-disk buffer for Addrs to fall out of sync with.
type Inode struct {
	Ino      Num
	Mode     uint16
	Major    uint16
	Minor    uint16
	Uid      uint16
	Gid      uint16
	Nlink    uint16
	Atime    time.Time
	Mtime    time.Time
	Ctime    time.Time
	Size     int64
	Addrs    [cofs.NumAddrs]uint32
	dirty    bool
}

// Type returns the file-type bits of Mode (cofs.TypeFile, cofs.TypeDir, ...).
func (in *Inode) Type() uint16 {
	return in.Mode & cofs.TypeMask
}

func (in *Inode) IsDir() bool  { return in.Type() == cofs.TypeDir }
func (in *Inode) IsFile() bool { return in.Type() == cofs.TypeFile }
func (in *Inode) IsFree() bool { return in.Mode == cofs.TypeFree }

func (in *Inode) markDirty() { in.dirty = true }

// decodeRawInode decodes cofs.InodeSize bytes into a RawInode.
func decodeRawInode(data []byte) (RawInode, error) {
	var raw RawInode
	err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &raw)
	return raw, err
}

// encodeRawInode encodes raw into exactly cofs.InodeSize bytes.
func encodeRawInode(raw RawInode) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func rawFromInode(in *Inode) RawInode {
	return RawInode{
		Type:     in.Mode,
		Major:    in.Major,
		Minor:    in.Minor,
		Uid:      in.Uid,
		Gid:      in.Gid,
		NumLinks: in.Nlink,
		Atime:    uint32(in.Atime.Unix()),
		Mtime:    uint32(in.Mtime.Unix()),
		Ctime:    uint32(in.Ctime.Unix()),
		Size:     uint32(in.Size),
		Addrs:    in.Addrs,
	}
}

func inodeFromRaw(ino Num, raw RawInode) *Inode {
	return &Inode{
		Ino:   ino,
		Mode:  raw.Type,
		Major: raw.Major,
		Minor: raw.Minor,
		Uid:   raw.Uid,
		Gid:   raw.Gid,
		Nlink: raw.NumLinks,
		Atime: time.Unix(int64(raw.Atime), 0),
		Mtime: time.Unix(int64(raw.Mtime), 0),
		Ctime: time.Unix(int64(raw.Ctime), 0),
		Size:  int64(raw.Size),
		Addrs: raw.Addrs,
	}
}
