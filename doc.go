// Package cofs defines the on-disk constants and error vocabulary shared by
// every layer of the file system: block device I/O, the bitmap allocator,
// the inode table, the block map, file I/O, directory operations, and the
// offline image builder.
package cofs

// BlockSize is the fixed size of a block, in bytes.
const BlockSize = 512

// PointersPerBlock is the number of 32-bit block pointers that fit in one
// block. It is the fan-out of both the single- and double-indirect tables.
const PointersPerBlock = BlockSize / 4

// NumDirect is the number of direct block pointers kept in an inode.
const NumDirect = 6

// SindIdx and DindIdx are the indices into an inode's address table holding
// the single- and double-indirect table pointers, respectively. The slot
// after DindIdx is reserved for a future triple-indirect pointer and is
// never written.
const (
	SindIdx  = NumDirect
	DindIdx  = NumDirect + 1
	NumAddrs = NumDirect + 3
)

// MaxFileBlocks is the number of inode-relative blocks representable through
// the direct/single-indirect/double-indirect pointer tree; valid block
// indices run from 0 to MaxFileBlocks-1.
const MaxFileBlocks = NumDirect + PointersPerBlock + PointersPerBlock*PointersPerBlock

// MaxFileSize is MaxFileBlocks expressed in bytes.
const MaxFileSize = MaxFileBlocks * BlockSize

// Magic is the superblock's magic number.
const Magic uint32 = 0xC0517155

// InodeSize is the on-disk size of one raw inode record, in bytes. It is
// written out as a literal and matches the packed size of RawInode's fields
// (six 16-bit, four 32-bit, and NumAddrs 32-bit words); BlockSize must be
// an exact multiple of it.
const InodeSize = 64

// NumInodesPerBlock is the number of raw inode records packed into one block.
const NumInodesPerBlock = BlockSize / InodeSize

// DirentSize is the on-disk size of one directory entry record, in bytes.
const DirentSize = 32

// DirentsPerBlock is the number of directory entries packed into one block.
const DirentsPerBlock = BlockSize / DirentSize

// NameMaxLen is the maximum length of a directory entry name, in bytes. Names
// shorter than this are NUL-padded; a name that fills it entirely is not
// NUL-terminated.
const NameMaxLen = 28

// BitsPerBlock is the number of bitmap bits (i.e. blocks) tracked by one
// bitmap block.
const BitsPerBlock = BlockSize * 8

// File type bits, stored in a RawInode's Type field. These occupy the same
// bit positions as the high bits of a Unix mode so that a type value and a
// permission value can be OR'd together freely.
const (
	TypeFree   = 0
	TypeFile   = 0o100000
	TypeDir    = 0o040000
	TypeLink   = 0o120000
	TypeDevice = 0o060000
	TypeMask   = 0o170000
)
