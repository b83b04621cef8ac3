package dirent

import (
	"github.com/MrBad/cofs"
	"github.com/MrBad/cofs/block"
	"github.com/MrBad/cofs/inode"
)

// Mknod allocates a fresh inode of fileType, links it into dir under name,
// and — for directories — seeds the "." and ".." entries and bumps dir's
// own link count for the child's back-pointer. This is the one place nlink
// is adjusted; Cursor.Link itself never touches it.
func Mknod(cache *block.Cache, table *inode.Table, dir *inode.Inode, name string, fileType uint16) (*inode.Inode, error) {
	child, err := table.AllocInode(fileType)
	if err != nil {
		return nil, err
	}
	child.Nlink = 1

	if fileType == cofs.TypeDir {
		childCursor := NewCursor(cache, table, child)
		if err := childCursor.Link(child.Ino, "."); err != nil {
			return nil, err
		}
		if err := childCursor.Link(dir.Ino, ".."); err != nil {
			return nil, err
		}
		dir.Nlink++
		if err := table.Iput(dir); err != nil {
			return nil, err
		}
	}

	dirCursor := NewCursor(cache, table, dir)
	if err := dirCursor.Link(child.Ino, name); err != nil {
		return nil, err
	}
	if err := table.Iput(child); err != nil {
		return nil, err
	}
	return child, nil
}

// Mkdir creates a subdirectory named name under dir.
func Mkdir(cache *block.Cache, table *inode.Table, dir *inode.Inode, name string) (*inode.Inode, error) {
	return Mknod(cache, table, dir, name, cofs.TypeDir)
}

// Create creates a regular file named name under dir.
func Create(cache *block.Cache, table *inode.Table, dir *inode.Inode, name string) (*inode.Inode, error) {
	return Mknod(cache, table, dir, name, cofs.TypeFile)
}
