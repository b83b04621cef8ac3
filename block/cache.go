package block

import (
	"github.com/MrBad/cofs"
	"github.com/boljen/go-bitmap"
)

// Cache is a write-back cache over a Device, keyed by block number. Callers
// acquire a Handle with Get, mutate its Data in place, call MarkDirty if they
// changed it, and Release it when done. Dirty blocks are written back to the
// Device on Flush.
//
// Unlike a bounded LRU, Cache keeps every block it has ever loaded resident
// for the lifetime of the mount — disk images handled by this file system
// top out at a few thousand blocks, so the memory cost of never evicting is
// negligible next to the simplicity it buys.
type Cache struct {
	device  Device
	loaded  bitmap.Bitmap
	dirty   bitmap.Bitmap
	data    []byte
	refs    []int32
}

// NewCache wraps device with a Cache.
func NewCache(device Device) *Cache {
	total := int(device.TotalBlocks())
	return &Cache{
		device: device,
		loaded: bitmap.NewSlice(total),
		dirty:  bitmap.NewSlice(total),
		data:   make([]byte, total*cofs.BlockSize),
		refs:   make([]int32, total),
	}
}

func (c *Cache) TotalBlocks() uint32 {
	return c.device.TotalBlocks()
}

// Handle is a pinned view into one cached block's bytes.
type Handle struct {
	id    ID
	data  []byte
	cache *Cache
}

// Data returns the block's bytes. Mutations are visible to every other
// holder of a Handle to the same block; call MarkDirty after writing.
func (h *Handle) Data() []byte {
	return h.data
}

// ID returns the physical block number this handle refers to.
func (h *Handle) ID() ID {
	return h.id
}

// MarkDirty flags the block as needing to be written back on Flush.
func (h *Handle) MarkDirty() {
	h.cache.dirty.Set(int(h.id), true)
}

// Get returns a Handle for block id, fetching it from the device the first
// time it's requested. The caller must Release the handle when finished.
func (c *Cache) Get(id ID) (*Handle, error) {
	if uint32(id) >= c.device.TotalBlocks() {
		return nil, cofs.ErrInvalidArgument.WithMessage("block index out of range")
	}
	offset := int(id) * cofs.BlockSize
	slice := c.data[offset : offset+cofs.BlockSize]

	if !c.loaded.Get(int(id)) {
		if err := c.device.ReadBlock(id, slice); err != nil {
			return nil, err
		}
		c.loaded.Set(int(id), true)
	}

	c.refs[id]++
	return &Handle{id: id, data: slice, cache: c}, nil
}

// Release drops a reference to a previously acquired Handle.
func (c *Cache) Release(h *Handle) {
	if h == nil {
		return
	}
	if c.refs[h.id] > 0 {
		c.refs[h.id]--
	}
}

// Flush writes every dirty block back to the device, in ascending block
// order, then clears the dirty bitmap.
func (c *Cache) Flush() error {
	total := int(c.device.TotalBlocks())
	for i := 0; i < total; i++ {
		if !c.dirty.Get(i) {
			continue
		}
		offset := i * cofs.BlockSize
		if err := c.device.WriteBlock(ID(i), c.data[offset:offset+cofs.BlockSize]); err != nil {
			return err
		}
		c.dirty.Set(i, false)
	}
	return nil
}
