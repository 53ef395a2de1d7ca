// Package storage defines the on-disk layouts of the extendible hash
// table's directory and bucket pages: byte-array overlays reinterpreted
// through explicit accessor functions, with fixed field offsets rather
// than a generic serialization format. Both types operate directly on a
// buffer.Frame's Data slice, so mutations are visible to the buffer pool
// without any extra serialize/deserialize step; callers mark the frame
// dirty on unpin once they are done.
package storage

import (
	"encoding/binary"

	"duskbase/pkg/primitives"
)

// DirectorySlots is the total directory capacity, 1<<MaxDirectoryDepth:
// directory depth is capped at 9 so the directory always fits one page.
const DirectorySlots = 1 << primitives.MaxDirectoryDepth

// Directory page layout: page_id(4) | lsn(8) | global_depth(4) |
// local_depths[DirectorySlots](1 byte each) | bucket_page_ids[DirectorySlots](4 bytes each).
const (
	dirPageIDOffset      = 0
	dirLSNOffset         = 4
	dirGlobalDepthOffset = 12
	dirLocalDepthsOffset = 16
	dirBucketIDsOffset   = dirLocalDepthsOffset + DirectorySlots
	dirTotalSize         = dirBucketIDsOffset + DirectorySlots*4
)

func init() {
	if dirTotalSize > primitives.PageSize {
		panic("storage: directory layout exceeds PageSize")
	}
}

// Directory overlays a directory page's raw bytes.
type Directory struct {
	buf []byte
}

// NewDirectory wraps buf (which must be exactly primitives.PageSize bytes,
// typically a buffer.Frame's Data[:]) as a directory page.
func NewDirectory(buf []byte) *Directory {
	return &Directory{buf: buf}
}

// Init sets up a freshly allocated directory page: global depth 0, every
// bucket id InvalidPageID, every local depth 0. Buffer pool frames start
// zeroed, which is correct for everything except the bucket ids (0 would
// otherwise look like a valid page id).
func (d *Directory) Init() {
	d.SetGlobalDepth(0)
	for i := uint32(0); i < DirectorySlots; i++ {
		d.SetBucketPageID(i, primitives.InvalidPageID)
		d.SetLocalDepth(i, 0)
	}
}

func (d *Directory) PageID() primitives.PageID {
	return primitives.PageID(int32(binary.BigEndian.Uint32(d.buf[dirPageIDOffset:])))
}

// SetPageID records this page's own id in its header field; the buffer
// pool is the source of truth for page identity, this is bookkeeping only.
func (d *Directory) SetPageID(id primitives.PageID) {
	binary.BigEndian.PutUint32(d.buf[dirPageIDOffset:], uint32(int32(id)))
}

// GlobalDepth returns the number of low hash bits used to index the
// directory.
func (d *Directory) GlobalDepth() uint32 {
	return binary.BigEndian.Uint32(d.buf[dirGlobalDepthOffset:])
}

// SetGlobalDepth writes the global depth field directly. Init, Grow and
// Shrink go through it; it performs no check of the local depths.
func (d *Directory) SetGlobalDepth(v uint32) {
	binary.BigEndian.PutUint32(d.buf[dirGlobalDepthOffset:], v)
}

// LocalDepth returns the number of bits that discriminate entries in the
// bucket referenced by directory slot i.
func (d *Directory) LocalDepth(i uint32) uint8 {
	return d.buf[dirLocalDepthsOffset+i]
}

// SetLocalDepth sets slot i's local depth.
func (d *Directory) SetLocalDepth(i uint32, v uint8) {
	d.buf[dirLocalDepthsOffset+i] = v
}

// BucketPageID returns the bucket page id referenced by directory slot i.
func (d *Directory) BucketPageID(i uint32) primitives.PageID {
	off := dirBucketIDsOffset + i*4
	return primitives.PageID(int32(binary.BigEndian.Uint32(d.buf[off:])))
}

// SetBucketPageID sets slot i's bucket page id.
func (d *Directory) SetBucketPageID(i uint32, id primitives.PageID) {
	off := dirBucketIDsOffset + i*4
	binary.BigEndian.PutUint32(d.buf[off:], uint32(int32(id)))
}

// DirIndex computes dir_index(k) = hash(k) & ((1<<global_depth) - 1).
func DirIndex(hash uint32, globalDepth uint32) uint32 {
	if globalDepth == 0 {
		return 0
	}
	mask := uint32(1)<<globalDepth - 1
	return hash & mask
}

// SplitImageIndex computes split_image(i) = i ^ (1 << (global_depth - 1)),
// deliberately using the *current* global depth's high bit rather than the
// bucket's own local depth, so a slot's split image always tracks the
// directory's present size even after intervening grows. Callers must
// only invoke this when GlobalDepth() > 0.
func (d *Directory) SplitImageIndex(i uint32) uint32 {
	gd := d.GlobalDepth()
	return i ^ (uint32(1) << (gd - 1))
}

// Grow doubles the directory: every slot i < 1<<global_depth is copied to
// slot i + 1<<global_depth, then global_depth is incremented.
func (d *Directory) Grow() {
	gd := d.GlobalDepth()
	n := uint32(1) << gd
	for i := uint32(0); i < n; i++ {
		d.SetBucketPageID(i+n, d.BucketPageID(i))
		d.SetLocalDepth(i+n, d.LocalDepth(i))
	}
	d.SetGlobalDepth(gd + 1)
}

// Shrink decrements global_depth. Callers must check CanShrink first.
func (d *Directory) Shrink() {
	d.SetGlobalDepth(d.GlobalDepth() - 1)
}

// CanShrink reports whether every live slot's local depth is strictly less
// than global_depth.
func (d *Directory) CanShrink() bool {
	gd := d.GlobalDepth()
	if gd == 0 {
		return false
	}
	n := uint32(1) << gd
	for i := uint32(0); i < n; i++ {
		if uint32(d.LocalDepth(i)) == gd {
			return false
		}
	}
	return true
}
