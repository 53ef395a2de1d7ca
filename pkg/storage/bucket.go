package storage

import (
	"encoding/binary"

	"duskbase/pkg/primitives"
	"duskbase/pkg/types"
)

const (
	bucketKeySize   = 8 // types.Int64Field
	bucketValueSize = 8 // primitives.RID: page_id(4) + slot(4)
	bucketSlotSize  = bucketKeySize + bucketValueSize
)

// BucketArraySize is the number of (key, value) slots a bucket page can
// hold once the two parallel occupied/readable bitmaps are accounted for:
// floor((4*PAGE_SIZE - 8) / (4*(sizeof(key)+sizeof(value)) + 1)).
const BucketArraySize = (4*primitives.PageSize - 8) / (4*bucketSlotSize + 1)

const (
	bucketOccupiedBytes  = (BucketArraySize + 7) / 8
	bucketReadableOffset = bucketOccupiedBytes
	bucketReadableBytes  = (BucketArraySize + 7) / 8
	bucketSlotsOffset    = bucketReadableOffset + bucketReadableBytes
	bucketTotalSize      = bucketSlotsOffset + BucketArraySize*bucketSlotSize
)

func init() {
	if bucketTotalSize > primitives.PageSize {
		panic("storage: bucket layout exceeds PageSize")
	}
}

// Entry is a live (key, value) pair read out of a bucket, used when
// rehashing during a split.
type Entry struct {
	Key   types.Int64Field
	Value primitives.RID
}

// Bucket overlays a bucket page's raw bytes: two parallel bitmaps
// (occupied, readable) followed by a flat slot array.
type Bucket struct {
	buf []byte
}

// NewBucket wraps buf (a buffer.Frame's Data[:]) as a bucket page.
func NewBucket(buf []byte) *Bucket {
	return &Bucket{buf: buf}
}

func setBit(arr []byte, i uint32, v bool) {
	pos := i / 8
	bit := byte(0b10000000 >> (i % 8))
	if v {
		arr[pos] |= bit
	} else {
		arr[pos] &^= bit
	}
}

func getBit(arr []byte, i uint32) bool {
	pos := i / 8
	bit := byte(0b10000000 >> (i % 8))
	return arr[pos]&bit != 0
}

func (b *Bucket) occupied() []byte {
	return b.buf[0:bucketOccupiedBytes]
}

func (b *Bucket) readable() []byte {
	return b.buf[bucketReadableOffset : bucketReadableOffset+bucketReadableBytes]
}

// IsOccupied reports whether slot i has ever held an entry (occupied bit).
func (b *Bucket) IsOccupied(i uint32) bool { return getBit(b.occupied(), i) }

func (b *Bucket) setOccupied(i uint32, v bool) { setBit(b.occupied(), i, v) }

// IsReadable reports whether slot i currently holds a live entry.
func (b *Bucket) IsReadable(i uint32) bool { return getBit(b.readable(), i) }

func (b *Bucket) setReadable(i uint32, v bool) { setBit(b.readable(), i, v) }

func (b *Bucket) slotOffset(i uint32) int {
	return bucketSlotsOffset + int(i)*bucketSlotSize
}

// KeyAt returns the key stored at slot i, regardless of readability.
func (b *Bucket) KeyAt(i uint32) types.Int64Field {
	off := b.slotOffset(i)
	return types.Int64Field(int64(binary.BigEndian.Uint64(b.buf[off : off+8])))
}

func (b *Bucket) setKeyAt(i uint32, k types.Int64Field) {
	off := b.slotOffset(i)
	binary.BigEndian.PutUint64(b.buf[off:off+8], uint64(int64(k)))
}

// ValueAt returns the value stored at slot i, regardless of readability.
func (b *Bucket) ValueAt(i uint32) primitives.RID {
	off := b.slotOffset(i) + 8
	pageID := primitives.PageID(int32(binary.BigEndian.Uint32(b.buf[off : off+4])))
	slot := binary.BigEndian.Uint32(b.buf[off+4 : off+8])
	return primitives.RID{PageID: pageID, Slot: slot}
}

func (b *Bucket) setValueAt(i uint32, v primitives.RID) {
	off := b.slotOffset(i) + 8
	binary.BigEndian.PutUint32(b.buf[off:off+4], uint32(int32(v.PageID)))
	binary.BigEndian.PutUint32(b.buf[off+4:off+8], v.Slot)
}

// RemoveAt clears the readable bit at slot i, tombstoning it without
// disturbing the occupied bit: a slot is tombstoned iff occupied but not
// readable.
func (b *Bucket) RemoveAt(i uint32) {
	b.setReadable(i, false)
}

// GetValue scans the slot array, appending matches until the first
// non-occupied slot.
func (b *Bucket) GetValue(key types.Int64Field) []primitives.RID {
	var out []primitives.RID
	for i := uint32(0); i < BucketArraySize; i++ {
		if !b.IsOccupied(i) {
			break
		}
		if b.IsReadable(i) && b.KeyAt(i).Equals(key) {
			out = append(out, b.ValueAt(i))
		}
	}
	return out
}

// AllSameKey reports whether every occupied+readable slot holds key,
// meaning the bucket cannot be split productively.
func (b *Bucket) AllSameKey(key types.Int64Field) bool {
	seenAny := false
	for i := uint32(0); i < BucketArraySize; i++ {
		if !b.IsOccupied(i) {
			break
		}
		if !b.IsReadable(i) {
			continue
		}
		seenAny = true
		if !b.KeyAt(i).Equals(key) {
			return false
		}
	}
	return seenAny
}

// Insert adds (key, value), returning false if that exact pair is already
// present or the bucket is full.
func (b *Bucket) Insert(key types.Int64Field, value primitives.RID) bool {
	for i := uint32(0); i < BucketArraySize; i++ {
		if !b.IsOccupied(i) {
			break
		}
		if b.IsReadable(i) && b.KeyAt(i).Equals(key) && b.ValueAt(i) == value {
			return false
		}
	}
	for i := uint32(0); i < BucketArraySize; i++ {
		if !(b.IsOccupied(i) && b.IsReadable(i)) {
			b.setOccupied(i, true)
			b.setReadable(i, true)
			b.setKeyAt(i, key)
			b.setValueAt(i, value)
			return true
		}
	}
	return false
}

// Remove clears the readable bit of the first matching (key, value) slot.
func (b *Bucket) Remove(key types.Int64Field, value primitives.RID) bool {
	for i := uint32(0); i < BucketArraySize; i++ {
		if !b.IsOccupied(i) {
			break
		}
		if b.IsReadable(i) && b.KeyAt(i).Equals(key) && b.ValueAt(i) == value {
			b.RemoveAt(i)
			return true
		}
	}
	return false
}

// IsFull reports whether every slot is both occupied and readable, with no
// gaps left to insert into.
func (b *Bucket) IsFull() bool {
	for i := uint32(0); i < BucketArraySize; i++ {
		if !b.IsOccupied(i) {
			return false
		}
		if !b.IsReadable(i) {
			return false
		}
	}
	return true
}

// NumReadable counts live slots up to the first non-occupied slot.
func (b *Bucket) NumReadable() uint32 {
	var n uint32
	for i := uint32(0); i < BucketArraySize; i++ {
		if !b.IsOccupied(i) {
			return n
		}
		if b.IsReadable(i) {
			n++
		}
	}
	return n
}

// IsEmpty reports whether the bucket holds no live entries.
func (b *Bucket) IsEmpty() bool {
	for i := uint32(0); i < BucketArraySize; i++ {
		if !b.IsOccupied(i) {
			return true
		}
		if b.IsReadable(i) {
			return false
		}
	}
	return true
}

// AllEntries returns every live entry, used when rehashing a bucket during
// a split.
func (b *Bucket) AllEntries() []Entry {
	var out []Entry
	for i := uint32(0); i < BucketArraySize; i++ {
		if !b.IsOccupied(i) {
			break
		}
		if b.IsReadable(i) {
			out = append(out, Entry{Key: b.KeyAt(i), Value: b.ValueAt(i)})
		}
	}
	return out
}

// Reset clears the bucket to empty, used both for freshly allocated split
// pages (whose frame is already zeroed) and for the old bucket being
// rehashed in place.
func (b *Bucket) Reset() {
	for i := range b.buf {
		b.buf[i] = 0
	}
}

// Stats reports occupied/readable/free counts, an inspection helper for
// diagnostics and tests.
type Stats struct {
	Size, Taken, Free uint32
}

func (b *Bucket) Stats() Stats {
	var s Stats
	for i := uint32(0); i < BucketArraySize; i++ {
		if !b.IsOccupied(i) {
			break
		}
		s.Size++
		if b.IsReadable(i) {
			s.Taken++
		} else {
			s.Free++
		}
	}
	return s
}
