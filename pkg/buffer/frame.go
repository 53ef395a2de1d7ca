package buffer

import (
	"sync"

	"duskbase/pkg/primitives"
)

// Frame is a fixed slot in one buffer pool instance's array. It owns at
// most one page at a time. Latch is a readers/writer latch for the
// convenience of clients, not used by the pool itself — the pool's own
// bookkeeping is serialized by the instance mutex, never by Latch.
type Frame struct {
	ID       primitives.FrameID
	PageID   primitives.PageID
	Data     [primitives.PageSize]byte
	PinCount int
	IsDirty  bool
	Latch    sync.RWMutex
}

func newFrame(id primitives.FrameID) *Frame {
	return &Frame{ID: id, PageID: primitives.InvalidPageID}
}

func (f *Frame) reset(pageID primitives.PageID) {
	f.PageID = pageID
	f.PinCount = 1
	f.IsDirty = false
	for i := range f.Data {
		f.Data[i] = 0
	}
}
