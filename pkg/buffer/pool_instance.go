package buffer

import (
	"sync"

	"duskbase/pkg/disk"
	"duskbase/pkg/logging"
	"duskbase/pkg/primitives"
	"duskbase/pkg/walstub"
)

// PoolInstance is one shard of a buffer pool: a contiguous array of
// frames, a free list, a page-id-to-frame map and one LRU replacer. All
// public operations take mu.
type PoolInstance struct {
	mu sync.Mutex

	frames        []*Frame
	freeList      []primitives.FrameID
	pageTable     map[primitives.PageID]primitives.FrameID
	replacer      *Replacer
	disk          disk.Manager
	log           *walstub.Manager // kept as a seam for a future write-ahead log; not yet read
	numInstances  int
	instanceIndex int
	nextPageID    primitives.PageID
}

// NewPoolInstance builds one shard of size poolSize. instanceIndex must be
// in [0, numInstances). New pages allocated by this instance always
// satisfy page_id mod numInstances == instanceIndex ("sticky sharding").
func NewPoolInstance(poolSize, numInstances, instanceIndex int, d disk.Manager, log *walstub.Manager) *PoolInstance {
	frames := make([]*Frame, poolSize)
	free := make([]primitives.FrameID, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = newFrame(primitives.FrameID(i))
		free[i] = primitives.FrameID(i)
	}
	return &PoolInstance{
		frames:        frames,
		freeList:      free,
		pageTable:     make(map[primitives.PageID]primitives.FrameID),
		replacer:      NewReplacer(),
		disk:          d,
		log:           log,
		numInstances:  numInstances,
		instanceIndex: instanceIndex,
		nextPageID:    primitives.PageID(instanceIndex),
	}
}

func (p *PoolInstance) allocatePageID() primitives.PageID {
	id := p.nextPageID
	p.nextPageID += primitives.PageID(p.numInstances)
	return id
}

// obtainFrame finds a frame to use for a new resident page: prefer the
// free list, else evict the replacer's victim. Returns false if neither
// source has a frame available (BufferExhausted).
func (p *PoolInstance) obtainFrame() (*Frame, bool) {
	if len(p.freeList) > 0 {
		id := p.freeList[0]
		p.freeList = p.freeList[1:]
		return p.frames[id], true
	}

	victimID, ok := p.replacer.Victim()
	if !ok {
		return nil, false
	}
	frame := p.frames[victimID]
	if frame.PageID.IsValid() {
		if frame.IsDirty {
			p.flushFrameLocked(frame)
		}
		delete(p.pageTable, frame.PageID)
	}
	return frame, true
}

func (p *PoolInstance) flushFrameLocked(f *Frame) {
	if err := p.disk.WritePage(f.PageID, f.Data[:]); err != nil {
		logging.WithPage(int32(f.PageID)).Error("flush failed", "err", err)
		return
	}
	f.IsDirty = false
}

// NewPage allocates a fresh page, pins it on the caller's behalf and
// returns its id and frame. Returns false (BufferExhausted) if no frame is
// available.
func (p *PoolInstance) NewPage() (primitives.PageID, *Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	frame, ok := p.obtainFrame()
	if !ok {
		return primitives.InvalidPageID, nil, false
	}

	pageID := p.allocatePageID()
	frame.reset(pageID)
	p.pageTable[pageID] = frame.ID
	logging.WithPage(int32(pageID)).Debug("new page", "frame", frame.ID)
	return pageID, frame, true
}

// FetchPage returns the frame holding pageID, reading it from disk if
// necessary, and increments its pin count. Returns false (BufferExhausted)
// if the page is not resident and no frame is available to bring it in.
func (p *PoolInstance) FetchPage(pageID primitives.PageID) (*Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if frameID, ok := p.pageTable[pageID]; ok {
		frame := p.frames[frameID]
		if frame.PinCount == 0 {
			p.replacer.Pin(frameID)
		}
		frame.PinCount++
		return frame, true
	}

	frame, ok := p.obtainFrame()
	if !ok {
		return nil, false
	}
	frame.reset(pageID)
	if err := p.disk.ReadPage(pageID, frame.Data[:]); err != nil {
		logging.WithPage(int32(pageID)).Error("read failed", "err", err)
		p.freeList = append(p.freeList, frame.ID)
		return nil, false
	}
	p.pageTable[pageID] = frame.ID
	return frame, true
}

// UnpinPage decrements pageID's pin count, ORing in isDirty. When the pin
// count reaches zero the frame becomes evictable. Returns false only if
// the page was resident with a pin count already at zero (caller bug);
// returns true if the page is not resident at all (nothing to do).
func (p *PoolInstance) UnpinPage(pageID primitives.PageID, isDirty bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameID, ok := p.pageTable[pageID]
	if !ok {
		return true
	}
	frame := p.frames[frameID]
	if isDirty {
		frame.IsDirty = true
	}
	if frame.PinCount <= 0 {
		return false
	}
	frame.PinCount--
	if frame.PinCount == 0 {
		p.replacer.Unpin(frameID)
	}
	return true
}

// FlushPage writes pageID to disk if resident and dirty. Returns false
// only if the page is not resident.
func (p *PoolInstance) FlushPage(pageID primitives.PageID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameID, ok := p.pageTable[pageID]
	if !ok {
		return false
	}
	frame := p.frames[frameID]
	if frame.IsDirty {
		p.flushFrameLocked(frame)
	}
	return true
}

// FlushAllPages flushes every resident dirty page in this instance under
// a single critical section.
func (p *PoolInstance) FlushAllPages() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for pageID := range p.pageTable {
		frame := p.frames[p.pageTable[pageID]]
		if frame.IsDirty {
			p.flushFrameLocked(frame)
		}
	}
}

// DeletePage removes pageID from the pool and deallocates it on disk.
// Returns true if the page was not resident (nothing to do) or was
// deleted successfully. Returns false if the page is resident with a
// nonzero pin count.
func (p *PoolInstance) DeletePage(pageID primitives.PageID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameID, ok := p.pageTable[pageID]
	if !ok {
		return true
	}
	frame := p.frames[frameID]
	if frame.PinCount > 0 {
		return false
	}
	if frame.IsDirty {
		p.flushFrameLocked(frame)
	}
	p.replacer.Pin(frameID)
	delete(p.pageTable, pageID)
	frame.PageID = primitives.InvalidPageID
	p.freeList = append(p.freeList, frameID)
	p.disk.DeallocatePage(pageID)
	return true
}
