package buffer

import (
	"sync"
	"testing"

	"duskbase/pkg/primitives"
	"duskbase/pkg/walstub"
)

// memDisk is an in-memory disk.Manager stand-in for tests, avoiding real
// file I/O while exercising the same read/write/allocate contract.
type memDisk struct {
	mu     sync.Mutex
	pages  map[primitives.PageID][]byte
	nextID int32
	writes uint64
}

func newMemDisk() *memDisk {
	return &memDisk{pages: make(map[primitives.PageID][]byte)}
}

func (m *memDisk) ReadPage(id primitives.PageID, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.pages[id]; ok {
		copy(buf, data)
		return nil
	}
	for i := range buf {
		buf[i] = 0
	}
	return nil
}

func (m *memDisk) WritePage(id primitives.PageID, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(buf))
	copy(cp, buf)
	m.pages[id] = cp
	m.writes++
	return nil
}

func (m *memDisk) AllocatePage() primitives.PageID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	return primitives.PageID(id)
}

func (m *memDisk) DeallocatePage(id primitives.PageID) {}

func (m *memDisk) NumWrites() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *memDisk) Close() error { return nil }

func TestPoolInstanceEvictsAndReReadsFromDisk(t *testing.T) {
	d := newMemDisk()
	pool := NewPoolInstance(3, 1, 0, d, walstub.NewManager())

	var ids [4]primitives.PageID
	for i := 0; i < 3; i++ {
		id, frame, ok := pool.NewPage()
		if !ok {
			t.Fatalf("NewPage %d: expected success", i)
		}
		frame.Data[0] = byte(i + 1)
		ids[i] = id
		if !pool.UnpinPage(id, true) {
			t.Fatalf("UnpinPage %d: expected success", i)
		}
	}

	id4, frame4, ok := pool.NewPage()
	if !ok {
		t.Fatalf("fourth NewPage: expected success by evicting frame 0")
	}
	ids[3] = id4
	pool.UnpinPage(id4, false)
	_ = frame4

	frame, ok := pool.FetchPage(ids[0])
	if !ok {
		t.Fatalf("FetchPage(%v): expected success", ids[0])
	}
	if frame.Data[0] != 1 {
		t.Fatalf("re-fetched page contents = %d, want 1 (persisted before eviction)", frame.Data[0])
	}
	pool.UnpinPage(ids[0], false)
}

func TestPoolInstanceBufferExhausted(t *testing.T) {
	d := newMemDisk()
	pool := NewPoolInstance(1, 1, 0, d, walstub.NewManager())

	id, _, ok := pool.NewPage()
	if !ok {
		t.Fatalf("first NewPage: expected success")
	}
	_ = id

	if _, _, ok := pool.NewPage(); ok {
		t.Fatalf("second NewPage: expected BufferExhausted with the only frame pinned")
	}
}

func TestPoolInstancePinConservation(t *testing.T) {
	d := newMemDisk()
	pool := NewPoolInstance(2, 1, 0, d, walstub.NewManager())

	id, _, ok := pool.NewPage()
	if !ok {
		t.Fatalf("NewPage: expected success")
	}
	frame, ok := pool.FetchPage(id)
	if !ok || frame.PinCount != 2 {
		t.Fatalf("PinCount after double fetch = %d, want 2", frame.PinCount)
	}
	pool.UnpinPage(id, false)
	if frame.PinCount != 1 {
		t.Fatalf("PinCount after one unpin = %d, want 1", frame.PinCount)
	}
	pool.UnpinPage(id, false)
	if frame.PinCount != 0 {
		t.Fatalf("PinCount after second unpin = %d, want 0", frame.PinCount)
	}
}

func TestPoolInstanceStickySharding(t *testing.T) {
	d := newMemDisk()
	const numInstances = 4
	inst := NewPoolInstance(10, numInstances, 2, d, walstub.NewManager())

	for i := 0; i < 5; i++ {
		id, _, ok := inst.NewPage()
		if !ok {
			t.Fatalf("NewPage %d: expected success", i)
		}
		if int32(id)%numInstances != 2 {
			t.Fatalf("page id %d does not satisfy id mod %d == 2", id, numInstances)
		}
		inst.UnpinPage(id, false)
	}
}
