package buffer

import (
	"container/list"
	"sync"

	"duskbase/pkg/logging"
	"duskbase/pkg/primitives"
)

// Replacer tracks unpinned frames in least-recently-unpinned order and
// picks eviction victims. The zero value is not usable; use NewReplacer.
type Replacer struct {
	mu    sync.Mutex
	order *list.List
	nodes map[primitives.FrameID]*list.Element
}

// NewReplacer returns an empty LRU replacer.
func NewReplacer() *Replacer {
	return &Replacer{
		order: list.New(),
		nodes: make(map[primitives.FrameID]*list.Element),
	}
}

// Victim detaches and returns the least-recently-unpinned frame, or false
// if no frame is currently evictable.
func (r *Replacer) Victim() (primitives.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	front := r.order.Front()
	if front == nil {
		return 0, false
	}
	frameID := front.Value.(primitives.FrameID)
	r.order.Remove(front)
	delete(r.nodes, frameID)
	logging.WithFrame(int(frameID)).Debug("evicting frame")
	return frameID, true
}

// Pin removes frameID from the replacer if present. It is a no-op if the
// frame is not currently tracked (e.g. it was never unpinned, or was
// already pinned).
func (r *Replacer) Pin(frameID primitives.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if node, ok := r.nodes[frameID]; ok {
		r.order.Remove(node)
		delete(r.nodes, frameID)
	}
}

// Unpin marks frameID evictable. It is idempotent: unpinning an
// already-tracked frame does nothing.
func (r *Replacer) Unpin(frameID primitives.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[frameID]; ok {
		return
	}
	r.nodes[frameID] = r.order.PushBack(frameID)
	logging.WithFrame(int(frameID)).Debug("frame now evictable")
}

// Size returns the number of frames currently evictable.
func (r *Replacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}
