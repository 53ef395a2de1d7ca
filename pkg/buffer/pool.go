package buffer

import (
	"sync/atomic"

	"duskbase/pkg/disk"
	"duskbase/pkg/primitives"
	"duskbase/pkg/walstub"
)

// Pool is the sharded, parallel buffer pool front-end: an array of
// instances, selecting the owner of an existing page by
// page_id mod numInstances, and round-robining a cursor across instances
// for new-page allocation. Pool itself performs no locking of its own; it
// relies entirely on each instance's mutex.
type Pool struct {
	instances  []*PoolInstance
	startIndex atomic.Int64
}

// NewPool builds a parallel pool of numInstances shards, each with
// poolSize frames, all backed by the same disk manager.
func NewPool(numInstances, poolSize int, d disk.Manager, log *walstub.Manager) *Pool {
	instances := make([]*PoolInstance, numInstances)
	for i := 0; i < numInstances; i++ {
		instances[i] = NewPoolInstance(poolSize, numInstances, i, d, log)
	}
	return &Pool{instances: instances}
}

func (p *Pool) instanceFor(pageID primitives.PageID) *PoolInstance {
	n := len(p.instances)
	idx := int(uint32(pageID)) % n
	return p.instances[idx]
}

// FetchPage delegates to the instance owning pageID.
func (p *Pool) FetchPage(pageID primitives.PageID) (*Frame, bool) {
	return p.instanceFor(pageID).FetchPage(pageID)
}

// UnpinPage delegates to the instance owning pageID.
func (p *Pool) UnpinPage(pageID primitives.PageID, isDirty bool) bool {
	return p.instanceFor(pageID).UnpinPage(pageID, isDirty)
}

// FlushPage delegates to the instance owning pageID.
func (p *Pool) FlushPage(pageID primitives.PageID) bool {
	return p.instanceFor(pageID).FlushPage(pageID)
}

// DeletePage delegates to the instance owning pageID.
func (p *Pool) DeletePage(pageID primitives.PageID) bool {
	return p.instanceFor(pageID).DeletePage(pageID)
}

// NewPage tries each instance in round-robin order, starting from a
// process-wide cursor that advances once per attempt so successive callers
// start from different instances, and returns the first successful
// allocation. Returns false only if every instance refuses.
func (p *Pool) NewPage() (primitives.PageID, *Frame, bool) {
	n := len(p.instances)
	for i := 0; i < n; i++ {
		idx := int(p.startIndex.Add(1)-1) % n
		if idx < 0 {
			idx += n
		}
		pageID, frame, ok := p.instances[idx].NewPage()
		if ok {
			return pageID, frame, true
		}
	}
	return primitives.InvalidPageID, nil, false
}

// FlushAllPages flushes every instance exactly once.
func (p *Pool) FlushAllPages() {
	for _, inst := range p.instances {
		inst.FlushAllPages()
	}
}

// NumInstances returns the number of shards in the pool.
func (p *Pool) NumInstances() int {
	return len(p.instances)
}
