// Package lock implements strict two-phase locking with wound-wait
// deadlock prevention over record ids: one coarse mutex over the whole
// lock table, one condition variable per RID, a FIFO request queue plus a
// pending-transaction set, and lazy release of a wounded victim's held
// locks.
package lock

import (
	"sync"

	"duskbase/pkg/dberrors"
	"duskbase/pkg/logging"
	"duskbase/pkg/primitives"
	"duskbase/pkg/txn"
)

// Mode is the mode a RID is currently held or requested in.
type Mode int

const (
	Shared Mode = iota
	Exclusive
)

type request struct {
	t    *txn.Transaction
	mode Mode
}

// entry is one RID's lock table row: current holders and mode, the FIFO of
// requests waiting to be granted, and the transaction currently mid-upgrade
// (if any). cond shares the Manager's single mutex.
type entry struct {
	cond        *sync.Cond
	mode        Mode
	holders     map[primitives.TxnID]*txn.Transaction
	queue       []*request
	pendingTxns map[primitives.TxnID]struct{}
	upgrading   primitives.TxnID
}

func newEntry(mu *sync.Mutex) *entry {
	return &entry{
		cond:        sync.NewCond(mu),
		holders:     make(map[primitives.TxnID]*txn.Transaction),
		pendingTxns: make(map[primitives.TxnID]struct{}),
		upgrading:   primitives.InvalidTxnID,
	}
}

// Manager is the wound-wait lock manager.
type Manager struct {
	mu    sync.Mutex
	table map[primitives.RID]*entry
}

// NewManager returns an empty lock table.
func NewManager() *Manager {
	return &Manager{table: make(map[primitives.RID]*entry)}
}

func (m *Manager) entryFor(rid primitives.RID) *entry {
	e, ok := m.table[rid]
	if !ok {
		e = newEntry(&m.mu)
		m.table[rid] = e
	}
	return e
}

// checkPreconditions runs the fixed precondition order shared by every lock
// request: already ABORTED is a benign false, SHRINKING wounds the caller
// itself with LOCK_ON_SHRINKING, and a shared request under
// READ_UNCOMMITTED wounds the caller with LOCKSHARED_ON_READ_UNCOMMITTED.
// Only after all three checks pass does the caller's state move to
// GROWING, so a transaction already wounded is never revived into GROWING
// by its own next call.
func checkPreconditions(t *txn.Transaction, mode Mode) (bool, error) {
	if t.State() == txn.StateAborted {
		return false, nil
	}
	if t.State() == txn.StateShrinking {
		t.SetState(txn.StateAborted)
		return false, dberrors.NewTxnAborted(int64(t.ID()), dberrors.AbortLockOnShrinking)
	}
	if mode == Shared && t.IsolationLevel() == txn.ReadUncommitted {
		t.SetState(txn.StateAborted)
		return false, dberrors.NewTxnAborted(int64(t.ID()), dberrors.AbortLockSharedOnReadUncommitted)
	}
	t.SetState(txn.StateGrowing)
	return true, nil
}

// wound sets victim's state to ABORTED and removes it from every queue and
// upgrade slot in the table. It does not touch victim's held locks: those
// stay in the victim's own lock sets until its owning executor calls
// Unlock.
func (m *Manager) wound(victim *txn.Transaction) {
	victim.SetState(txn.StateAborted)
	victimID := victim.ID()
	logging.WithTxn(int64(victimID)).Info("wounding transaction")
	for _, e := range m.table {
		delete(e.pendingTxns, victimID)
		filtered := e.queue[:0]
		for _, req := range e.queue {
			if req.t.ID() != victimID {
				filtered = append(filtered, req)
			}
		}
		e.queue = filtered
		if e.upgrading == victimID {
			e.upgrading = primitives.InvalidTxnID
		}
		e.cond.Broadcast()
	}
}

// LockShared acquires a shared lock on rid for t, blocking while another
// transaction holds it exclusive.
func (m *Manager) LockShared(t *txn.Transaction, rid primitives.RID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ok, err := checkPreconditions(t, Shared)
	if !ok {
		return false, err
	}

	e := m.entryFor(rid)

	if e.mode == Exclusive {
		for id, holder := range e.holders {
			if id > t.ID() {
				m.wound(holder)
			}
		}
	}

	if e.mode == Exclusive && len(e.holders) > 0 {
		e.queue = append(e.queue, &request{t: t, mode: Shared})
		e.pendingTxns[t.ID()] = struct{}{}
		for {
			if _, pending := e.pendingTxns[t.ID()]; !pending {
				break
			}
			if t.State() == txn.StateAborted {
				break
			}
			e.cond.Wait()
		}
		if t.State() == txn.StateAborted {
			return false, dberrors.NewTxnAborted(int64(t.ID()), dberrors.AbortDeadlock)
		}
	}

	e.mode = Shared
	e.holders[t.ID()] = t
	t.AddShared(rid)
	logging.WithRID(int32(rid.PageID), rid.Slot).Debug("granted shared lock", "txn_id", t.ID())
	return true, nil
}

// LockExclusive acquires an exclusive lock on rid for t, wounding any
// current holder with a higher txn id and blocking on the rest.
func (m *Manager) LockExclusive(t *txn.Transaction, rid primitives.RID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ok, err := checkPreconditions(t, Exclusive)
	if !ok {
		return false, err
	}

	e := m.entryFor(rid)

	for id, holder := range e.holders {
		if id > t.ID() {
			m.wound(holder)
		}
	}

	if len(e.holders) > 0 {
		e.queue = append(e.queue, &request{t: t, mode: Exclusive})
		e.pendingTxns[t.ID()] = struct{}{}
		for {
			if _, pending := e.pendingTxns[t.ID()]; !pending {
				break
			}
			if t.State() == txn.StateAborted {
				break
			}
			e.cond.Wait()
		}
		if t.State() == txn.StateAborted {
			return false, dberrors.NewTxnAborted(int64(t.ID()), dberrors.AbortDeadlock)
		}
	}

	e.mode = Exclusive
	e.holders = map[primitives.TxnID]*txn.Transaction{t.ID(): t}
	t.AddExclusive(rid)
	logging.WithRID(int32(rid.PageID), rid.Slot).Debug("granted exclusive lock", "txn_id", t.ID())
	return true, nil
}

// LockUpgrade promotes t's existing shared lock on rid to exclusive.
// Fails with a benign false if t does not hold shared on rid, and with
// UPGRADE_CONFLICT if another transaction is already upgrading this RID.
func (m *Manager) LockUpgrade(t *txn.Transaction, rid primitives.RID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ok, err := checkPreconditions(t, Exclusive)
	if !ok {
		return false, err
	}

	e := m.entryFor(rid)
	if _, holds := e.holders[t.ID()]; !holds || e.mode != Shared {
		return false, nil
	}
	if e.upgrading != primitives.InvalidTxnID {
		t.SetState(txn.StateAborted)
		return false, dberrors.NewTxnAborted(int64(t.ID()), dberrors.AbortUpgradeConflict)
	}
	e.upgrading = t.ID()

	for id, holder := range e.holders {
		if id != t.ID() && id > t.ID() {
			m.wound(holder)
		}
	}

	for len(e.holders) > 1 {
		if t.State() == txn.StateAborted {
			e.upgrading = primitives.InvalidTxnID
			return false, dberrors.NewTxnAborted(int64(t.ID()), dberrors.AbortDeadlock)
		}
		e.cond.Wait()
	}

	e.upgrading = primitives.InvalidTxnID
	e.mode = Exclusive
	t.RemoveShared(rid)
	t.AddExclusive(rid)
	logging.WithRID(int32(rid.PageID), rid.Slot).Debug("upgraded to exclusive lock", "txn_id", t.ID())
	return true, nil
}

// Unlock releases t's lock on rid. Returns false if t did not hold a lock
// on rid.
func (m *Manager) Unlock(t *txn.Transaction, rid primitives.RID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.table[rid]
	if !ok {
		return false
	}
	if _, held := e.holders[t.ID()]; !held {
		return false
	}

	releasedShared := e.mode == Shared
	sharedUnderReadCommitted := releasedShared && t.IsolationLevel() == txn.ReadCommitted

	if t.State() == txn.StateGrowing && !sharedUnderReadCommitted {
		t.SetState(txn.StateShrinking)
	}

	delete(e.holders, t.ID())
	t.RemoveShared(rid)
	t.RemoveExclusive(rid)

	if releasedShared && len(e.holders) == 1 && e.upgrading != primitives.InvalidTxnID {
		e.mode = Exclusive
		e.cond.Broadcast()
		return true
	}

	if len(e.holders) > 0 {
		e.cond.Broadcast()
		return true
	}

	if len(e.queue) > 0 {
		head := e.queue[0]
		if head.mode == Exclusive {
			e.queue = e.queue[1:]
			delete(e.pendingTxns, head.t.ID())
		} else {
			i := 0
			for i < len(e.queue) && e.queue[i].mode == Shared {
				delete(e.pendingTxns, e.queue[i].t.ID())
				i++
			}
			e.queue = e.queue[i:]
		}
	}
	e.cond.Broadcast()
	return true
}
