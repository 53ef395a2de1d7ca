// Package hashindex implements an extendible hash table: a directory page
// addressing bucket pages, both managed through the buffer pool, with
// splits and merges driven entirely by comparing local and global depth.
package hashindex

import (
	"sync"

	"duskbase/pkg/buffer"
	"duskbase/pkg/dberrors"
	"duskbase/pkg/primitives"
	"duskbase/pkg/storage"
	"duskbase/pkg/types"
)

// Table is the extendible hash index. A single table-level RWMutex guards
// directory structure changes (grow/shrink/split/merge); a per-bucket-frame
// Latch guards concurrent readers/writers of one bucket's contents.
type Table struct {
	mu        sync.RWMutex
	pool      *buffer.Pool
	dirPageID primitives.PageID
}

// NewTable allocates a fresh directory page (global depth 0) pointing at a
// single empty bucket page.
func NewTable(pool *buffer.Pool) (*Table, error) {
	dirPageID, dirFrame, ok := pool.NewPage()
	if !ok {
		return nil, dberrors.ErrBufferExhausted("hashindex.NewTable")
	}
	dir := storage.NewDirectory(dirFrame.Data[:])
	dir.Init()
	dir.SetPageID(dirPageID)

	bucketPageID, bucketFrame, ok := pool.NewPage()
	if !ok {
		pool.UnpinPage(dirPageID, false)
		pool.DeletePage(dirPageID)
		return nil, dberrors.ErrBufferExhausted("hashindex.NewTable")
	}
	storage.NewBucket(bucketFrame.Data[:]).Reset()
	dir.SetBucketPageID(0, bucketPageID)
	dir.SetLocalDepth(0, 0)

	pool.UnpinPage(bucketPageID, true)
	pool.UnpinPage(dirPageID, true)

	return &Table{pool: pool, dirPageID: dirPageID}, nil
}

func dirIndexFor(dir *storage.Directory, key types.Int64Field) uint32 {
	return storage.DirIndex(key.Hash(), dir.GlobalDepth())
}

// GetValue returns every RID stored under key.
func (t *Table) GetValue(key types.Int64Field) ([]primitives.RID, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	dirFrame, ok := t.pool.FetchPage(t.dirPageID)
	if !ok {
		return nil, dberrors.ErrBufferExhausted("hashindex.GetValue")
	}
	dir := storage.NewDirectory(dirFrame.Data[:])
	idx := dirIndexFor(dir, key)
	bucketPageID := dir.BucketPageID(idx)

	bucketFrame, ok := t.pool.FetchPage(bucketPageID)
	if !ok {
		t.pool.UnpinPage(t.dirPageID, false)
		return nil, dberrors.ErrBufferExhausted("hashindex.GetValue")
	}
	bucketFrame.Latch.RLock()
	values := storage.NewBucket(bucketFrame.Data[:]).GetValue(key)
	bucketFrame.Latch.RUnlock()

	t.pool.UnpinPage(bucketPageID, false)
	t.pool.UnpinPage(t.dirPageID, false)
	return values, nil
}

// Insert adds (key, value), splitting buckets as needed. Returns false if
// the exact pair already exists. Returns false with an
// ErrHashInsertImpossible error if the bucket is full and every live entry
// in it holds key itself (a bucket that cannot be productively split).
func (t *Table) Insert(key types.Int64Field, value primitives.RID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	dirFrame, ok := t.pool.FetchPage(t.dirPageID)
	if !ok {
		return false, dberrors.ErrBufferExhausted("hashindex.Insert")
	}
	dir := storage.NewDirectory(dirFrame.Data[:])
	defer t.pool.UnpinPage(t.dirPageID, true)

	idx := dirIndexFor(dir, key)
	bucketPageID := dir.BucketPageID(idx)
	bucketFrame, ok := t.pool.FetchPage(bucketPageID)
	if !ok {
		return false, dberrors.ErrBufferExhausted("hashindex.Insert")
	}
	bucketFrame.Latch.Lock()
	bucket := storage.NewBucket(bucketFrame.Data[:])

	for bucket.IsFull() {
		if bucket.AllSameKey(key) {
			bucketFrame.Latch.Unlock()
			t.pool.UnpinPage(bucketPageID, false)
			return false, dberrors.ErrHashInsertImpossible("hashindex.Insert")
		}

		localDepth := dir.LocalDepth(idx)
		if uint32(localDepth) == dir.GlobalDepth() {
			dir.Grow()
		}
		splitIdx := dir.SplitImageIndex(idx)

		newBucketPageID, newBucketFrame, ok := t.pool.NewPage()
		if !ok {
			bucketFrame.Latch.Unlock()
			t.pool.UnpinPage(bucketPageID, false)
			return false, dberrors.ErrBufferExhausted("hashindex.Insert")
		}
		newBucketFrame.Latch.Lock()
		newBucket := storage.NewBucket(newBucketFrame.Data[:])
		newBucket.Reset()

		newLocalDepth := localDepth + 1
		dir.SetBucketPageID(splitIdx, newBucketPageID)
		dir.SetLocalDepth(splitIdx, newLocalDepth)
		dir.SetLocalDepth(idx, newLocalDepth)

		entries := bucket.AllEntries()
		bucket.Reset()
		for _, e := range entries {
			d := dirIndexFor(dir, e.Key)
			if d == splitIdx {
				newBucket.Insert(e.Key, e.Value)
			} else {
				bucket.Insert(e.Key, e.Value)
			}
		}

		newIdx := dirIndexFor(dir, key)
		if newIdx == splitIdx {
			bucketFrame.Latch.Unlock()
			t.pool.UnpinPage(bucketPageID, true)
			bucketPageID, bucketFrame, bucket = newBucketPageID, newBucketFrame, newBucket
		} else {
			newBucketFrame.Latch.Unlock()
			t.pool.UnpinPage(newBucketPageID, true)
		}
		idx = newIdx
	}

	inserted := bucket.Insert(key, value)
	bucketFrame.Latch.Unlock()
	t.pool.UnpinPage(bucketPageID, true)
	return inserted, nil
}

// Remove deletes (key, value), then merges the now-empty bucket with its
// split image and repeatedly shrinks the directory while possible. Returns
// false if the pair was not present.
func (t *Table) Remove(key types.Int64Field, value primitives.RID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	dirFrame, ok := t.pool.FetchPage(t.dirPageID)
	if !ok {
		return false, dberrors.ErrBufferExhausted("hashindex.Remove")
	}
	dir := storage.NewDirectory(dirFrame.Data[:])
	dirDirty := false
	defer func() { t.pool.UnpinPage(t.dirPageID, dirDirty) }()

	idx := dirIndexFor(dir, key)
	bucketPageID := dir.BucketPageID(idx)
	bucketFrame, ok := t.pool.FetchPage(bucketPageID)
	if !ok {
		return false, dberrors.ErrBufferExhausted("hashindex.Remove")
	}
	bucketFrame.Latch.Lock()
	bucket := storage.NewBucket(bucketFrame.Data[:])

	removed := bucket.Remove(key, value)
	if !removed {
		bucketFrame.Latch.Unlock()
		t.pool.UnpinPage(bucketPageID, false)
		return false, nil
	}

	for bucket.IsEmpty() && dir.GlobalDepth() > 0 {
		localDepth := dir.LocalDepth(idx)
		if localDepth == 0 {
			break
		}
		splitIdx := dir.SplitImageIndex(idx)
		if dir.LocalDepth(splitIdx) != localDepth {
			break
		}
		splitBucketPageID := dir.BucketPageID(splitIdx)
		if splitBucketPageID == bucketPageID {
			break
		}

		bucketFrame.Latch.Unlock()
		t.pool.UnpinPage(bucketPageID, false)
		t.pool.DeletePage(bucketPageID)

		newLocalDepth := localDepth - 1
		dir.SetBucketPageID(idx, splitBucketPageID)
		dir.SetLocalDepth(idx, newLocalDepth)
		dir.SetLocalDepth(splitIdx, newLocalDepth)
		dirDirty = true

		for dir.CanShrink() {
			dir.Shrink()
			t.compactAfterShrink(dir)
		}

		idx = dirIndexFor(dir, key)
		bucketPageID = dir.BucketPageID(idx)
		bucketFrame, ok = t.pool.FetchPage(bucketPageID)
		if !ok {
			return true, dberrors.ErrBufferExhausted("hashindex.Remove")
		}
		bucketFrame.Latch.Lock()
		bucket = storage.NewBucket(bucketFrame.Data[:])
	}

	bucketFrame.Latch.Unlock()
	t.pool.UnpinPage(bucketPageID, true)
	return true, nil
}

// compactAfterShrink runs a second-order compaction pass after halving the
// directory: sibling pairs that ended up pointing at the same slot range
// are checked for an empty half that can be folded into its non-empty
// twin, so a chain of shrinks doesn't leave stale empty buckets referenced
// twice over.
func (t *Table) compactAfterShrink(dir *storage.Directory) {
	gd := dir.GlobalDepth()
	if gd == 0 {
		return
	}
	n := uint32(1) << gd
	for i := uint32(0); i < n/2; i++ {
		j := i ^ (uint32(1) << (gd - 1))
		if j <= i || j >= n {
			continue
		}
		pidI, pidJ := dir.BucketPageID(i), dir.BucketPageID(j)
		if pidI == pidJ {
			continue
		}
		emptyI, emptyJ := t.bucketIsEmpty(pidI), t.bucketIsEmpty(pidJ)
		switch {
		case emptyI && !emptyJ:
			t.pool.DeletePage(pidI)
			dir.SetBucketPageID(i, pidJ)
			decrementLocalDepth(dir, i)
			decrementLocalDepth(dir, j)
		case emptyJ && !emptyI:
			t.pool.DeletePage(pidJ)
			dir.SetBucketPageID(j, pidI)
			decrementLocalDepth(dir, i)
			decrementLocalDepth(dir, j)
		}
	}
}

// decrementLocalDepth drops slot i's local depth by one. A redirect in
// compactAfterShrink only fires when the two sibling slots' page ids
// differ, which only happens when both local depths already equal the
// global depth, so both must drop by one to keep the invariant "number of
// slots referencing a bucket == 1<<(global depth - local depth)" true.
func decrementLocalDepth(dir *storage.Directory, i uint32) {
	if ld := dir.LocalDepth(i); ld > 0 {
		dir.SetLocalDepth(i, ld-1)
	}
}

func (t *Table) bucketIsEmpty(pageID primitives.PageID) bool {
	frame, ok := t.pool.FetchPage(pageID)
	if !ok {
		return false
	}
	frame.Latch.RLock()
	empty := storage.NewBucket(frame.Data[:]).IsEmpty()
	frame.Latch.RUnlock()
	t.pool.UnpinPage(pageID, false)
	return empty
}

// VerifyIntegrity walks every live directory slot and checks the
// split-image invariants.
func (t *Table) VerifyIntegrity() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	dirFrame, ok := t.pool.FetchPage(t.dirPageID)
	if !ok {
		return dberrors.ErrBufferExhausted("hashindex.VerifyIntegrity")
	}
	defer t.pool.UnpinPage(t.dirPageID, false)
	dir := storage.NewDirectory(dirFrame.Data[:])

	gd := dir.GlobalDepth()
	n := uint32(1) << gd
	for i := uint32(0); i < n; i++ {
		ld := dir.LocalDepth(i)
		if uint32(ld) > gd {
			return dberrors.ErrIntegrityViolation("hashindex.VerifyIntegrity", "local depth exceeds global depth")
		}
		if !dir.BucketPageID(i).IsValid() {
			return dberrors.ErrIntegrityViolation("hashindex.VerifyIntegrity", "directory slot missing a bucket page id")
		}
		if ld == 0 {
			continue
		}
		sibling := i ^ (uint32(1) << (ld - 1))
		if sibling >= n {
			continue
		}
		if dir.BucketPageID(sibling) == dir.BucketPageID(i) && dir.LocalDepth(sibling) != ld {
			return dberrors.ErrIntegrityViolation("hashindex.VerifyIntegrity", "split-image siblings disagree on local depth")
		}
	}
	return nil
}
