package storage

import (
	"testing"

	"duskbase/pkg/primitives"
	"duskbase/pkg/types"
)

func newBucketBuf() []byte {
	return make([]byte, primitives.PageSize)
}

func TestBucketInsertAndGetValue(t *testing.T) {
	b := NewBucket(newBucketBuf())
	key := types.Int64Field(42)
	rid := primitives.RID{PageID: 3, Slot: 1}

	if !b.Insert(key, rid) {
		t.Fatalf("Insert() = false, want true")
	}
	got := b.GetValue(key)
	if len(got) != 1 || got[0] != rid {
		t.Fatalf("GetValue() = %v, want [%v]", got, rid)
	}
}

func TestBucketInsertRejectsExactDuplicate(t *testing.T) {
	b := NewBucket(newBucketBuf())
	key := types.Int64Field(1)
	rid := primitives.RID{PageID: 1, Slot: 0}

	if !b.Insert(key, rid) {
		t.Fatalf("first Insert() = false, want true")
	}
	if b.Insert(key, rid) {
		t.Fatalf("duplicate Insert() = true, want false")
	}
}

func TestBucketAllowsSameKeyDifferentValue(t *testing.T) {
	b := NewBucket(newBucketBuf())
	key := types.Int64Field(1)
	if !b.Insert(key, primitives.RID{PageID: 1, Slot: 0}) {
		t.Fatalf("Insert #1 failed")
	}
	if !b.Insert(key, primitives.RID{PageID: 1, Slot: 1}) {
		t.Fatalf("Insert #2 failed")
	}
	if got := b.GetValue(key); len(got) != 2 {
		t.Fatalf("GetValue() len = %d, want 2", len(got))
	}
}

func TestBucketRemoveTombstonesSlot(t *testing.T) {
	b := NewBucket(newBucketBuf())
	key := types.Int64Field(9)
	rid := primitives.RID{PageID: 2, Slot: 0}
	b.Insert(key, rid)

	if !b.Remove(key, rid) {
		t.Fatalf("Remove() = false, want true")
	}
	if got := b.GetValue(key); len(got) != 0 {
		t.Fatalf("GetValue() after remove = %v, want empty", got)
	}
	if !b.IsOccupied(0) {
		t.Fatalf("expected slot 0 to remain occupied after tombstoning")
	}
	if b.IsReadable(0) {
		t.Fatalf("expected slot 0 to no longer be readable after tombstoning")
	}
}

func TestBucketIsFullAndIsEmpty(t *testing.T) {
	b := NewBucket(newBucketBuf())
	if !b.IsEmpty() {
		t.Fatalf("expected fresh bucket to be empty")
	}
	for i := 0; i < BucketArraySize; i++ {
		if !b.Insert(types.Int64Field(i), primitives.RID{PageID: primitives.PageID(i), Slot: 0}) {
			t.Fatalf("Insert #%d failed before bucket should be full", i)
		}
	}
	if !b.IsFull() {
		t.Fatalf("expected bucket to be full after inserting BucketArraySize entries")
	}
	if b.Insert(types.Int64Field(-1), primitives.RID{}) {
		t.Fatalf("expected Insert into full bucket to fail")
	}
}

func TestBucketAllSameKey(t *testing.T) {
	b := NewBucket(newBucketBuf())
	key := types.Int64Field(5)
	b.Insert(key, primitives.RID{PageID: 1, Slot: 0})
	b.Insert(key, primitives.RID{PageID: 1, Slot: 1})
	if !b.AllSameKey(key) {
		t.Fatalf("expected AllSameKey true when every live entry shares key")
	}
	b.Insert(types.Int64Field(6), primitives.RID{PageID: 1, Slot: 2})
	if b.AllSameKey(key) {
		t.Fatalf("expected AllSameKey false once a different key is present")
	}
}

func TestBucketAllEntriesReflectsLiveOnly(t *testing.T) {
	b := NewBucket(newBucketBuf())
	rid1 := primitives.RID{PageID: 1, Slot: 0}
	rid2 := primitives.RID{PageID: 1, Slot: 1}
	b.Insert(types.Int64Field(1), rid1)
	b.Insert(types.Int64Field(2), rid2)
	b.Remove(types.Int64Field(1), rid1)

	entries := b.AllEntries()
	if len(entries) != 1 || entries[0].Key != types.Int64Field(2) {
		t.Fatalf("AllEntries() = %v, want single entry for key 2", entries)
	}
}

func TestBucketStats(t *testing.T) {
	b := NewBucket(newBucketBuf())
	b.Insert(types.Int64Field(1), primitives.RID{PageID: 1, Slot: 0})
	b.Insert(types.Int64Field(2), primitives.RID{PageID: 1, Slot: 1})
	b.Remove(types.Int64Field(1), primitives.RID{PageID: 1, Slot: 0})

	stats := b.Stats()
	if stats.Size != 2 || stats.Taken != 1 || stats.Free != 1 {
		t.Fatalf("Stats() = %+v, want {Size:2 Taken:1 Free:1}", stats)
	}
}

func TestBucketResetClearsEverything(t *testing.T) {
	b := NewBucket(newBucketBuf())
	b.Insert(types.Int64Field(1), primitives.RID{PageID: 1, Slot: 0})
	b.Reset()
	if !b.IsEmpty() {
		t.Fatalf("expected bucket to be empty after Reset")
	}
	if b.IsOccupied(0) {
		t.Fatalf("expected slot 0 not occupied after Reset")
	}
}

func TestBucketArraySizeFitsPage(t *testing.T) {
	if BucketArraySize <= 0 {
		t.Fatalf("BucketArraySize = %d, want positive", BucketArraySize)
	}
	if bucketTotalSize > primitives.PageSize {
		t.Fatalf("bucketTotalSize = %d exceeds PageSize = %d", bucketTotalSize, primitives.PageSize)
	}
}
