package sync

import (
	"testing"
	"time"

	"github.com/medhubvn/stocksheet/internal/models"
)

func TestChangeLog_AppendAndQuery(t *testing.T) {
	cl := NewChangeLog(100, nil)

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		entry := NewEntry("alice", models.ActionUpdate, "a_2", nil, nil)
		entry.Timestamp = base.Add(time.Duration(i) * 10 * time.Second)
		if !cl.Append(entry) {
			t.Fatalf("Entry %d unexpectedly deduplicated", i)
		}
	}

	all := cl.Query(nil, 0)
	if len(all) != 5 {
		t.Fatalf("Expected 5 entries, got %d", len(all))
	}
	// Newest first.
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.After(all[i-1].Timestamp) {
			t.Fatal("Query results must be sorted newest-first")
		}
	}

	limited := cl.Query(nil, 2)
	if len(limited) != 2 {
		t.Fatalf("Expected 2 entries with limit, got %d", len(limited))
	}
	if !limited[0].Timestamp.Equal(all[0].Timestamp) {
		t.Error("Limit should keep the newest entries")
	}

	since := base.Add(25 * time.Second)
	recent := cl.Query(&since, 0)
	if len(recent) != 2 {
		t.Fatalf("Expected 2 entries after since, got %d", len(recent))
	}
}

func TestChangeLog_DeduplicatesWithinWindow(t *testing.T) {
	cl := NewChangeLog(100, nil)

	now := time.Now()
	first := NewEntry("alice", models.ActionUpdate, "a_2", nil, nil)
	first.Timestamp = now
	if !cl.Append(first) {
		t.Fatal("First entry should be accepted")
	}

	// Identical (user, row, action) resubmitted within one second collapses.
	dup := NewEntry("alice", models.ActionUpdate, "a_2", nil, nil)
	dup.Timestamp = now.Add(500 * time.Millisecond)
	if cl.Append(dup) {
		t.Error("Duplicate within the window should be dropped")
	}
	if cl.Len() != 1 {
		t.Errorf("Expected 1 retained entry, got %d", cl.Len())
	}

	// A different user, row or action is not a duplicate.
	otherUser := NewEntry("bob", models.ActionUpdate, "a_2", nil, nil)
	otherUser.Timestamp = now.Add(600 * time.Millisecond)
	if !cl.Append(otherUser) {
		t.Error("Different user should not be deduplicated")
	}
	otherAction := NewEntry("alice", models.ActionDelete, "a_2", nil, nil)
	otherAction.Timestamp = now.Add(700 * time.Millisecond)
	if !cl.Append(otherAction) {
		t.Error("Different action should not be deduplicated")
	}

	// Past the window the same submission is legitimate again.
	late := NewEntry("alice", models.ActionUpdate, "a_2", nil, nil)
	late.Timestamp = now.Add(1500 * time.Millisecond)
	if !cl.Append(late) {
		t.Error("Entry past the dedup window should be accepted")
	}
}

func TestChangeLog_BoundedRetention(t *testing.T) {
	cl := NewChangeLog(3, nil)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		entry := NewEntry("alice", models.ActionAdd, models.RecordID("a", i+2), nil, nil)
		entry.Timestamp = base.Add(time.Duration(i) * time.Minute)
		cl.Append(entry)
	}

	if cl.Len() != 3 {
		t.Fatalf("Expected retention cap of 3, got %d", cl.Len())
	}
	newest := cl.Recent(1)
	if newest[0].RowID != "a_11" {
		t.Errorf("Retention should drop oldest entries, newest is %s", newest[0].RowID)
	}
}
