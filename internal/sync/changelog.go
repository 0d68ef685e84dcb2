package sync

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/medhubvn/stocksheet/internal/database"
	"github.com/medhubvn/stocksheet/internal/models"
)

// dedupWindow is the interval within which a repeated (user, row, action)
// submission counts as a double-submit and is dropped.
const dedupWindow = time.Second

// ChangeLog is the append-only audit record of committed mutations. It keeps
// a size-bounded in-memory tail for dedup checks and fast queries, and
// persists every accepted entry to the database when one is attached.
type ChangeLog struct {
	mu      sync.Mutex
	entries []models.ChangeLogEntry // oldest first
	limit   int
	db      *database.DB
}

// NewChangeLog creates a change log retaining up to limit entries in memory.
// db may be nil, which keeps the log memory-only (tests).
func NewChangeLog(limit int, db *database.DB) *ChangeLog {
	if limit <= 0 {
		limit = 1000
	}
	return &ChangeLog{
		entries: make([]models.ChangeLogEntry, 0, 64),
		limit:   limit,
		db:      db,
	}
}

// Append records an entry unless an identical (user, row, action) entry was
// appended within the last second. Returns false when the entry was dropped
// as a duplicate. Entries are never mutated after this point.
func (l *ChangeLog) Append(entry models.ChangeLogEntry) bool {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.mu.Lock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		prev := l.entries[i]
		if entry.Timestamp.Sub(prev.Timestamp) > dedupWindow {
			break
		}
		if prev.User == entry.User && prev.RowID == entry.RowID && prev.Action == entry.Action {
			l.mu.Unlock()
			return false
		}
	}

	l.entries = append(l.entries, entry)
	if len(l.entries) > l.limit {
		l.entries = l.entries[len(l.entries)-l.limit:]
	}
	l.mu.Unlock()

	if l.db != nil {
		if err := l.db.Create(&entry).Error; err != nil {
			log.Printf("⚠️ ChangeLog: failed to persist entry (%s %s %s): %v",
				entry.User, entry.Action, entry.RowID, err)
		}
	}
	return true
}

// Query returns entries newest-first, optionally only those after since,
// capped at limit.
func (l *ChangeLog) Query(since *time.Time, limit int) []models.ChangeLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}

	out := make([]models.ChangeLogEntry, 0, limit)
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := l.entries[i]
		if since != nil && !e.Timestamp.After(*since) {
			break
		}
		out = append(out, e)
	}
	return out
}

// Recent returns the newest limit entries.
func (l *ChangeLog) Recent(limit int) []models.ChangeLogEntry {
	return l.Query(nil, limit)
}

// Len returns the number of retained entries.
func (l *ChangeLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// NewEntry builds a change-log entry, marshaling the field diff and the
// free-form metadata into JSON columns.
func NewEntry(user, action, rowID string, changes []models.FieldChange, metadata map[string]interface{}) models.ChangeLogEntry {
	entry := models.ChangeLogEntry{
		Timestamp: time.Now(),
		User:      user,
		Action:    action,
		RowID:     rowID,
	}
	if len(changes) > 0 {
		if data, err := json.Marshal(changes); err == nil {
			entry.Changes = data
		}
	}
	if len(metadata) > 0 {
		if data, err := json.Marshal(metadata); err == nil {
			entry.Metadata = data
		}
	}
	return entry
}
