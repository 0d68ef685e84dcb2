package sync

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/medhubvn/stocksheet/internal/models"
	"github.com/medhubvn/stocksheet/internal/sheets"
)

// EditSession is an optimistic lock one user holds on one row. The baseline
// is the row's remote content as read when the session began; commit-time
// conflict detection compares against it.
type EditSession struct {
	User      string            `json:"user"`
	RowID     string            `json:"rowId"`
	Baseline  map[string]string `json:"baseline"`
	Version   int               `json:"version"`
	StartedAt time.Time         `json:"startedAt"`
}

// SessionManager tracks at most one edit session per user and runs the
// begin/commit protocol against the remote store.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*EditSession // keyed by user

	adapter   sheets.Adapter
	mapper    *sheets.Mapper
	changeLog *ChangeLog
	ttl       time.Duration // 0 disables expiry
}

// NewSessionManager creates a session manager. ttl of zero means abandoned
// sessions never expire and are only released explicitly.
func NewSessionManager(adapter sheets.Adapter, mapper *sheets.Mapper, changeLog *ChangeLog, ttl time.Duration) *SessionManager {
	return &SessionManager{
		sessions:  make(map[string]*EditSession),
		adapter:   adapter,
		mapper:    mapper,
		changeLog: changeLog,
		ttl:       ttl,
	}
}

// Begin opens an edit session for user on rowID. The baseline is a fresh
// point read of the remote row, not the cached snapshot: the cache can
// already be stale relative to what the editor is about to look at.
// Returns a LockedError when another user holds the row.
func (sm *SessionManager) Begin(ctx context.Context, user, rowID string) (*EditSession, error) {
	source, row, err := models.ParseRecordID(rowID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, ok := sm.mapper.Schema(source); !ok {
		return nil, fmt.Errorf("%w: unknown source %q", ErrValidation, source)
	}

	sm.mu.Lock()
	sm.reapExpiredLocked()
	for holder, session := range sm.sessions {
		if holder != user && session.RowID == rowID {
			sm.mu.Unlock()
			return nil, &LockedError{RowID: rowID, Holder: holder}
		}
	}
	// Reserve the row before releasing the mutex: the point read below takes
	// a remote round trip, and a concurrent Begin on the same row must see
	// this holder rather than pass the check too. A user's new session
	// replaces their previous one, whatever row it held.
	session := &EditSession{
		User:      user,
		RowID:     rowID,
		StartedAt: time.Now(),
	}
	sm.sessions[user] = session
	sm.mu.Unlock()

	baseline, version, err := sm.readRow(ctx, source, row)
	if err != nil {
		sm.mu.Lock()
		if sm.sessions[user] == session {
			delete(sm.sessions, user)
		}
		sm.mu.Unlock()
		return nil, err
	}

	sm.mu.Lock()
	session.Baseline = baseline
	session.Version = version
	sm.mu.Unlock()

	log.Printf("✏️ Edit session opened: %s on %s (version %d)", user, rowID, version)
	return session, nil
}

// Commit re-reads the row, runs conflict detection against the session
// baseline, writes the new content with bookkeeping columns and releases the
// session. A ConflictError carries one FieldChange per field that moved
// between baseline and the current remote content; force skips the check.
func (sm *SessionManager) Commit(ctx context.Context, user, rowID string, newFields map[string]string, force bool) (models.InventoryRecord, error) {
	var zero models.InventoryRecord

	sm.mu.Lock()
	session := sm.sessions[user]
	sm.mu.Unlock()
	if session == nil || session.RowID != rowID {
		return zero, fmt.Errorf("%w: no edit session for %s on %s", ErrValidation, user, rowID)
	}

	source, row, err := models.ParseRecordID(rowID)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	current, version, err := sm.readRow(ctx, source, row)
	if err != nil {
		return zero, err
	}

	if !force {
		if drift := FieldDiff(session.Baseline, current); len(drift) > 0 {
			sm.changeLog.Append(NewEntry(user, models.ActionConflictDetected, rowID, drift, map[string]interface{}{
				"sessionStartedAt": session.StartedAt,
			}))
			log.Printf("⚠️ Edit conflict: %s on %s, %d field(s) drifted", user, rowID, len(drift))
			return zero, &ConflictError{RowID: rowID, Changes: drift}
		}
	}

	values := sm.mapper.RowValues(source, newFields)
	values = padTo(values, len(models.FieldOrder))
	values = append(values,
		time.Now().Format(time.RFC3339),
		user,
		strconv.Itoa(version+1),
	)
	if err := sm.adapter.WriteRange(ctx, source, sheets.RowRange(row), [][]string{values}); err != nil {
		return zero, err
	}

	// The audit diff is against what the remote actually held just before
	// this write, not against the possibly older session baseline.
	changed := FieldDiff(current, newFields)
	sm.changeLog.Append(NewEntry(user, models.ActionUpdate, rowID, changed, nil))

	sm.mu.Lock()
	delete(sm.sessions, user)
	sm.mu.Unlock()

	record := sm.mapper.MapRow(source, row, padTo(sm.mapper.RowValues(source, newFields), len(models.FieldOrder)))
	log.Printf("✅ Commit applied: %s on %s (%d field(s) changed, version %d)", user, rowID, len(changed), version+1)
	return record, nil
}

// End releases a user's session, whatever row it holds.
func (sm *SessionManager) End(user string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, ok := sm.sessions[user]; !ok {
		return false
	}
	delete(sm.sessions, user)
	return true
}

// Active returns a copy of all live sessions.
func (sm *SessionManager) Active() []EditSession {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.reapExpiredLocked()
	out := make([]EditSession, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, *s)
	}
	return out
}

// reapExpiredLocked drops sessions idle past the TTL. Callers hold sm.mu.
func (sm *SessionManager) reapExpiredLocked() {
	if sm.ttl <= 0 {
		return
	}
	cutoff := time.Now().Add(-sm.ttl)
	for user, session := range sm.sessions {
		if session.StartedAt.Before(cutoff) {
			log.Printf("⏱️ Edit session expired: %s on %s", user, session.RowID)
			delete(sm.sessions, user)
		}
	}
}

// readRow point-reads one row (business plus bookkeeping columns) and
// returns the business fields and the current version counter.
func (sm *SessionManager) readRow(ctx context.Context, source string, row int) (map[string]string, int, error) {
	rows, err := sm.adapter.ReadRange(ctx, source, sheets.RowRange(row))
	if err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 {
		return nil, 0, fmt.Errorf("%w: %s row %d is empty", ErrRowNotFound, source, row)
	}

	raw := rows[0]
	record := sm.mapper.MapRow(source, row, raw)

	version := 0
	if len(raw) >= len(models.FieldOrder)+3 {
		if v, err := strconv.Atoi(raw[len(models.FieldOrder)+2]); err == nil {
			version = v
		}
	}
	return record.Fields, version, nil
}

func padTo(values []string, n int) []string {
	if len(values) >= n {
		return values[:n]
	}
	out := make([]string, n)
	copy(out, values)
	return out
}
