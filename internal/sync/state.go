package sync

import (
	"sync"
	"time"

	"github.com/medhubvn/stocksheet/internal/models"
)

// State is the single process-wide synchronization state: the last known
// snapshot, its serialized baseline, the sync timestamps and the coarse
// manual-mutation-in-progress flag that serializes direct writes against
// the reconciliation loop. One instance is created in main and passed to
// the service and handlers explicitly.
type State struct {
	mu sync.Mutex

	records  map[string]models.InventoryRecord
	baseline []byte // serialized snapshot of the last broadcast/stored state

	lastSyncAt      time.Time
	lastBroadcastAt time.Time

	mutationInFlight bool
}

// NewState creates an empty sync state.
func NewState() *State {
	return &State{records: make(map[string]models.InventoryRecord)}
}

// TryBeginMutation sets the manual-mutation flag. It fails when another
// manual mutation is already running; the reconciliation loop also checks
// the flag before touching the remote store.
func (s *State) TryBeginMutation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mutationInFlight {
		return false
	}
	s.mutationInFlight = true
	return true
}

// EndMutation clears the manual-mutation flag.
func (s *State) EndMutation() {
	s.mu.Lock()
	s.mutationInFlight = false
	s.mu.Unlock()
}

// MutationInFlight reports whether a direct write is currently running.
func (s *State) MutationInFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutationInFlight
}

// Snapshot returns a copy of the current record map.
func (s *State) Snapshot() map[string]models.InventoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.InventoryRecord, len(s.records))
	for id, r := range s.records {
		out[id] = r
	}
	return out
}

// Record looks up one record by id.
func (s *State) Record(id string) (models.InventoryRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	return r, ok
}

// Count returns the number of records in the snapshot.
func (s *State) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// ReplaceSnapshot installs a new snapshot and its serialized baseline.
func (s *State) ReplaceSnapshot(records map[string]models.InventoryRecord, baseline []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	s.baseline = baseline
}

// Baseline returns the serialized form of the stored snapshot, nil before
// the first successful reconciliation.
func (s *State) Baseline() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseline
}

// MarkSynced stamps the last successful reconciliation time.
func (s *State) MarkSynced(t time.Time) {
	s.mu.Lock()
	s.lastSyncAt = t
	s.mu.Unlock()
}

// LastSyncAt returns the time of the last successful reconciliation.
func (s *State) LastSyncAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSyncAt
}

// MarkBroadcast stamps the last record-level broadcast time, the anchor of
// the debounce window.
func (s *State) MarkBroadcast(t time.Time) {
	s.mu.Lock()
	s.lastBroadcastAt = t
	s.mu.Unlock()
}

// LastBroadcastAt returns the time of the last record-level broadcast.
func (s *State) LastBroadcastAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBroadcastAt
}
