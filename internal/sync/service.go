package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/medhubvn/stocksheet/internal/config"
	"github.com/medhubvn/stocksheet/internal/models"
	"github.com/medhubvn/stocksheet/internal/sheets"
)

// ErrBusy means another manual mutation currently holds the coarse
// mutual-exclusion flag; the caller should retry shortly.
var ErrBusy = errors.New("another mutation is in progress")

// Broadcaster fans events out to all connected observers. The websocket hub
// implements it; tests substitute a recorder.
type Broadcaster interface {
	BroadcastJSON(v interface{})
}

// Service runs the periodic reconciliation loop and serializes manual
// mutations against it. All remote writes funnel through here so the
// snapshot, the change log and the broadcast feed stay consistent.
type Service struct {
	adapter   sheets.Adapter
	mapper    *sheets.Mapper
	state     *State
	changeLog *ChangeLog
	hub       Broadcaster
	resolver  *Resolver
	sessions  *SessionManager
	cfg       config.SyncConfig

	stopChan    chan struct{}
	triggerChan chan struct{}
}

// NewService wires the sync core together.
func NewService(adapter sheets.Adapter, mapper *sheets.Mapper, state *State, changeLog *ChangeLog, hub Broadcaster, cfg config.SyncConfig) *Service {
	return &Service{
		adapter:     adapter,
		mapper:      mapper,
		state:       state,
		changeLog:   changeLog,
		hub:         hub,
		resolver:    NewResolver(adapter, mapper),
		sessions:    NewSessionManager(adapter, mapper, changeLog, cfg.SessionTTL),
		cfg:         cfg,
		stopChan:    make(chan struct{}),
		triggerChan: make(chan struct{}, 1),
	}
}

// Sessions exposes the edit-session manager.
func (s *Service) Sessions() *SessionManager { return s.sessions }

// ChangeLog exposes the change log for queries.
func (s *Service) ChangeLog() *ChangeLog { return s.changeLog }

// State exposes the sync state for status reporting.
func (s *Service) State() *State { return s.state }

// Start launches the reconciliation loop.
func (s *Service) Start() {
	go func() {
		log.Printf("🔄 Sync service started (poll %v, debounce %v)", s.cfg.PollInterval, s.cfg.DebounceWindow)

		// Prime the baseline before the first tick.
		s.RunCycle(context.Background())

		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.RunCycle(context.Background())
			case <-s.triggerChan:
				s.RunCycle(context.Background())
			case <-s.stopChan:
				log.Println("🛑 Sync service stopped")
				return
			}
		}
	}()
}

// Stop halts the loop.
func (s *Service) Stop() {
	close(s.stopChan)
}

// TriggerSync requests an immediate reconciliation cycle. Coalesces when one
// is already pending.
func (s *Service) TriggerSync() {
	select {
	case s.triggerChan <- struct{}{}:
	default:
	}
}

// RunCycle executes one reconciliation pass: fetch all sources, diff against
// the stored baseline and broadcast. Errors and panics are contained here;
// they end the cycle with a sync_error broadcast, never the schedule.
func (s *Service) RunCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Sync cycle panic: %v", r)
			s.hub.BroadcastJSON(models.NewSyncError(fmt.Errorf("sync cycle panic: %v", r)))
		}
	}()

	// Mutual exclusion with direct writes: reading mid-mutation would
	// capture a half-applied remote state.
	if s.state.MutationInFlight() {
		log.Println("⏳ Sync cycle skipped: manual mutation in flight")
		return
	}

	s.hub.BroadcastJSON(models.NewSyncStart())

	records := s.fetchAll(ctx)
	serialized := SerializeSnapshot(records)
	now := time.Now()

	// First run establishes the baseline without record-level events.
	if s.state.Baseline() == nil {
		s.state.ReplaceSnapshot(records, serialized)
		s.state.MarkSynced(now)
		log.Printf("📥 Baseline stored: %d records", len(records))
		s.hub.BroadcastJSON(models.NewSyncSuccess(0))
		return
	}

	if bytes.Equal(serialized, s.state.Baseline()) {
		s.state.MarkSynced(now)
		s.hub.BroadcastJSON(models.NewSyncSuccess(0))
		return
	}

	// Coalesce rapid remote bursts: changed, but a broadcast went out too
	// recently. The next cycle picks the change up.
	if since := now.Sub(s.state.LastBroadcastAt()); since < s.cfg.DebounceWindow {
		log.Printf("⏸️ Sync cycle debounced (%v since last broadcast)", since.Round(time.Millisecond))
		s.hub.BroadcastJSON(models.NewSyncSuccess(0))
		return
	}

	old := s.state.Snapshot()
	deltas := DiffSnapshots(old, records)
	s.state.ReplaceSnapshot(records, serialized)
	s.state.MarkSynced(now)
	s.state.MarkBroadcast(now)

	log.Printf("🔄 Snapshot changed: %d delta(s) across %d records", len(deltas), len(records))
	s.hub.BroadcastJSON(models.NewInventoryUpdate(models.UpdateActionRefresh, models.RefreshPayload{
		Records: sortedRecords(records),
		Deltas:  deltas,
	}))
	s.hub.BroadcastJSON(models.NewRecentChanges(s.changeLog.Recent(50)))
	s.hub.BroadcastJSON(models.NewSyncSuccess(len(deltas)))
}

// fetchAll reads every configured source and merges the mapped records into
// one id-keyed collection. A failing source degrades to empty for this
// cycle; the others still land.
func (s *Service) fetchAll(ctx context.Context) map[string]models.InventoryRecord {
	merged := make(map[string]models.InventoryRecord)

	for _, source := range s.mapper.Sources() {
		rows, err := s.adapter.ReadRange(ctx, source, sheets.DataRange)
		if err != nil {
			log.Printf("⚠️ Fetch failed for source %s, treating as empty this cycle: %v", source, err)
			continue
		}
		records, err := s.mapper.MapRows(source, rows)
		if err != nil {
			log.Printf("⚠️ Mapping failed for source %s: %v", source, err)
			continue
		}
		for _, rec := range records {
			merged[rec.ID] = rec
		}
	}
	return merged
}

// BeginEdit opens an optimistic edit session on a row.
func (s *Service) BeginEdit(ctx context.Context, user, rowID string) (*EditSession, error) {
	return s.sessions.Begin(ctx, user, rowID)
}

// EndEdit releases a user's session without committing.
func (s *Service) EndEdit(user string) bool {
	return s.sessions.End(user)
}

// CommitEdit runs the commit protocol under the mutation flag, then folds
// the applied row into the snapshot and broadcasts it.
func (s *Service) CommitEdit(ctx context.Context, user, rowID string, fields map[string]string, force bool) (models.InventoryRecord, error) {
	var zero models.InventoryRecord
	if !s.state.TryBeginMutation() {
		return zero, ErrBusy
	}
	defer s.state.EndMutation()

	record, err := s.sessions.Commit(ctx, user, rowID, fields, force)
	if err != nil {
		return zero, err
	}

	s.applyLocal(func(snapshot map[string]models.InventoryRecord) {
		snapshot[record.ID] = record
	})
	s.hub.BroadcastJSON(models.NewInventoryUpdate(models.UpdateActionUpdate, record))
	return record, nil
}

// AddRecord appends a new row to a source and broadcasts it.
func (s *Service) AddRecord(ctx context.Context, user, source string, fields map[string]string) (models.InventoryRecord, error) {
	var zero models.InventoryRecord
	if _, ok := s.mapper.Schema(source); !ok {
		return zero, fmt.Errorf("%w: unknown source %q", ErrValidation, source)
	}
	if fields[models.FieldProductName] == "" && fields[models.FieldProductCode] == "" {
		return zero, fmt.Errorf("%w: product name or product code is required", ErrValidation)
	}

	if !s.state.TryBeginMutation() {
		return zero, ErrBusy
	}
	defer s.state.EndMutation()

	values := padTo(s.mapper.RowValues(source, fields), len(models.FieldOrder))
	values = append(values, time.Now().Format(time.RFC3339), user, "1")

	row, err := s.adapter.AppendRows(ctx, source, [][]string{values})
	if err != nil {
		return zero, err
	}

	record := s.mapper.MapRow(source, row, padTo(s.mapper.RowValues(source, fields), len(models.FieldOrder)))
	s.changeLog.Append(NewEntry(user, models.ActionAdd, record.ID, FieldDiff(nil, record.Fields), nil))

	s.applyLocal(func(snapshot map[string]models.InventoryRecord) {
		snapshot[record.ID] = record
	})
	s.hub.BroadcastJSON(models.NewInventoryUpdate(models.UpdateActionAdd, record))
	return record, nil
}

// DeleteRecord removes a row, recovering its current position through the
// drift resolver when the recorded index went stale.
func (s *Service) DeleteRecord(ctx context.Context, user, rowID string, keys map[string]string) error {
	source, recordedRow, err := models.ParseRecordID(rowID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if !s.state.TryBeginMutation() {
		return ErrBusy
	}
	resync := false
	// The trigger must wait until the flag drops, or the loop goroutine can
	// consume it early, see the mutation in flight and skip the cycle.
	defer func() {
		s.state.EndMutation()
		if resync {
			s.TriggerSync()
		}
	}()

	row, fields, err := s.resolver.Locate(ctx, source, recordedRow, keys)
	if err != nil {
		if errors.Is(err, ErrRowNotFound) {
			// Contention is audit-worthy even when nothing mutated.
			s.changeLog.Append(NewEntry(user, models.ActionDelete, rowID, nil, map[string]interface{}{
				"error": "row not found after drift fallback",
			}))
		}
		return err
	}

	meta, err := s.adapter.GetMetadata(ctx, source)
	if err != nil {
		return err
	}
	// DeleteRows takes 0-based half-open indexes.
	if err := s.adapter.DeleteRows(ctx, source, meta.SheetID, int64(row-1), int64(row)); err != nil {
		return err
	}

	s.changeLog.Append(NewEntry(user, models.ActionDelete, rowID, FieldDiff(fields, nil), nil))

	s.applyLocal(func(snapshot map[string]models.InventoryRecord) {
		delete(snapshot, rowID)
	})
	s.hub.BroadcastJSON(models.NewInventoryUpdate(models.UpdateActionDelete, map[string]string{"id": rowID}))

	// Row numbers below the deleted row all shifted; rebuild ids promptly.
	resync = true
	return nil
}

// applyLocal mutates the snapshot in place after a successful manual write
// and refreshes the serialized baseline, so the next reconciliation pass
// does not re-broadcast a change clients already saw.
func (s *Service) applyLocal(mutate func(map[string]models.InventoryRecord)) {
	snapshot := s.state.Snapshot()
	mutate(snapshot)
	s.state.ReplaceSnapshot(snapshot, SerializeSnapshot(snapshot))
}

func sortedRecords(records map[string]models.InventoryRecord) []models.InventoryRecord {
	out := make([]models.InventoryRecord, 0, len(records))
	for _, r := range records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
