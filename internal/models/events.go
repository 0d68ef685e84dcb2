package models

import "time"

// Websocket event types.
const (
	EventInventoryUpdate = "inventory_update"
	EventRecentChanges   = "recent_changes"
	EventSyncStart       = "sync_start"
	EventSyncSuccess     = "sync_success"
	EventSyncError       = "sync_error"
)

// Inventory update actions carried by EventInventoryUpdate.
const (
	UpdateActionAdd         = "ADD"
	UpdateActionUpdate      = "UPDATE"
	UpdateActionDelete      = "DELETE"
	UpdateActionRefresh     = "REFRESH"
	UpdateActionRelocate    = "RELOCATE"
	UpdateActionBulkSendOut = "BULK_SEND_OUT"
)

// Delta classifies one record that moved between two reconciliation passes.
type Delta struct {
	Action string          `json:"action"` // ADD, UPDATE or DELETE
	Record InventoryRecord `json:"record"`
}

// InventoryUpdateEvent announces a mutation or a full refresh to clients.
type InventoryUpdateEvent struct {
	Type      string      `json:"type"`
	Action    string      `json:"action"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// RefreshPayload is the Data of a REFRESH inventory_update: the full new
// snapshot plus the classified deltas of this cycle.
type RefreshPayload struct {
	Records []InventoryRecord `json:"records"`
	Deltas  []Delta           `json:"deltas"`
}

// RecentChangesEvent replays the newest change-log tail after a refresh.
type RecentChangesEvent struct {
	Type      string           `json:"type"`
	Changes   []ChangeLogEntry `json:"changes"`
	Timestamp time.Time        `json:"timestamp"`
}

// SyncStartEvent marks the beginning of a reconciliation cycle.
type SyncStartEvent struct {
	Type string `json:"type"`
}

// SyncSuccessEvent closes a cycle that completed, with the delta count.
type SyncSuccessEvent struct {
	Type         string    `json:"type"`
	ChangesCount int       `json:"changesCount"`
	Timestamp    time.Time `json:"timestamp"`
}

// SyncErrorEvent closes a cycle that failed. The periodic schedule survives.
type SyncErrorEvent struct {
	Type      string    `json:"type"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

func NewInventoryUpdate(action string, data interface{}) InventoryUpdateEvent {
	return InventoryUpdateEvent{Type: EventInventoryUpdate, Action: action, Data: data, Timestamp: time.Now()}
}

func NewRecentChanges(changes []ChangeLogEntry) RecentChangesEvent {
	return RecentChangesEvent{Type: EventRecentChanges, Changes: changes, Timestamp: time.Now()}
}

func NewSyncStart() SyncStartEvent {
	return SyncStartEvent{Type: EventSyncStart}
}

func NewSyncSuccess(count int) SyncSuccessEvent {
	return SyncSuccessEvent{Type: EventSyncSuccess, ChangesCount: count, Timestamp: time.Now()}
}

func NewSyncError(err error) SyncErrorEvent {
	return SyncErrorEvent{Type: EventSyncError, Error: err.Error(), Timestamp: time.Now()}
}
