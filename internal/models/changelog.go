package models

import (
	"time"

	"gorm.io/datatypes"
)

// Change-log action kinds.
const (
	ActionAdd              = "ADD"
	ActionUpdate           = "UPDATE"
	ActionDelete           = "DELETE"
	ActionConflictDetected = "CONFLICT_DETECTED"
	ActionRelocate         = "RELOCATE"
	ActionSendOut          = "SEND_OUT"
)

// FieldChange records one business field moving from Old to New.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// ChangeLogEntry is one immutable audit record of a committed mutation.
// Entries are append-only; nothing updates them after Create.
type ChangeLogEntry struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Timestamp time.Time      `gorm:"not null;index:idx_changelog_ts" json:"timestamp"`
	User      string         `gorm:"type:varchar(255);not null;index" json:"user"`
	Action    string         `gorm:"type:varchar(32);not null" json:"action"`
	RowID     string         `gorm:"type:varchar(64);not null;index" json:"rowId"`
	Changes   datatypes.JSON `json:"changes,omitempty"`  // []FieldChange, only fields that differ
	Metadata  datatypes.JSON `json:"metadata,omitempty"` // free-form (quantity moved, notes, ...)
}

// TableName specifies the table name
func (ChangeLogEntry) TableName() string {
	return "change_log_entries"
}
