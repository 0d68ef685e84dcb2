package sheets

import (
	"context"
	"errors"
)

// ErrRemoteUnavailable wraps any adapter call that failed or timed out.
// Callers degrade (empty data, unchanged state) instead of crashing.
var ErrRemoteUnavailable = errors.New("remote store unavailable")

// Metadata describes the physical sheet behind a source.
type Metadata struct {
	SheetID int64  `json:"sheetId"`
	Title   string `json:"title"`
}

// Adapter is the remote tabular store consumed by the sync core. The only
// production implementation talks to Google Sheets; tests substitute fakes.
// All calls are rate-limited and slow on the remote side, so every method
// takes a context and must be treated as fallible.
type Adapter interface {
	// ReadRange fetches a rectangular cell range from a source tab.
	// Trailing empty cells inside a row may be absent.
	ReadRange(ctx context.Context, source, rng string) ([][]string, error)

	// WriteRange overwrites a rectangular cell range on a source tab.
	WriteRange(ctx context.Context, source, rng string, rows [][]string) error

	// AppendRows appends rows after the last data row of a source tab and
	// returns the 1-based row number of the first appended row.
	AppendRows(ctx context.Context, source string, rows [][]string) (int, error)

	// DeleteRows removes the half-open 0-based row interval [startIndex,
	// endIndex) from the physical sheet identified by sheetID.
	DeleteRows(ctx context.Context, source string, sheetID int64, startIndex, endIndex int64) error

	// GetMetadata resolves the physical sheet identifier of a source.
	GetMetadata(ctx context.Context, source string) (*Metadata, error)
}
