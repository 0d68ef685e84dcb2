package sync

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/medhubvn/stocksheet/internal/sheets"
)

// Resolver recovers the current position of a row whose recorded index has
// drifted: an out-of-band deletion above it shifts every later row up by
// one, so index-based addressing silently points at the wrong line.
type Resolver struct {
	adapter sheets.Adapter
	mapper  *sheets.Mapper
}

// NewResolver creates a drift resolver.
func NewResolver(adapter sheets.Adapter, mapper *sheets.Mapper) *Resolver {
	return &Resolver{adapter: adapter, mapper: mapper}
}

// Locate returns the current row number and fields of the record that was
// last seen at recordedRow. The recorded position is trusted only when it is
// still inside the sheet and, if business keys were supplied, its content
// still matches one of them. Otherwise every current row is scanned for a
// trimmed exact match on any one key field; first match wins. A false match
// is possible when business keys are not unique, so callers wanting
// precision should supply as many keys as they have.
func (r *Resolver) Locate(ctx context.Context, source string, recordedRow int, keys map[string]string) (int, map[string]string, error) {
	schema, ok := r.mapper.Schema(source)
	if !ok {
		return 0, nil, fmt.Errorf("%w: unknown source %q", ErrValidation, source)
	}

	rows, err := r.adapter.ReadRange(ctx, source, sheets.DataRange)
	if err != nil {
		return 0, nil, err
	}

	records, err := r.mapper.MapRows(source, rows)
	if err != nil {
		return 0, nil, err
	}

	if recordedRow > schema.HeaderRow && recordedRow <= len(rows) {
		for _, rec := range records {
			if rec.Row != recordedRow {
				continue
			}
			if len(keys) == 0 || matchesAnyKey(rec.Fields, keys) {
				return rec.Row, rec.Fields, nil
			}
			break
		}
	}

	if len(keys) == 0 {
		return 0, nil, fmt.Errorf("%w: %s row %d no longer exists and no business keys were supplied", ErrRowNotFound, source, recordedRow)
	}

	for _, rec := range records {
		if matchesAnyKey(rec.Fields, keys) {
			log.Printf("🔎 Drift resolved: %s row %d relocated to row %d by content match", source, recordedRow, rec.Row)
			return rec.Row, rec.Fields, nil
		}
	}

	return 0, nil, fmt.Errorf("%w: %s row %d and no current row matches the supplied keys", ErrRowNotFound, source, recordedRow)
}

// matchesAnyKey reports whether any supplied non-empty key field equals the
// row's value for that field after trimming.
func matchesAnyKey(fields map[string]string, keys map[string]string) bool {
	for field, want := range keys {
		want = strings.TrimSpace(want)
		if want == "" {
			continue
		}
		if strings.TrimSpace(fields[field]) == want {
			return true
		}
	}
	return false
}
