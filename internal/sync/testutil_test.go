package sync

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/medhubvn/stocksheet/internal/config"
	"github.com/medhubvn/stocksheet/internal/models"
	"github.com/medhubvn/stocksheet/internal/sheets"
)

// fakeAdapter simulates the remote tabular store in memory. Each source is a
// slice of rows where index 0 is sheet row 1, so out-of-band edits are plain
// slice operations in tests.
type fakeAdapter struct {
	mu           sync.Mutex
	tabs         map[string][][]string
	sheetIDs     map[string]int64
	failing      map[string]bool
	failingWrite map[string]bool // reads still succeed
	ops          []string        // call journal, for ordering assertions

	// onRead, when set, runs at the start of every ReadRange before the
	// adapter lock is taken; tests use it to stall a caller mid-read.
	onRead func(source string)
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		tabs:         make(map[string][][]string),
		sheetIDs:     make(map[string]int64),
		failing:      make(map[string]bool),
		failingWrite: make(map[string]bool),
	}
}

func (f *fakeAdapter) setTab(source string, rows [][]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tabs[source] = rows
	if _, ok := f.sheetIDs[source]; !ok {
		f.sheetIDs[source] = int64(len(f.sheetIDs) + 100)
	}
}

func (f *fakeAdapter) fail(source string, failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[source] = failing
}

func (f *fakeAdapter) failWrites(source string, failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failingWrite[source] = failing
}

func (f *fakeAdapter) journal() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

// rangeRows parses the subset of A1 notation the sync core uses: "A1:K"
// (whole tab) and "A5:N5" (single row).
func rangeRows(rng string) (start, end int) {
	parts := strings.SplitN(rng, ":", 2)
	digits := func(s string) int {
		i := strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
		if i < 0 {
			return 0
		}
		n, _ := strconv.Atoi(s[i:])
		return n
	}
	start = digits(parts[0])
	if start == 0 {
		start = 1
	}
	end = 0
	if len(parts) == 2 {
		end = digits(parts[1])
	}
	return start, end
}

func (f *fakeAdapter) ReadRange(ctx context.Context, source, rng string) ([][]string, error) {
	if f.onRead != nil {
		f.onRead(source)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "read:"+source)
	if f.failing[source] {
		return nil, fmt.Errorf("%w: fake outage", sheets.ErrRemoteUnavailable)
	}
	rows := f.tabs[source]
	start, end := rangeRows(rng)
	if end == 0 || end > len(rows) {
		end = len(rows)
	}
	if start > len(rows) {
		return nil, nil
	}
	out := make([][]string, 0, end-start+1)
	for i := start - 1; i < end; i++ {
		out = append(out, append([]string(nil), rows[i]...))
	}
	return out, nil
}

func (f *fakeAdapter) WriteRange(ctx context.Context, source, rng string, rows [][]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "write:"+source)
	if f.failing[source] || f.failingWrite[source] {
		return fmt.Errorf("%w: fake outage", sheets.ErrRemoteUnavailable)
	}
	start, _ := rangeRows(rng)
	tab := f.tabs[source]
	for i, row := range rows {
		idx := start - 1 + i
		for idx >= len(tab) {
			tab = append(tab, nil)
		}
		merged := append([]string(nil), tab[idx]...)
		for len(merged) < len(row) {
			merged = append(merged, "")
		}
		copy(merged, row)
		tab[idx] = merged
	}
	f.tabs[source] = tab
	return nil
}

func (f *fakeAdapter) AppendRows(ctx context.Context, source string, rows [][]string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "append:"+source)
	if f.failing[source] {
		return 0, fmt.Errorf("%w: fake outage", sheets.ErrRemoteUnavailable)
	}
	first := len(f.tabs[source]) + 1
	for _, row := range rows {
		f.tabs[source] = append(f.tabs[source], append([]string(nil), row...))
	}
	return first, nil
}

func (f *fakeAdapter) DeleteRows(ctx context.Context, source string, sheetID int64, startIndex, endIndex int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "delete:"+source)
	if f.failing[source] || f.failingWrite[source] {
		return fmt.Errorf("%w: fake outage", sheets.ErrRemoteUnavailable)
	}
	rows := f.tabs[source]
	if startIndex < 0 || endIndex > int64(len(rows)) || startIndex >= endIndex {
		return fmt.Errorf("invalid delete range [%d, %d)", startIndex, endIndex)
	}
	f.tabs[source] = append(rows[:startIndex], rows[endIndex:]...)
	return nil
}

func (f *fakeAdapter) GetMetadata(ctx context.Context, source string) (*sheets.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[source] {
		return nil, fmt.Errorf("%w: fake outage", sheets.ErrRemoteUnavailable)
	}
	return &sheets.Metadata{SheetID: f.sheetIDs[source], Title: source}, nil
}

// fakeHub records broadcast events in order.
type fakeHub struct {
	mu     sync.Mutex
	events []interface{}
}

func (h *fakeHub) BroadcastJSON(v interface{}) {
	h.mu.Lock()
	h.events = append(h.events, v)
	h.mu.Unlock()
}

func (h *fakeHub) all() []interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]interface{}(nil), h.events...)
}

func (h *fakeHub) typeSequence() []string {
	types := []string{}
	for _, e := range h.all() {
		switch ev := e.(type) {
		case models.SyncStartEvent:
			types = append(types, ev.Type)
		case models.SyncSuccessEvent:
			types = append(types, ev.Type)
		case models.SyncErrorEvent:
			types = append(types, ev.Type)
		case models.InventoryUpdateEvent:
			types = append(types, ev.Type+":"+ev.Action)
		case models.RecentChangesEvent:
			types = append(types, ev.Type)
		}
	}
	return types
}

func (h *fakeHub) reset() {
	h.mu.Lock()
	h.events = nil
	h.mu.Unlock()
}

// Fixture helpers.

func testHeader() []string {
	return []string{"Brand", "Product Code", "Product Name", "Lot", "Quantity", "Unit", "Expiry", "Import Date", "Location", "Warehouse", "Notes"}
}

func testRow(brand, code, name, qty string) []string {
	return []string{brand, code, name, "L-1", qty, "box", "2027-01-01", "2026-01-01", "A1", "Main", ""}
}

func testSources(names ...string) []models.SourceSchema {
	out := make([]models.SourceSchema, 0, len(names))
	for _, n := range names {
		out = append(out, models.SourceSchema{
			Name:      n,
			SheetName: "Tab-" + n,
			HeaderRow: 1,
			Aliases:   models.DefaultHeaderAliases,
		})
	}
	return out
}

func testConfig() config.SyncConfig {
	return config.SyncConfig{
		PollInterval:   time.Minute,
		DebounceWindow: 0, // most tests want every change broadcast
		RemoteTimeout:  time.Second,
		ChangeLogLimit: 100,
	}
}

func newTestService(adapter *fakeAdapter, hub *fakeHub, sources []models.SourceSchema, cfg config.SyncConfig) *Service {
	mapper := sheets.NewMapper(sources)
	return NewService(adapter, mapper, NewState(), NewChangeLog(cfg.ChangeLogLimit, nil), hub, cfg)
}
