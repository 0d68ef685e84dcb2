package sheets

import (
	"fmt"
	"strings"
	"sync"

	"github.com/medhubvn/stocksheet/internal/models"
)

// Mapper converts raw rectangular cell data into typed inventory records and
// back. The header row of each source is resolved against the schema's
// aliases on every fetch, so a source keeps working when someone reorders
// columns on the remote sheet; the resolved layout is cached for writes.
type Mapper struct {
	mu      sync.RWMutex
	schemas map[string]models.SourceSchema
	layouts map[string][]string // source -> field key per column, from last header resolve
}

// NewMapper builds a mapper for the configured sources.
func NewMapper(sources []models.SourceSchema) *Mapper {
	schemas := make(map[string]models.SourceSchema, len(sources))
	for _, s := range sources {
		schemas[s.Name] = s
	}
	return &Mapper{
		schemas: schemas,
		layouts: make(map[string][]string),
	}
}

// Schema returns the schema of a source.
func (m *Mapper) Schema(source string) (models.SourceSchema, bool) {
	s, ok := m.schemas[source]
	return s, ok
}

// Sources lists all configured source names.
func (m *Mapper) Sources() []string {
	names := make([]string, 0, len(m.schemas))
	for name := range m.schemas {
		names = append(names, name)
	}
	return names
}

// MapRows turns a full-tab read (header row included) into records. Row
// numbers are 1-based sheet positions observed now; ids derive from them.
// Rows with no content in any business column are skipped without disturbing
// the numbering of later rows.
func (m *Mapper) MapRows(source string, rows [][]string) ([]models.InventoryRecord, error) {
	schema, ok := m.schemas[source]
	if !ok {
		return nil, fmt.Errorf("unknown source %q", source)
	}

	layout := canonicalLayout()
	headerIdx := schema.HeaderRow - 1
	if headerIdx >= 0 && headerIdx < len(rows) {
		if resolved := resolveHeader(rows[headerIdx], schema.Aliases); resolved != nil {
			layout = resolved
		}
	}

	m.mu.Lock()
	m.layouts[source] = layout
	m.mu.Unlock()

	records := make([]models.InventoryRecord, 0, len(rows))
	for i := headerIdx + 1; i < len(rows); i++ {
		fields := rowToFields(rows[i], layout)
		if fields == nil {
			continue
		}
		rowNum := i + 1
		records = append(records, models.InventoryRecord{
			ID:     models.RecordID(source, rowNum),
			Source: source,
			Row:    rowNum,
			Fields: fields,
		})
	}
	return records, nil
}

// MapRow converts a single raw row at a known position.
func (m *Mapper) MapRow(source string, rowNum int, raw []string) models.InventoryRecord {
	fields := rowToFields(raw, m.layout(source))
	if fields == nil {
		fields = make(map[string]string)
	}
	return models.InventoryRecord{
		ID:     models.RecordID(source, rowNum),
		Source: source,
		Row:    rowNum,
		Fields: fields,
	}
}

// RowValues flattens fields into the column layout of a source for writing.
func (m *Mapper) RowValues(source string, fields map[string]string) []string {
	layout := m.layout(source)
	out := make([]string, len(layout))
	for i, key := range layout {
		if key != "" {
			out[i] = fields[key]
		}
	}
	return out
}

// layout returns the cached column layout of a source, or canonical order
// when the source has not been fetched yet.
func (m *Mapper) layout(source string) []string {
	m.mu.RLock()
	layout, ok := m.layouts[source]
	m.mu.RUnlock()
	if !ok {
		return canonicalLayout()
	}
	return layout
}

func canonicalLayout() []string {
	layout := make([]string, len(models.FieldOrder))
	copy(layout, models.FieldOrder)
	return layout
}

// resolveHeader maps each header cell to a field key via the alias table.
// Returns nil when nothing matched, which signals a missing header row.
func resolveHeader(header []string, aliases map[string][]string) []string {
	lookup := make(map[string]string)
	for field, names := range aliases {
		for _, n := range names {
			lookup[strings.ToLower(strings.TrimSpace(n))] = field
		}
	}

	layout := make([]string, len(header))
	matched := 0
	for i, cell := range header {
		if field, ok := lookup[strings.ToLower(strings.TrimSpace(cell))]; ok {
			layout[i] = field
			matched++
		}
	}
	if matched == 0 {
		return nil
	}
	return layout
}

// rowToFields maps raw cells onto field keys. Returns nil for empty rows.
func rowToFields(raw []string, layout []string) map[string]string {
	fields := make(map[string]string, len(models.FieldOrder))
	hasContent := false
	for i, key := range layout {
		if key == "" {
			continue
		}
		var v string
		if i < len(raw) {
			v = strings.TrimSpace(raw[i])
		}
		fields[key] = v
		if v != "" {
			hasContent = true
		}
	}
	if !hasContent {
		return nil
	}
	// Fields absent from the layout still get an empty entry so downstream
	// comparisons see a stable key set.
	for _, f := range models.FieldOrder {
		if _, ok := fields[f]; !ok {
			fields[f] = ""
		}
	}
	return fields
}
