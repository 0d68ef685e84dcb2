package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Business field keys of one inventory line. Values stay strings end to end
// because the remote sheet has no typing; Quantity parses on demand.
const (
	FieldBrand       = "brand"
	FieldProductCode = "productCode"
	FieldProductName = "productName"
	FieldLotNumber   = "lotNumber"
	FieldQuantity    = "quantity"
	FieldUnit        = "unit"
	FieldExpiryDate  = "expiryDate"
	FieldImportDate  = "importDate"
	FieldLocation    = "location"
	FieldWarehouse   = "warehouse"
	FieldNotes       = "notes"
)

// FieldOrder is the canonical column order inside every source tab.
var FieldOrder = []string{
	FieldBrand,
	FieldProductCode,
	FieldProductName,
	FieldLotNumber,
	FieldQuantity,
	FieldUnit,
	FieldExpiryDate,
	FieldImportDate,
	FieldLocation,
	FieldWarehouse,
	FieldNotes,
}

// DefaultHeaderAliases maps a field key to header titles accepted when the
// header row of a tab is resolved. Matching is case-insensitive and trimmed.
var DefaultHeaderAliases = map[string][]string{
	FieldBrand:       {"brand", "hãng", "hang"},
	FieldProductCode: {"product code", "code", "mã hàng", "ma hang", "sku"},
	FieldProductName: {"product name", "name", "tên hàng", "ten hang"},
	FieldLotNumber:   {"lot", "lot number", "số lô", "so lo"},
	FieldQuantity:    {"quantity", "qty", "số lượng", "so luong"},
	FieldUnit:        {"unit", "đơn vị", "don vi"},
	FieldExpiryDate:  {"expiry", "expiry date", "hạn dùng", "han dung", "hsd"},
	FieldImportDate:  {"import date", "ngày nhập", "ngay nhap"},
	FieldLocation:    {"location", "vị trí", "vi tri"},
	FieldWarehouse:   {"warehouse", "kho"},
	FieldNotes:       {"notes", "note", "ghi chú", "ghi chu"},
}

// SourceSchema describes one remote source tab: where it lives and how its
// header row maps onto the canonical fields. Resolved once at startup.
type SourceSchema struct {
	Name      string              `json:"name"`      // source key, also the id prefix
	SheetName string              `json:"sheetName"` // tab title in the spreadsheet
	HeaderRow int                 `json:"headerRow"` // 1-based, data starts on the next row
	Aliases   map[string][]string `json:"-"`
}

// InventoryRecord is one logical stock line materialized from a source row.
type InventoryRecord struct {
	ID     string            `json:"id"` // "<source>_<rowNumber>"
	Source string            `json:"source"`
	Row    int               `json:"row"` // 1-based sheet row at the most recent fetch
	Fields map[string]string `json:"fields"`
}

// RecordID builds the synthetic identifier for a source row.
func RecordID(source string, row int) string {
	return source + "_" + strconv.Itoa(row)
}

// ParseRecordID splits an id back into source prefix and row number.
func ParseRecordID(id string) (source string, row int, err error) {
	idx := strings.LastIndex(id, "_")
	if idx <= 0 {
		return "", 0, fmt.Errorf("malformed record id %q", id)
	}
	row, err = strconv.Atoi(id[idx+1:])
	if err != nil || row < 1 {
		return "", 0, fmt.Errorf("malformed record id %q", id)
	}
	return id[:idx], row, nil
}

// Quantity parses the quantity field, tolerating thousand separators and
// surrounding whitespace. Unparseable values count as zero.
func (r InventoryRecord) Quantity() int {
	raw := strings.TrimSpace(r.Fields[FieldQuantity])
	raw = strings.ReplaceAll(raw, ",", "")
	raw = strings.ReplaceAll(raw, ".", "")
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

// Values flattens the record into canonical column order.
func (r InventoryRecord) Values() []string {
	out := make([]string, len(FieldOrder))
	for i, f := range FieldOrder {
		out[i] = r.Fields[f]
	}
	return out
}

// Equal reports whether two records carry the same business content.
// Row position and id are identity, not content, and are ignored here.
func (r InventoryRecord) Equal(other InventoryRecord) bool {
	for _, f := range FieldOrder {
		if r.Fields[f] != other.Fields[f] {
			return false
		}
	}
	return true
}
