package sync

import (
	"encoding/json"
	"sort"

	"github.com/medhubvn/stocksheet/internal/models"
)

// SerializeSnapshot renders a snapshot deterministically (sorted by id) so
// two byte-equal serializations mean an unchanged inventory. The whole-
// snapshot compare is O(n) per cycle, which is fine at sheet scale.
func SerializeSnapshot(records map[string]models.InventoryRecord) []byte {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ordered := make([]models.InventoryRecord, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, records[id])
	}

	data, err := json.Marshal(ordered)
	if err != nil {
		// Records are plain string maps; marshal cannot fail in practice.
		return nil
	}
	return data
}

// DiffSnapshots classifies every id that moved between two snapshots.
// Present only in old: DELETE. Only in new: ADD. In both with any business
// field difference: UPDATE. Deltas come back sorted by record id so
// broadcasts are stable.
func DiffSnapshots(old, new map[string]models.InventoryRecord) []models.Delta {
	deltas := make([]models.Delta, 0)

	for id, newRec := range new {
		oldRec, ok := old[id]
		if !ok {
			deltas = append(deltas, models.Delta{Action: models.UpdateActionAdd, Record: newRec})
			continue
		}
		if !oldRec.Equal(newRec) {
			deltas = append(deltas, models.Delta{Action: models.UpdateActionUpdate, Record: newRec})
		}
	}

	for id, oldRec := range old {
		if _, ok := new[id]; !ok {
			deltas = append(deltas, models.Delta{Action: models.UpdateActionDelete, Record: oldRec})
		}
	}

	sort.Slice(deltas, func(i, j int) bool {
		if deltas[i].Record.ID != deltas[j].Record.ID {
			return deltas[i].Record.ID < deltas[j].Record.ID
		}
		return deltas[i].Action < deltas[j].Action
	})
	return deltas
}

// FieldDiff lists the business fields whose values differ between two raw
// field maps, in canonical field order.
func FieldDiff(old, new map[string]string) []models.FieldChange {
	changes := make([]models.FieldChange, 0)
	for _, f := range models.FieldOrder {
		if old[f] != new[f] {
			changes = append(changes, models.FieldChange{Field: f, Old: old[f], New: new[f]})
		}
	}
	return changes
}
