package handlers

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/medhubvn/stocksheet/internal/middleware"
	"github.com/medhubvn/stocksheet/internal/models"
	syncsvc "github.com/medhubvn/stocksheet/internal/sync"
)

// snapshotList returns the cached snapshot sorted by id.
func (r *Router) snapshotList() []models.InventoryRecord {
	snapshot := r.sync.State().Snapshot()
	records := make([]models.InventoryRecord, 0, len(snapshot))
	for _, rec := range snapshot {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records
}

// listInventory serves the current snapshot. Reads never hit the remote
// store; the reconciliation loop keeps the snapshot fresh.
func (r *Router) listInventory(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"records":    r.snapshotList(),
		"lastSyncAt": r.sync.State().LastSyncAt(),
	})
}

// addRecord appends a new inventory row to a source
func (r *Router) addRecord(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Source string            `json:"source"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	record, err := r.sync.AddRecord(req.Context(), middleware.Username(req.Context()), body.Source, body.Fields)
	if err != nil {
		respondSyncError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, record)
}

// deleteRecord removes a row; business keys in the query string feed the
// drift resolver when the row's index has gone stale.
func (r *Router) deleteRecord(w http.ResponseWriter, req *http.Request) {
	rowID := mux.Vars(req)["id"]

	keys := make(map[string]string)
	for _, f := range models.FieldOrder {
		if v := req.URL.Query().Get(f); v != "" {
			keys[f] = v
		}
	}

	if err := r.sync.DeleteRecord(req.Context(), middleware.Username(req.Context()), rowID, keys); err != nil {
		respondSyncError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": rowID})
}

// beginEdit opens an edit session and returns the fresh remote baseline
func (r *Router) beginEdit(w http.ResponseWriter, req *http.Request) {
	rowID := mux.Vars(req)["id"]

	session, err := r.sync.BeginEdit(req.Context(), middleware.Username(req.Context()), rowID)
	if err != nil {
		respondSyncError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

// endEdit releases the caller's edit session without committing
func (r *Router) endEdit(w http.ResponseWriter, req *http.Request) {
	released := r.sync.EndEdit(middleware.Username(req.Context()))
	respondJSON(w, http.StatusOK, map[string]bool{"released": released})
}

// commitEdit applies the edited fields, optionally forcing past a conflict
func (r *Router) commitEdit(w http.ResponseWriter, req *http.Request) {
	rowID := mux.Vars(req)["id"]

	var body struct {
		Fields map[string]string `json:"fields"`
		Force  bool              `json:"force"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	record, err := r.sync.CommitEdit(req.Context(), middleware.Username(req.Context()), rowID, body.Fields, body.Force)
	if err != nil {
		respondSyncError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// relocate moves quantity between sources
func (r *Router) relocate(w http.ResponseWriter, req *http.Request) {
	var body syncsvc.RelocateRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	if err := r.sync.Relocate(req.Context(), middleware.Username(req.Context()), body); err != nil {
		respondSyncError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "relocated"})
}

// bulkSendOut ships quantity out of several rows at once
func (r *Router) bulkSendOut(w http.ResponseWriter, req *http.Request) {
	var body syncsvc.BulkSendOutRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	if err := r.sync.BulkSendOut(req.Context(), middleware.Username(req.Context()), body); err != nil {
		respondSyncError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
