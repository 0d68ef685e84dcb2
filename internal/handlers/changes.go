package handlers

import (
	"net/http"
	"strconv"
	"time"
)

// listChanges queries the change log: optional ?since=RFC3339 and ?limit=N,
// newest entries first.
func (r *Router) listChanges(w http.ResponseWriter, req *http.Request) {
	limit := 100
	if v := req.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var since *time.Time
	if v := req.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = &t
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"changes": r.sync.ChangeLog().Query(since, limit),
	})
}

// triggerSync requests an immediate reconciliation cycle
func (r *Router) triggerSync(w http.ResponseWriter, req *http.Request) {
	r.sync.TriggerSync()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "sync requested"})
}
