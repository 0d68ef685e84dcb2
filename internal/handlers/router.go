package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/medhubvn/stocksheet/internal/config"
	"github.com/medhubvn/stocksheet/internal/database"
	"github.com/medhubvn/stocksheet/internal/middleware"
	"github.com/medhubvn/stocksheet/internal/models"
	"github.com/medhubvn/stocksheet/internal/sheets"
	syncsvc "github.com/medhubvn/stocksheet/internal/sync"
	"github.com/medhubvn/stocksheet/internal/websocket"
)

// Router wraps the mux router and the services handlers reach for
type Router struct {
	*mux.Router
	db   *database.DB
	cfg  *config.Config
	hub  *websocket.Hub
	sync *syncsvc.Service
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(db *database.DB, cfg *config.Config, hub *websocket.Hub, svc *syncsvc.Service) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		db:     db,
		cfg:    cfg,
		hub:    hub,
		sync:   svc,
	}

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Auth routes
	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", r.login).Methods("POST")
	auth.HandleFunc("/register", r.register).Methods("POST")

	// Websocket endpoint: observers receive the current snapshot on connect,
	// then the live event feed.
	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		websocket.ServeWs(hub, w, req, func() interface{} {
			return models.NewInventoryUpdate(models.UpdateActionRefresh, models.RefreshPayload{
				Records: r.snapshotList(),
			})
		})
	})

	// Protected API routes
	authn := middleware.AuthMiddleware(cfg.JWTSecret)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(authn)

	api.HandleFunc("/status", r.getStatus).Methods("GET")
	api.HandleFunc("/inventory", r.listInventory).Methods("GET")
	api.HandleFunc("/inventory", r.addRecord).Methods("POST")
	api.HandleFunc("/inventory/{id}", r.deleteRecord).Methods("DELETE")
	api.HandleFunc("/inventory/{id}/edit", r.beginEdit).Methods("POST")
	api.HandleFunc("/inventory/{id}/edit", r.endEdit).Methods("DELETE")
	api.HandleFunc("/inventory/{id}/commit", r.commitEdit).Methods("POST")
	api.HandleFunc("/inventory/relocate", r.relocate).Methods("POST")
	api.HandleFunc("/inventory/send-out", r.bulkSendOut).Methods("POST")
	api.HandleFunc("/changes", r.listChanges).Methods("GET")
	api.HandleFunc("/sync", r.triggerSync).Methods("POST")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// getStatus reports the sync state and connection count
func (r *Router) getStatus(w http.ResponseWriter, req *http.Request) {
	state := r.sync.State()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"records":          state.Count(),
		"lastSyncAt":       state.LastSyncAt(),
		"mutationInFlight": state.MutationInFlight(),
		"connectedClients": r.hub.Count(),
		"activeSessions":   r.sync.Sessions().Active(),
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondSyncError maps the sync error taxonomy onto HTTP statuses.
// Conflicts carry their field diff so the client can merge or force.
func respondSyncError(w http.ResponseWriter, err error) {
	if conflict, ok := syncsvc.AsConflict(err); ok {
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"error":    "edit conflict",
			"rowId":    conflict.RowID,
			"conflict": conflict.Changes,
		})
		return
	}
	if locked, ok := syncsvc.AsLocked(err); ok {
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"error":  "row locked",
			"rowId":  locked.RowID,
			"holder": locked.Holder,
		})
		return
	}
	switch {
	case errors.Is(err, syncsvc.ErrRowNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, syncsvc.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, syncsvc.ErrBusy):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, sheets.ErrRemoteUnavailable):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
