package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"github.com/Alierenkayhan/yangin-risk-drone/internal/models"
)

// GetActiveSessionsHandler lists all currently running scan sessions.
func (h *Handlers) GetActiveSessionsHandler(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.db.ListActiveSessions(r.Context())
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// GetSessionHandler returns one scan session by its id.
func (h *Handlers) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	session, err := h.db.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// GetStatusHandler reports system-level counts for the dashboard header.
func (h *Handlers) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	drones, err := h.db.ListDrones(ctx)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	sessions, err := h.db.ListActiveSessions(ctx)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	active, online := 0, 0
	for _, d := range drones {
		if d.IsActive {
			active++
		}
		if d.IsOnline() {
			online++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"drones_total":    len(drones),
		"drones_active":   active,
		"drones_online":   online,
		"active_sessions": len(sessions),
		"scanning": lo.Map(sessions, func(s models.ScanSession, _ int) string {
			return s.DroneID
		}),
	})
}
