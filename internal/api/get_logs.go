package api

import (
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/Alierenkayhan/yangin-risk-drone/internal/database"
	"github.com/Alierenkayhan/yangin-risk-drone/internal/models"
)

// GetLogsHandler lists log entries newest first.
// Filters: ?type=ALERT&drone_id=D-01&detections_only=true&limit=50
func (h *Handlers) GetLogsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := database.LogFilter{
		LogType: models.LogType(q.Get("type")),
		DroneID: q.Get("drone_id"),
	}
	if q.Get("detections_only") == "true" {
		filter.DetectionsOnly = true
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}

	entries, err := h.db.ListLogEntries(r.Context(), filter)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type createLogRequest struct {
	Source  string         `json:"source"`
	Message string         `json:"message"`
	LogType models.LogType `json:"log_type"`
	DroneID string         `json:"drone_id,omitempty"`
}

// CreateLogHandler appends an operator-originated log entry.
func (h *Handlers) CreateLogHandler(w http.ResponseWriter, r *http.Request) {
	var req createLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Source == "" || req.Message == "" {
		http.Error(w, "source and message are required", http.StatusBadRequest)
		return
	}
	if req.LogType == "" {
		req.LogType = models.LogInfo
	}

	entry := &models.LogEntry{
		Source:  req.Source,
		Message: req.Message,
		LogType: req.LogType,
		DroneID: req.DroneID,
	}
	if err := h.db.InsertLogEntry(r.Context(), entry); err != nil {
		http.Error(w, "Failed to create log entry", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}
