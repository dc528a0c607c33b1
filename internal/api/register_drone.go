package api

import (
	"log"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Alierenkayhan/yangin-risk-drone/internal/models"
)

type registrationRequest struct {
	DroneID string `json:"drone_id"`
	Name    string `json:"name"`
	Model   string `json:"model"`
}

// RegisterDroneHandler registers a drone or reactivates an existing record,
// declares its broker topology and returns the connection info the drone
// needs to start publishing.
func (h *Handlers) RegisterDroneHandler(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.DroneID == "" || req.Name == "" {
		http.Error(w, "drone_id and name are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	drone, err := h.db.GetDrone(ctx, req.DroneID)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	created := drone == nil
	if created {
		now := time.Now()
		drone = &models.Drone{
			DroneID:    req.DroneID,
			Name:       req.Name,
			Model:      req.Model,
			GUIToken:   uuid.New().String(),
			LastStatus: models.StatusOffline,
			LastSeen:   &now,
			IsActive:   true,
		}
		drone.AssignTopics()
	} else {
		// Re-registration keeps the token and topics stable
		drone.Name = req.Name
		drone.Model = req.Model
		drone.IsActive = true
		now := time.Now()
		drone.LastSeen = &now
	}

	if err := h.db.UpsertDrone(ctx, drone); err != nil {
		http.Error(w, "Failed to save drone", http.StatusInternalServerError)
		return
	}

	if err := h.broker.DeclareDroneTopics(drone); err != nil {
		// Registration stands; the router will skip missing queues until
		// a later registration attempt succeeds
		log.Printf("API: topic declaration failed for %s: %v", drone.DroneID, err)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, connectionInfo(drone))
}

// GetConnectionInfoHandler returns the broker topology for one drone.
func (h *Handlers) GetConnectionInfoHandler(w http.ResponseWriter, r *http.Request) {
	drone, ok := h.droneFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, connectionInfo(drone))
}

func connectionInfo(drone *models.Drone) map[string]any {
	return map[string]any{
		"drone_id":  drone.DroneID,
		"gui_token": drone.GUIToken,
		"topics": map[string]string{
			"telemetry": drone.TelemetryTopic,
			"commands":  drone.CommandTopic,
			"video":     drone.VideoTopic,
			"alerts":    drone.AlertTopic,
		},
		"gui_routing_keys": map[string]string{
			"telemetry": models.GUIRoutingKey(drone.DroneID, models.GUITelemetry),
			"video":     models.GUIRoutingKey(drone.DroneID, models.GUIVideo),
			"detection": models.GUIRoutingKey(drone.DroneID, models.GUIDetection),
			"alerts":    models.GUIRoutingKey(drone.DroneID, models.GUIAlerts),
			"status":    models.GUIRoutingKey(drone.DroneID, models.GUIStatus),
			"commands":  models.GUIRoutingKey(drone.DroneID, "commands"),
		},
	}
}
