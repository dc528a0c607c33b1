package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"github.com/Alierenkayhan/yangin-risk-drone/internal/models"
)

// GetDronesHandler lists all registered drones.
func (h *Handlers) GetDronesHandler(w http.ResponseWriter, r *http.Request) {
	drones, err := h.db.ListDrones(r.Context())
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, publicDrones(drones))
}

// GetActiveDronesHandler lists active drones that are not offline.
func (h *Handlers) GetActiveDronesHandler(w http.ResponseWriter, r *http.Request) {
	drones, err := h.db.ListActiveDrones(r.Context())
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	online := lo.Filter(drones, func(d models.Drone, _ int) bool {
		return d.LastStatus != models.StatusOffline
	})
	writeJSON(w, http.StatusOK, publicDrones(online))
}

// DeactivateDroneHandler soft-deletes a drone. The record stays for audit.
func (h *Handlers) DeactivateDroneHandler(w http.ResponseWriter, r *http.Request) {
	drone, ok := h.droneFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.db.DeactivateDrone(r.Context(), drone.DroneID); err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) droneFromRequest(w http.ResponseWriter, r *http.Request) (*models.Drone, bool) {
	droneID := mux.Vars(r)["drone_id"]

	drone, err := h.db.GetDrone(r.Context(), droneID)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return nil, false
	}
	if drone == nil {
		http.Error(w, "Drone not found", http.StatusNotFound)
		return nil, false
	}
	return drone, true
}

// publicDrones strips the GUI token: it is a capability, not a list field.
func publicDrones(drones []models.Drone) []models.Drone {
	return lo.Map(drones, func(d models.Drone, _ int) models.Drone {
		d.GUIToken = ""
		return d
	})
}
