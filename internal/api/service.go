package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/Alierenkayhan/yangin-risk-drone/internal/database"
	"github.com/Alierenkayhan/yangin-risk-drone/internal/models"
)

// TopicDeclarer creates a drone's broker topology at registration time.
// The router binds these queues later; this handoff is what makes its
// passive checks succeed.
type TopicDeclarer interface {
	DeclareDroneTopics(drone *models.Drone) error
}

type Handlers struct {
	db     *database.Database
	broker TopicDeclarer
}

func NewHandlers(db *database.Database, broker TopicDeclarer) *Handlers {
	return &Handlers{db: db, broker: broker}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
