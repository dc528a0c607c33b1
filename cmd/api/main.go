package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"github.com/Alierenkayhan/yangin-risk-drone/internal/api"
	"github.com/Alierenkayhan/yangin-risk-drone/internal/broker"
	"github.com/Alierenkayhan/yangin-risk-drone/internal/config"
	"github.com/Alierenkayhan/yangin-risk-drone/internal/database"
)

func main() {
	log.Println("API: init...")

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal(err)
	}

	db, err := database.New(cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.Init(); err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	defer db.Close()

	// Registration declares drone topology, so the API needs the broker too
	gateway := broker.NewGateway(cfg)
	if err := gateway.Connect(); err != nil {
		log.Fatalf("Failed to connect to broker: %v", err)
	}
	defer gateway.Close()

	handlers := api.NewHandlers(db, gateway)

	r := mux.NewRouter()
	r.HandleFunc("/api/drones/register", handlers.RegisterDroneHandler).Methods("POST")
	r.HandleFunc("/api/drones", handlers.GetDronesHandler).Methods("GET")
	r.HandleFunc("/api/drones/active", handlers.GetActiveDronesHandler).Methods("GET")
	r.HandleFunc("/api/drones/{drone_id}/connection", handlers.GetConnectionInfoHandler).Methods("GET")
	r.HandleFunc("/api/drones/{drone_id}", handlers.DeactivateDroneHandler).Methods("DELETE")
	r.HandleFunc("/api/logs", handlers.GetLogsHandler).Methods("GET")
	r.HandleFunc("/api/logs", handlers.CreateLogHandler).Methods("POST")
	r.HandleFunc("/api/sessions/active", handlers.GetActiveSessionsHandler).Methods("GET")
	r.HandleFunc("/api/sessions/{session_id}", handlers.GetSessionHandler).Methods("GET")
	r.HandleFunc("/api/status", handlers.GetStatusHandler).Methods("GET")

	addr := fmt.Sprintf(":%d", cfg.API.Port)
	log.Printf("Starting API server on %s", addr)
	log.Fatal(http.ListenAndServe(addr, r))
}
