package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Alierenkayhan/yangin-risk-drone/internal/broker"
	"github.com/Alierenkayhan/yangin-risk-drone/internal/config"
	"github.com/Alierenkayhan/yangin-risk-drone/internal/database"
	"github.com/Alierenkayhan/yangin-risk-drone/internal/detection"
	"github.com/Alierenkayhan/yangin-risk-drone/internal/router"
	"github.com/Alierenkayhan/yangin-risk-drone/internal/s3"
	"github.com/Alierenkayhan/yangin-risk-drone/internal/session"
)

func main() {
	droneFilter := flag.String("drone", "", "bind only this drone id (for sharded deployments)")
	flag.Parse()

	log.Println("Router: init...")

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

	// Snapshot storage is best effort; the router runs without it
	var snapshots router.SnapshotStore
	if s3Client, err := s3.NewMinioClient(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Bucket); err != nil {
		log.Printf("MinIO unavailable, detection snapshots disabled: %v", err)
	} else {
		snapshots = s3Client
	}

	// One pipeline instance, shared by reference
	pipeline := detection.NewClient(cfg.Detection.Endpoint, cfg.Detection.ConfidenceThreshold, cfg.Detection.Timeout)
	dispatcher := detection.NewDispatcher(pipeline)
	registry := session.NewRegistry(db)
	gateway := broker.NewGateway(cfg)

	r := router.New(gateway, registry, dispatcher, db, snapshots)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		log.Println("Shutting down...")
		r.Stop()
	}()

	if err := r.Run(ctx, *droneFilter); err != nil {
		log.Fatalf("Router terminated: %v", err)
	}
}
