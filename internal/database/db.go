package database

import (
	"database/sql"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Database represents the database connection and operations
type Database struct {
	DB *sql.DB
}

// New creates a new Database instance
func New(dsn string) (*Database, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	// Verify connection
	if err = db.Ping(); err != nil {
		return nil, err
	}

	return &Database{DB: db}, nil
}

// Init creates the required tables if they don't exist
func (d *Database) Init() error {
	createTables := `
	CREATE TABLE IF NOT EXISTS drones (
		drone_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		gui_token TEXT NOT NULL UNIQUE,
		telemetry_topic TEXT NOT NULL,
		command_topic TEXT NOT NULL,
		video_topic TEXT NOT NULL,
		alert_topic TEXT NOT NULL,
		last_status TEXT NOT NULL,
		last_seen TIMESTAMP,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		registered_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scan_sessions (
		session_id TEXT PRIMARY KEY,
		drone_id TEXT NOT NULL REFERENCES drones(drone_id),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP,
		total_frames_processed INTEGER NOT NULL DEFAULT 0,
		fire_detections INTEGER NOT NULL DEFAULT 0,
		smoke_detections INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS log_entries (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		message TEXT NOT NULL,
		log_type TEXT NOT NULL,
		drone_id TEXT REFERENCES drones(drone_id),
		confidence DOUBLE PRECISION,
		detection_class TEXT NOT NULL DEFAULT '',
		bbox TEXT,
		frame_path TEXT NOT NULL DEFAULT '',
		position_x DOUBLE PRECISION,
		position_y DOUBLE PRECISION,
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		timestamp TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_log_entries_type_ts ON log_entries (log_type, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_log_entries_drone_ts ON log_entries (drone_id, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_scan_sessions_drone_active ON scan_sessions (drone_id) WHERE is_active;
	`

	_, err := d.DB.Exec(createTables)
	return err
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.DB.Close()
}
