package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Alierenkayhan/yangin-risk-drone/internal/models"
)

const droneColumns = `drone_id, name, model, gui_token,
	telemetry_topic, command_topic, video_topic, alert_topic,
	last_status, last_seen, is_active, registered_at, updated_at`

// StatusUpdate is an explicit status mutation applied atomically to one drone.
type StatusUpdate struct {
	DroneID string
	Status  models.DroneStatus
	SeenAt  time.Time
}

// UpsertDrone inserts a new drone or reactivates an existing registration.
// Topic columns and the GUI token are only written on first insert.
func (d *Database) UpsertDrone(ctx context.Context, drone *models.Drone) error {
	now := time.Now()
	drone.RegisteredAt = now
	drone.UpdatedAt = now

	_, err := d.querier(ctx).ExecContext(ctx, `
		INSERT INTO drones (`+droneColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (drone_id) DO UPDATE SET
			name = EXCLUDED.name,
			model = EXCLUDED.model,
			is_active = TRUE,
			last_seen = EXCLUDED.last_seen,
			updated_at = EXCLUDED.updated_at`,
		drone.DroneID,
		drone.Name,
		drone.Model,
		drone.GUIToken,
		drone.TelemetryTopic,
		drone.CommandTopic,
		drone.VideoTopic,
		drone.AlertTopic,
		drone.LastStatus,
		drone.LastSeen,
		drone.IsActive,
		drone.RegisteredAt,
		drone.UpdatedAt,
	)

	return err
}

// GetDrone retrieves one drone by its id. Returns (nil, nil) when not found.
func (d *Database) GetDrone(ctx context.Context, droneID string) (*models.Drone, error) {
	row := d.querier(ctx).QueryRowContext(ctx,
		`SELECT `+droneColumns+` FROM drones WHERE drone_id = $1`, droneID)

	drone, err := scanDrone(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get drone: %w", err)
	}

	return drone, nil
}

// ListDrones retrieves all registered drones.
func (d *Database) ListDrones(ctx context.Context) ([]models.Drone, error) {
	return d.queryDrones(ctx, `SELECT `+droneColumns+` FROM drones ORDER BY drone_id`)
}

// ListActiveDrones retrieves drones available for queue binding.
func (d *Database) ListActiveDrones(ctx context.Context) ([]models.Drone, error) {
	return d.queryDrones(ctx,
		`SELECT `+droneColumns+` FROM drones WHERE is_active = TRUE ORDER BY drone_id`)
}

// UpdateDroneStatus applies a status update in one statement.
func (d *Database) UpdateDroneStatus(ctx context.Context, update StatusUpdate) error {
	_, err := d.querier(ctx).ExecContext(ctx,
		`UPDATE drones SET last_status = $1, last_seen = $2, updated_at = $3 WHERE drone_id = $4`,
		update.Status,
		update.SeenAt,
		time.Now(),
		update.DroneID,
	)

	return err
}

// DeactivateDrone soft-deletes a drone. Records are never removed.
func (d *Database) DeactivateDrone(ctx context.Context, droneID string) error {
	_, err := d.querier(ctx).ExecContext(ctx,
		`UPDATE drones SET is_active = FALSE, last_status = $1, updated_at = $2 WHERE drone_id = $3`,
		models.StatusOffline,
		time.Now(),
		droneID,
	)

	return err
}

func (d *Database) queryDrones(ctx context.Context, query string, args ...any) ([]models.Drone, error) {
	rows, err := d.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drones []models.Drone
	for rows.Next() {
		drone, err := scanDrone(rows)
		if err != nil {
			return nil, err
		}
		drones = append(drones, *drone)
	}

	return drones, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanDrone(row scannable) (*models.Drone, error) {
	var drone models.Drone
	var lastSeen sql.NullTime

	err := row.Scan(
		&drone.DroneID,
		&drone.Name,
		&drone.Model,
		&drone.GUIToken,
		&drone.TelemetryTopic,
		&drone.CommandTopic,
		&drone.VideoTopic,
		&drone.AlertTopic,
		&drone.LastStatus,
		&lastSeen,
		&drone.IsActive,
		&drone.RegisteredAt,
		&drone.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastSeen.Valid {
		drone.LastSeen = &lastSeen.Time
	}

	return &drone, nil
}
