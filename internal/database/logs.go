package database

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Alierenkayhan/yangin-risk-drone/internal/models"
)

const logColumns = `id, source, message, log_type, drone_id, confidence,
	detection_class, bbox, frame_path, position_x, position_y,
	latitude, longitude, timestamp, created_at`

// LogFilter narrows log queries.
type LogFilter struct {
	LogType        models.LogType
	DroneID        string
	DetectionsOnly bool
	Limit          int
}

// InsertLogEntry appends one log record. Entries are immutable once written.
func (d *Database) InsertLogEntry(ctx context.Context, entry *models.LogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	now := time.Now()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	entry.CreatedAt = now

	var bbox any
	if entry.BBox != nil {
		raw, err := json.Marshal(entry.BBox)
		if err != nil {
			return err
		}
		bbox = string(raw)
	}

	var droneID any
	if entry.DroneID != "" {
		droneID = entry.DroneID
	}

	_, err := d.querier(ctx).ExecContext(ctx, `
		INSERT INTO log_entries (`+logColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		entry.ID,
		entry.Source,
		entry.Message,
		entry.LogType,
		droneID,
		entry.Confidence,
		entry.DetectionClass,
		bbox,
		entry.FramePath,
		entry.PositionX,
		entry.PositionY,
		entry.Latitude,
		entry.Longitude,
		entry.Timestamp,
		entry.CreatedAt,
	)

	return err
}

// ListLogEntries retrieves records newest first, optionally filtered.
func (d *Database) ListLogEntries(ctx context.Context, filter LogFilter) ([]models.LogEntry, error) {
	query := `SELECT ` + logColumns + ` FROM log_entries`
	var conditions []string
	var args []any

	if filter.LogType != "" {
		args = append(args, filter.LogType)
		conditions = append(conditions, `log_type = $`+strconv.Itoa(len(args)))
	}
	if filter.DroneID != "" {
		args = append(args, filter.DroneID)
		conditions = append(conditions, `drone_id = $`+strconv.Itoa(len(args)))
	}
	if filter.DetectionsOnly {
		args = append(args, models.LogFireDetected, models.LogSmokeDetected)
		conditions = append(conditions, `log_type IN ($`+strconv.Itoa(len(args)-1)+`, $`+strconv.Itoa(len(args))+`)`)
	}

	for i, cond := range conditions {
		if i == 0 {
			query += ` WHERE ` + cond
		} else {
			query += ` AND ` + cond
		}
	}

	query += ` ORDER BY timestamp DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	rows, err := d.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	return entries, rows.Err()
}

func scanLogEntry(row scannable) (*models.LogEntry, error) {
	var entry models.LogEntry
	var droneID, bbox sql.NullString
	var confidence, posX, posY, lat, lng sql.NullFloat64

	err := row.Scan(
		&entry.ID,
		&entry.Source,
		&entry.Message,
		&entry.LogType,
		&droneID,
		&confidence,
		&entry.DetectionClass,
		&bbox,
		&entry.FramePath,
		&posX,
		&posY,
		&lat,
		&lng,
		&entry.Timestamp,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.DroneID = droneID.String
	if confidence.Valid {
		entry.Confidence = &confidence.Float64
	}
	if bbox.Valid && bbox.String != "" {
		if err := json.Unmarshal([]byte(bbox.String), &entry.BBox); err != nil {
			return nil, err
		}
	}
	if posX.Valid {
		entry.PositionX = &posX.Float64
	}
	if posY.Valid {
		entry.PositionY = &posY.Float64
	}
	if lat.Valid {
		entry.Latitude = &lat.Float64
	}
	if lng.Valid {
		entry.Longitude = &lng.Float64
	}

	return &entry, nil
}
