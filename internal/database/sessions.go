package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Alierenkayhan/yangin-risk-drone/internal/models"
)

const sessionColumns = `session_id, drone_id, is_active, started_at, ended_at,
	total_frames_processed, fire_detections, smoke_detections`

// InsertSession creates a new scan session record.
func (d *Database) InsertSession(ctx context.Context, session *models.ScanSession) error {
	_, err := d.querier(ctx).ExecContext(ctx, `
		INSERT INTO scan_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		session.SessionID,
		session.DroneID,
		session.IsActive,
		session.StartedAt,
		session.EndedAt,
		session.TotalFramesProcessed,
		session.FireDetections,
		session.SmokeDetections,
	)

	return err
}

// GetActiveSession returns the drone's active session, or (nil, nil) if there is none.
func (d *Database) GetActiveSession(ctx context.Context, droneID string) (*models.ScanSession, error) {
	row := d.querier(ctx).QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM scan_sessions
		WHERE drone_id = $1 AND is_active = TRUE
		ORDER BY started_at DESC
		LIMIT 1`, droneID)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}

	return session, nil
}

// GetSession retrieves one session by its id. Returns (nil, nil) when not found.
func (d *Database) GetSession(ctx context.Context, sessionID string) (*models.ScanSession, error) {
	row := d.querier(ctx).QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM scan_sessions WHERE session_id = $1`, sessionID)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// ListActiveSessions retrieves all currently active sessions.
func (d *Database) ListActiveSessions(ctx context.Context) ([]models.ScanSession, error) {
	rows, err := d.querier(ctx).QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM scan_sessions
		WHERE is_active = TRUE
		ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.ScanSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}

	return sessions, rows.Err()
}

// CloseActiveSessions force-closes every active session of a drone.
// Run before inserting a new session so at most one stays active.
func (d *Database) CloseActiveSessions(ctx context.Context, droneID string, endedAt time.Time) error {
	_, err := d.querier(ctx).ExecContext(ctx, `
		UPDATE scan_sessions SET is_active = FALSE, ended_at = $1
		WHERE drone_id = $2 AND is_active = TRUE`,
		endedAt,
		droneID,
	)

	return err
}

// CloseSession marks one session inactive and stamps its end time.
func (d *Database) CloseSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	_, err := d.querier(ctx).ExecContext(ctx, `
		UPDATE scan_sessions SET is_active = FALSE, ended_at = $1
		WHERE session_id = $2 AND is_active = TRUE`,
		endedAt,
		sessionID,
	)

	return err
}

// IncrementSessionCounters bumps the frame counter and, conditionally, the
// fire/smoke counters in a single statement so concurrent increments never lose updates.
func (d *Database) IncrementSessionCounters(ctx context.Context, sessionID string, hasFire, hasSmoke bool) error {
	fire := 0
	if hasFire {
		fire = 1
	}
	smoke := 0
	if hasSmoke {
		smoke = 1
	}

	_, err := d.querier(ctx).ExecContext(ctx, `
		UPDATE scan_sessions SET
			total_frames_processed = total_frames_processed + 1,
			fire_detections = fire_detections + $1,
			smoke_detections = smoke_detections + $2
		WHERE session_id = $3`,
		fire,
		smoke,
		sessionID,
	)

	return err
}

func scanSession(row scannable) (*models.ScanSession, error) {
	var session models.ScanSession
	var endedAt sql.NullTime

	err := row.Scan(
		&session.SessionID,
		&session.DroneID,
		&session.IsActive,
		&session.StartedAt,
		&endedAt,
		&session.TotalFramesProcessed,
		&session.FireDetections,
		&session.SmokeDetections,
	)
	if err != nil {
		return nil, err
	}

	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}

	return &session, nil
}
