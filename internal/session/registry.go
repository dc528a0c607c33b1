package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Alierenkayhan/yangin-risk-drone/internal/database"
	"github.com/Alierenkayhan/yangin-risk-drone/internal/models"
)

// Store is what the registry needs from persistence.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetDrone(ctx context.Context, droneID string) (*models.Drone, error)
	InsertSession(ctx context.Context, session *models.ScanSession) error
	GetActiveSession(ctx context.Context, droneID string) (*models.ScanSession, error)
	GetSession(ctx context.Context, sessionID string) (*models.ScanSession, error)
	CloseActiveSessions(ctx context.Context, droneID string, endedAt time.Time) error
	CloseSession(ctx context.Context, sessionID string, endedAt time.Time) error
	IncrementSessionCounters(ctx context.Context, sessionID string, hasFire, hasSmoke bool) error
	UpdateDroneStatus(ctx context.Context, update database.StatusUpdate) error
	InsertLogEntry(ctx context.Context, entry *models.LogEntry) error
}

// Registry owns the scan session lifecycle. At most one session per drone is
// active at any time; that invariant is enforced here at creation, not by
// convention.
type Registry struct {
	store Store
}

// NewRegistry creates a Registry backed by the given store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// Start opens a new scan session for the drone, force-closing any session
// that is still active. Runs as one transaction so readers never observe two
// active sessions.
func (r *Registry) Start(ctx context.Context, droneID string) (*models.ScanSession, error) {
	drone, err := r.store.GetDrone(ctx, droneID)
	if err != nil {
		return nil, err
	}
	if drone == nil {
		return nil, fmt.Errorf("drone %q is not registered", droneID)
	}

	now := time.Now()
	session := &models.ScanSession{
		SessionID: uuid.New().String(),
		DroneID:   droneID,
		IsActive:  true,
		StartedAt: now,
	}

	err = r.store.InTx(ctx, func(ctx context.Context) error {
		if err := r.store.CloseActiveSessions(ctx, droneID, now); err != nil {
			return fmt.Errorf("failed to close previous sessions: %w", err)
		}
		if err := r.store.InsertSession(ctx, session); err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		if err := r.store.UpdateDroneStatus(ctx, database.StatusUpdate{
			DroneID: droneID,
			Status:  models.StatusScanning,
			SeenAt:  now,
		}); err != nil {
			return fmt.Errorf("failed to update drone status: %w", err)
		}
		return r.store.InsertLogEntry(ctx, &models.LogEntry{
			Source:  drone.Name,
			Message: fmt.Sprintf("Scan started, session %s", session.SessionID),
			LogType: models.LogAction,
			DroneID: droneID,
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Registry: scan started for %s, session=%s", droneID, session.SessionID)
	return session, nil
}

// Stop closes the session, reverts the drone to hovering and writes a
// summary log entry with the final counters.
func (r *Registry) Stop(ctx context.Context, session *models.ScanSession) (*models.ScanSession, error) {
	drone, err := r.store.GetDrone(ctx, session.DroneID)
	if err != nil {
		return nil, err
	}

	source := session.DroneID
	if drone != nil {
		source = drone.Name
	}

	now := time.Now()

	// Counters may have advanced since the caller loaded the session
	final, err := r.store.GetSession(ctx, session.SessionID)
	if err != nil {
		return nil, err
	}
	if final == nil {
		final = session
	}

	err = r.store.InTx(ctx, func(ctx context.Context) error {
		if err := r.store.CloseSession(ctx, session.SessionID, now); err != nil {
			return fmt.Errorf("failed to close session: %w", err)
		}
		if err := r.store.UpdateDroneStatus(ctx, database.StatusUpdate{
			DroneID: session.DroneID,
			Status:  models.StatusHovering,
			SeenAt:  now,
		}); err != nil {
			return fmt.Errorf("failed to update drone status: %w", err)
		}
		return r.store.InsertLogEntry(ctx, &models.LogEntry{
			Source: source,
			Message: fmt.Sprintf("Scan stopped: %d fire, %d smoke in %d frames",
				final.FireDetections, final.SmokeDetections, final.TotalFramesProcessed),
			LogType: models.LogInfo,
			DroneID: session.DroneID,
		})
	})
	if err != nil {
		return nil, err
	}

	final.IsActive = false
	final.EndedAt = &now

	log.Printf("Registry: scan stopped, session=%s", session.SessionID)
	return final, nil
}

// RecordFrame increments the session counters. Persisted synchronously so
// statistics survive a crash between frames; the increment is a single
// statement at the storage layer.
func (r *Registry) RecordFrame(ctx context.Context, session *models.ScanSession, hasFire, hasSmoke bool) error {
	if err := r.store.IncrementSessionCounters(ctx, session.SessionID, hasFire, hasSmoke); err != nil {
		return err
	}

	session.TotalFramesProcessed++
	if hasFire {
		session.FireDetections++
	}
	if hasSmoke {
		session.SmokeDetections++
	}
	return nil
}

// ActiveSessionFor returns the drone's active session, or nil if there is none.
func (r *Registry) ActiveSessionFor(ctx context.Context, droneID string) (*models.ScanSession, error) {
	return r.store.GetActiveSession(ctx, droneID)
}
