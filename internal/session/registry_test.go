package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alierenkayhan/yangin-risk-drone/internal/database"
	"github.com/Alierenkayhan/yangin-risk-drone/internal/models"
)

// memStore is an in-memory session.Store.
type memStore struct {
	drones   map[string]*models.Drone
	sessions map[string]*models.ScanSession
	logs     []*models.LogEntry
	statuses []database.StatusUpdate
}

func newMemStore(drones ...models.Drone) *memStore {
	s := &memStore{
		drones:   make(map[string]*models.Drone),
		sessions: make(map[string]*models.ScanSession),
	}
	for i := range drones {
		s.drones[drones[i].DroneID] = &drones[i]
	}
	return s
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *memStore) GetDrone(_ context.Context, droneID string) (*models.Drone, error) {
	return s.drones[droneID], nil
}

func (s *memStore) InsertSession(_ context.Context, session *models.ScanSession) error {
	copied := *session
	s.sessions[session.SessionID] = &copied
	return nil
}

func (s *memStore) GetActiveSession(_ context.Context, droneID string) (*models.ScanSession, error) {
	for _, sess := range s.sessions {
		if sess.DroneID == droneID && sess.IsActive {
			copied := *sess
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetSession(_ context.Context, sessionID string) (*models.ScanSession, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	copied := *sess
	return &copied, nil
}

func (s *memStore) CloseActiveSessions(_ context.Context, droneID string, endedAt time.Time) error {
	for _, sess := range s.sessions {
		if sess.DroneID == droneID && sess.IsActive {
			sess.IsActive = false
			ended := endedAt
			sess.EndedAt = &ended
		}
	}
	return nil
}

func (s *memStore) CloseSession(_ context.Context, sessionID string, endedAt time.Time) error {
	if sess, ok := s.sessions[sessionID]; ok && sess.IsActive {
		sess.IsActive = false
		ended := endedAt
		sess.EndedAt = &ended
	}
	return nil
}

func (s *memStore) IncrementSessionCounters(_ context.Context, sessionID string, hasFire, hasSmoke bool) error {
	sess := s.sessions[sessionID]
	sess.TotalFramesProcessed++
	if hasFire {
		sess.FireDetections++
	}
	if hasSmoke {
		sess.SmokeDetections++
	}
	return nil
}

func (s *memStore) UpdateDroneStatus(_ context.Context, update database.StatusUpdate) error {
	s.statuses = append(s.statuses, update)
	if d, ok := s.drones[update.DroneID]; ok {
		d.LastStatus = update.Status
	}
	return nil
}

func (s *memStore) InsertLogEntry(_ context.Context, entry *models.LogEntry) error {
	s.logs = append(s.logs, entry)
	return nil
}

func (s *memStore) activeCount(droneID string) int {
	n := 0
	for _, sess := range s.sessions {
		if sess.DroneID == droneID && sess.IsActive {
			n++
		}
	}
	return n
}

func testDrone() models.Drone {
	d := models.Drone{DroneID: "D-01", Name: "Falcon", GUIToken: "tok-1", IsActive: true}
	d.AssignTopics()
	return d
}

func TestStartCreatesActiveSession(t *testing.T) {
	store := newMemStore(testDrone())
	registry := NewRegistry(store)

	session, err := registry.Start(context.Background(), "D-01")
	require.NoError(t, err)

	assert.NotEmpty(t, session.SessionID)
	assert.True(t, session.IsActive)
	assert.Equal(t, "D-01", session.DroneID)
	assert.Zero(t, session.TotalFramesProcessed)

	// Drone flipped to scanning
	require.Len(t, store.statuses, 1)
	assert.Equal(t, models.StatusScanning, store.statuses[0].Status)

	// Action log written
	require.Len(t, store.logs, 1)
	assert.Equal(t, models.LogAction, store.logs[0].LogType)
	assert.Equal(t, "Falcon", store.logs[0].Source)
}

func TestStartUnknownDroneFails(t *testing.T) {
	store := newMemStore()
	registry := NewRegistry(store)

	_, err := registry.Start(context.Background(), "ghost")
	require.Error(t, err)
	assert.Empty(t, store.sessions)
}

func TestAtMostOneActiveSessionPerDrone(t *testing.T) {
	store := newMemStore(testDrone())
	registry := NewRegistry(store)

	first, err := registry.Start(context.Background(), "D-01")
	require.NoError(t, err)

	second, err := registry.Start(context.Background(), "D-01")
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	// Repeated starts never leave two active sessions behind
	assert.Equal(t, 1, store.activeCount("D-01"))

	closed, err := store.GetSession(context.Background(), first.SessionID)
	require.NoError(t, err)
	assert.False(t, closed.IsActive)
	assert.NotNil(t, closed.EndedAt)

	active, err := registry.ActiveSessionFor(context.Background(), "D-01")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.SessionID, active.SessionID)
}

func TestSessionsAreIndependentAcrossDrones(t *testing.T) {
	other := models.Drone{DroneID: "D-02", Name: "Hawk", GUIToken: "tok-2", IsActive: true}
	other.AssignTopics()
	store := newMemStore(testDrone(), other)
	registry := NewRegistry(store)

	_, err := registry.Start(context.Background(), "D-01")
	require.NoError(t, err)
	_, err = registry.Start(context.Background(), "D-02")
	require.NoError(t, err)

	assert.Equal(t, 1, store.activeCount("D-01"))
	assert.Equal(t, 1, store.activeCount("D-02"))
}

func TestRecordFrameCounts(t *testing.T) {
	store := newMemStore(testDrone())
	registry := NewRegistry(store)

	session, err := registry.Start(context.Background(), "D-01")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, registry.RecordFrame(context.Background(), session, false, false))
	}
	require.NoError(t, registry.RecordFrame(context.Background(), session, true, false))
	require.NoError(t, registry.RecordFrame(context.Background(), session, true, true))

	assert.Equal(t, 7, session.TotalFramesProcessed)
	assert.Equal(t, 2, session.FireDetections)
	assert.Equal(t, 1, session.SmokeDetections)
	assert.Equal(t, 3, session.TotalDetections())

	// Persisted counters match the in-memory view
	stored, err := store.GetSession(context.Background(), session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 7, stored.TotalFramesProcessed)
	assert.Equal(t, 2, stored.FireDetections)
	assert.Equal(t, 1, stored.SmokeDetections)
}

func TestStopClosesSessionAndRevertsDrone(t *testing.T) {
	store := newMemStore(testDrone())
	registry := NewRegistry(store)

	session, err := registry.Start(context.Background(), "D-01")
	require.NoError(t, err)
	require.NoError(t, registry.RecordFrame(context.Background(), session, true, false))

	final, err := registry.Stop(context.Background(), session)
	require.NoError(t, err)

	assert.False(t, final.IsActive)
	require.NotNil(t, final.EndedAt)
	assert.Equal(t, 1, final.TotalFramesProcessed)
	assert.Equal(t, 1, final.FireDetections)

	assert.Equal(t, 0, store.activeCount("D-01"))
	assert.Equal(t, models.StatusHovering, store.drones["D-01"].LastStatus)

	// Start log, then stop summary
	require.Len(t, store.logs, 2)
	assert.Equal(t, models.LogInfo, store.logs[1].LogType)
	assert.Contains(t, store.logs[1].Message, "1 fire")

	active, err := registry.ActiveSessionFor(context.Background(), "D-01")
	require.NoError(t, err)
	assert.Nil(t, active)
}
