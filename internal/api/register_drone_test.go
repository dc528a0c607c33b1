package api

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alierenkayhan/yangin-risk-drone/internal/database"
	"github.com/Alierenkayhan/yangin-risk-drone/internal/models"
)

type fakeDeclarer struct {
	declared []string
	err      error
}

func (f *fakeDeclarer) DeclareDroneTopics(drone *models.Drone) error {
	f.declared = append(f.declared, drone.DroneID)
	return f.err
}

func newTestHandlers(t *testing.T) (*Handlers, sqlmock.Sqlmock, *fakeDeclarer) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	declarer := &fakeDeclarer{}
	return NewHandlers(&database.Database{DB: db}, declarer), mock, declarer
}

func existingDroneRow(droneID, token string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"drone_id", "name", "model", "gui_token",
		"telemetry_topic", "command_topic", "video_topic", "alert_topic",
		"last_status", "last_seen", "is_active", "registered_at", "updated_at",
	}).AddRow(droneID, "Old Name", "X4", token,
		"drone."+droneID+".telemetry", "drone."+droneID+".commands",
		"drone."+droneID+".video", "drone."+droneID+".alerts",
		"offline", now, false, now, now)
}

func TestRegisterNewDrone(t *testing.T) {
	handlers, mock, declarer := newTestHandlers(t)

	mock.ExpectQuery("SELECT (.+) FROM drones WHERE drone_id").
		WithArgs("D-01").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO drones").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost, "/api/drones/register",
		strings.NewReader(`{"drone_id":"D-01","name":"Falcon","model":"X4"}`))
	rec := httptest.NewRecorder()

	handlers.RegisterDroneHandler(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"D-01"}, declarer.declared)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "D-01", resp["drone_id"])
	assert.NotEmpty(t, resp["gui_token"])

	topics := resp["topics"].(map[string]any)
	assert.Equal(t, "drone.D-01.video", topics["video"])
	assert.Equal(t, "drone.D-01.commands", topics["commands"])

	keys := resp["gui_routing_keys"].(map[string]any)
	assert.Equal(t, "gui.D-01.video", keys["video"])
}

func TestRegisterExistingDroneKeepsToken(t *testing.T) {
	handlers, mock, declarer := newTestHandlers(t)

	mock.ExpectQuery("SELECT (.+) FROM drones WHERE drone_id").
		WithArgs("D-01").
		WillReturnRows(existingDroneRow("D-01", "tok-stable"))
	mock.ExpectExec("INSERT INTO drones").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost, "/api/drones/register",
		strings.NewReader(`{"drone_id":"D-01","name":"New Name"}`))
	rec := httptest.NewRecorder()

	handlers.RegisterDroneHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"D-01"}, declarer.declared)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "tok-stable", resp["gui_token"], "re-registration keeps the token stable")
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"drone_id":"D-01"}`},
		{"missing drone id", `{"name":"Falcon"}`},
		{"bad json", `{{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers, _, declarer := newTestHandlers(t)

			req := httptest.NewRequest(http.MethodPost, "/api/drones/register", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			handlers.RegisterDroneHandler(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, declarer.declared)
		})
	}
}

func TestRegisterSurvivesDeclarationFailure(t *testing.T) {
	handlers, mock, declarer := newTestHandlers(t)
	declarer.err = assert.AnError

	mock.ExpectQuery("SELECT (.+) FROM drones WHERE drone_id").
		WithArgs("D-01").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO drones").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost, "/api/drones/register",
		strings.NewReader(`{"drone_id":"D-01","name":"Falcon"}`))
	rec := httptest.NewRecorder()

	handlers.RegisterDroneHandler(rec, req)

	// The registration stands; the router skips missing queues until retried
	require.Equal(t, http.StatusCreated, rec.Code)
}
