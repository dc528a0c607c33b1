package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignTopics(t *testing.T) {
	d := Drone{DroneID: "D-01"}
	d.AssignTopics()

	assert.Equal(t, "drone.D-01.telemetry", d.TelemetryTopic)
	assert.Equal(t, "drone.D-01.commands", d.CommandTopic)
	assert.Equal(t, "drone.D-01.video", d.VideoTopic)
	assert.Equal(t, "drone.D-01.alerts", d.AlertTopic)

	// Idempotent: recomputing yields the same names
	before := d
	d.AssignTopics()
	assert.Equal(t, before, d)
}

func TestQueueNames(t *testing.T) {
	d := Drone{DroneID: "D-01", GUIToken: "tok-1"}

	assert.Equal(t, "telemetry.D-01", d.QueueName(QueueTelemetry))
	assert.Equal(t, "video.D-01", d.QueueName(QueueVideo))
	assert.Equal(t, "alerts.D-01", d.QueueName(QueueAlerts))

	// GUI command queue is namespaced by the secret token, not the drone id
	assert.Equal(t, "gui.tok-1.commands", d.QueueName(QueueGUICommand))
}

func TestGUINaming(t *testing.T) {
	d := Drone{DroneID: "D-01", GUIToken: "tok-1"}

	// Routing keys carry the drone id, queues carry the token
	assert.Equal(t, "gui.D-01.video", GUIRoutingKey("D-01", GUIVideo))
	assert.Equal(t, "gui.tok-1.video", d.GUIQueueName(GUIVideo))
	assert.Equal(t, "gui.D-01.alerts", GUIRoutingKey("D-01", GUIAlerts))
	assert.Equal(t, "gui.tok-1.status", d.GUIQueueName(GUIStatus))
}

func TestIsOnline(t *testing.T) {
	d := Drone{IsActive: true, LastStatus: StatusPatrolling}
	assert.True(t, d.IsOnline())

	d.LastStatus = StatusOffline
	assert.False(t, d.IsOnline())

	d.LastStatus = StatusIdle
	d.IsActive = false
	assert.False(t, d.IsOnline())
}

func TestDecodeTelemetry(t *testing.T) {
	msg, err := DecodeTelemetry([]byte(`{"type":"TELEMETRY","drone_id":"D-01","data":{"battery":55.5,"status":"patrolling","position":{"lat":39.92,"lon":32.85}}}`))
	require.NoError(t, err)
	assert.Equal(t, "D-01", msg.DroneID)
	assert.InDelta(t, 55.5, msg.Data.Battery, 1e-9)
	assert.Equal(t, "patrolling", msg.Data.Status)
	assert.InDelta(t, 39.92, msg.Data.Position["lat"], 1e-9)

	_, err = DecodeTelemetry([]byte(`{bad`))
	require.Error(t, err)
}

func TestDecodeVideoFrame(t *testing.T) {
	msg, err := DecodeVideoFrame([]byte(`{"type":"VIDEO_FRAME","drone_id":"D-01","frame_number":12,"data":"ZnJhbWU="}`))
	require.NoError(t, err)
	assert.Equal(t, 12, msg.FrameNumber)
	assert.Equal(t, "ZnJhbWU=", msg.Data)

	_, err = DecodeVideoFrame([]byte(`not json`))
	require.Error(t, err)
}

func TestDecodeCommand(t *testing.T) {
	msg, err := DecodeCommand([]byte(`{"type":"COMMAND","drone_id":"D-01","command":"START_SCAN","params":{"area":"north"}}`))
	require.NoError(t, err)
	assert.Equal(t, CommandStartScan, msg.Command)
	assert.Equal(t, "north", msg.Params["area"])

	// A command without a name cannot be relayed
	_, err = DecodeCommand([]byte(`{"type":"COMMAND","drone_id":"D-01"}`))
	require.Error(t, err)

	_, err = DecodeCommand([]byte(`{{`))
	require.Error(t, err)
}

func TestScanSessionTotals(t *testing.T) {
	s := ScanSession{FireDetections: 3, SmokeDetections: 2}
	assert.Equal(t, 5, s.TotalDetections())
}

func TestNewEnvelope(t *testing.T) {
	env := NewEnvelope(TypeAlert, "D-01")
	assert.Equal(t, TypeAlert, env.Type)
	assert.Equal(t, "D-01", env.DroneID)
	assert.NotEmpty(t, env.Timestamp)
}
