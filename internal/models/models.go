package models

import (
	"fmt"
	"time"
)

// DroneStatus is the last known drone state cached on the record.
type DroneStatus string

const (
	StatusIdle          DroneStatus = "idle"
	StatusPatrolling    DroneStatus = "patrolling"
	StatusReturning     DroneStatus = "returning"
	StatusOffline       DroneStatus = "offline"
	StatusHovering      DroneStatus = "hovering"
	StatusFollowingPath DroneStatus = "following_path"
	StatusScanning      DroneStatus = "scanning"
)

// LogType classifies LogEntry records.
type LogType string

const (
	LogInfo          LogType = "INFO"
	LogWarning       LogType = "WARNING"
	LogAlert         LogType = "ALERT"
	LogAction        LogType = "ACTION"
	LogFireDetected  LogType = "FIRE_DETECTED"
	LogSmokeDetected LogType = "SMOKE_DETECTED"
)

// Queue kinds bound per drone by the router.
type QueueKind string

const (
	QueueTelemetry  QueueKind = "telemetry"
	QueueVideo      QueueKind = "video"
	QueueAlerts     QueueKind = "alerts"
	QueueGUICommand QueueKind = "gui_commands"
)

// GUI message types published under the gui exchange.
const (
	GUITelemetry = "telemetry"
	GUIVideo     = "video"
	GUIDetection = "detection"
	GUIAlerts    = "alerts"
	GUIStatus    = "status"
)

// Drone is the registration record. Telemetry and position flow over the broker;
// only the last known state is cached here.
type Drone struct {
	DroneID string `json:"drone_id"`
	Name    string `json:"name"`
	Model   string `json:"model"`

	// Secret token that namespaces browser-facing queues, never shown to drones
	GUIToken string `json:"gui_token,omitempty"`

	TelemetryTopic string `json:"telemetry_topic"`
	CommandTopic   string `json:"command_topic"`
	VideoTopic     string `json:"video_topic"`
	AlertTopic     string `json:"alert_topic"`

	LastStatus DroneStatus `json:"last_status"`
	LastSeen   *time.Time  `json:"last_seen"`

	IsActive     bool      `json:"is_active"`
	RegisteredAt time.Time `json:"registered_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AssignTopics derives the four routing keys from the drone id.
// Pure and idempotent: drones and the router recompute the same names independently.
func (d *Drone) AssignTopics() {
	base := "drone." + d.DroneID
	d.TelemetryTopic = base + ".telemetry"
	d.CommandTopic = base + ".commands"
	d.VideoTopic = base + ".video"
	d.AlertTopic = base + ".alerts"
}

// IsOnline reports whether the drone is active and has been seen recently enough
// to not be marked offline.
func (d *Drone) IsOnline() bool {
	return d.IsActive && d.LastStatus != StatusOffline
}

// QueueName returns the backend-side queue bound for the given kind.
// GUI commands are keyed by the secret token, everything else by drone id.
func (d *Drone) QueueName(kind QueueKind) string {
	if kind == QueueGUICommand {
		return fmt.Sprintf("gui.%s.commands", d.GUIToken)
	}
	return fmt.Sprintf("%s.%s", kind, d.DroneID)
}

// GUIRoutingKey returns the routing key for a GUI-facing message type.
// Routing keys use the drone id; queues bound to them use the GUI token.
func GUIRoutingKey(droneID, messageType string) string {
	return fmt.Sprintf("gui.%s.%s", droneID, messageType)
}

// GUIQueueName returns the browser-facing queue for a message type.
func (d *Drone) GUIQueueName(messageType string) string {
	return fmt.Sprintf("gui.%s.%s", d.GUIToken, messageType)
}

// ScanSession is one bounded period of detection activity for one drone.
type ScanSession struct {
	SessionID string `json:"session_id"`
	DroneID   string `json:"drone_id"`

	IsActive  bool       `json:"is_active"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`

	TotalFramesProcessed int `json:"total_frames_processed"`
	FireDetections       int `json:"fire_detections"`
	SmokeDetections      int `json:"smoke_detections"`
}

// TotalDetections returns combined fire and smoke counts.
func (s *ScanSession) TotalDetections() int {
	return s.FireDetections + s.SmokeDetections
}

// Detection is one detected object on a frame.
type Detection struct {
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"` // [x1, y1, x2, y2]
}

// LogEntry is an append-only audit/detection record.
type LogEntry struct {
	ID      string  `json:"id"`
	Source  string  `json:"source"`
	Message string  `json:"message"`
	LogType LogType `json:"log_type"`

	DroneID string `json:"drone_id,omitempty"`

	// Detection-specific
	Confidence     *float64  `json:"confidence,omitempty"`
	DetectionClass string    `json:"detection_class,omitempty"`
	BBox           []float64 `json:"bbox,omitempty"`
	FramePath      string    `json:"frame_path,omitempty"`

	// Position at detection time
	PositionX *float64 `json:"position_x,omitempty"`
	PositionY *float64 `json:"position_y,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}

// IsDetection reports whether the entry was produced by the detection pipeline.
func (e *LogEntry) IsDetection() bool {
	return e.LogType == LogFireDetected || e.LogType == LogSmokeDetected
}
