package models

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Message type discriminators used on the wire.
const (
	TypeTelemetry      = "TELEMETRY"
	TypeVideoFrame     = "VIDEO_FRAME"
	TypeAlert          = "ALERT"
	TypeDetection      = "DETECTION"
	TypeDetectionAlert = "DETECTION_ALERT"
	TypeCommandAck     = "COMMAND_ACK"
	TypeScanStarted    = "SCAN_STARTED"
	TypeScanStopped    = "SCAN_STOPPED"
	TypePipelineState  = "PIPELINE_DEGRADED"
)

// Intercepted GUI commands. Anything else is relayed to the drone verbatim.
const (
	CommandStartScan = "START_SCAN"
	CommandStopScan  = "STOP_SCAN"
)

// Envelope carries the fields every broker message has.
type Envelope struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	DroneID   string `json:"drone_id"`
}

// TelemetryMessage is a telemetry report from a drone.
type TelemetryMessage struct {
	Envelope
	Data TelemetryData `json:"data"`
}

// TelemetryData is the payload of one telemetry report.
type TelemetryData struct {
	Position      map[string]float64 `json:"position,omitempty"`
	Battery       float64            `json:"battery,omitempty"`
	Altitude      float64            `json:"altitude,omitempty"`
	Speed         float64            `json:"speed,omitempty"`
	Status        string             `json:"status,omitempty"`
	SignalQuality float64            `json:"signal_quality,omitempty"`
}

// VideoFrameMessage carries one base64 JPEG frame.
type VideoFrameMessage struct {
	Envelope
	FrameNumber int    `json:"frame_number"`
	Data        string `json:"data"`
}

// AlertMessage is a drone-originated alert.
type AlertMessage struct {
	Envelope
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// CommandMessage is a command from the GUI or to a drone.
type CommandMessage struct {
	Envelope
	Command   string         `json:"command"`
	Params    map[string]any `json:"params,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

// DecodeTelemetry parses and validates a telemetry message body.
func DecodeTelemetry(body []byte) (*TelemetryMessage, error) {
	var msg TelemetryMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("invalid telemetry message: %w", err)
	}
	return &msg, nil
}

// DecodeVideoFrame parses and validates a video frame message body.
func DecodeVideoFrame(body []byte) (*VideoFrameMessage, error) {
	var msg VideoFrameMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("invalid video message: %w", err)
	}
	return &msg, nil
}

// DecodeAlert parses and validates an alert message body.
func DecodeAlert(body []byte) (*AlertMessage, error) {
	var msg AlertMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("invalid alert message: %w", err)
	}
	return &msg, nil
}

// DecodeCommand parses and validates a GUI command message body.
// The command field is required; a command without a name cannot be relayed.
func DecodeCommand(body []byte) (*CommandMessage, error) {
	var msg CommandMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("invalid command message: %w", err)
	}
	if msg.Command == "" {
		return nil, fmt.Errorf("command message has no command field")
	}
	return &msg, nil
}

// GUIVideoFrame is the frame forwarded to browsers, tagged with scan state.
type GUIVideoFrame struct {
	Envelope
	FrameNumber int    `json:"frame_number"`
	Data        string `json:"data"`
	Scanning    bool   `json:"scanning"`
}

// GUIDetectionEvent carries the detections found on one frame.
type GUIDetectionEvent struct {
	Envelope
	FrameNumber int         `json:"frame_number"`
	Detections  []Detection `json:"detections"`
	HasFire     bool        `json:"has_fire"`
	HasSmoke    bool        `json:"has_smoke"`
}

// GUIDetectionAlert is the live-notification twin of a detection LogEntry.
type GUIDetectionAlert struct {
	Envelope
	DetectionClass string    `json:"detection_class"`
	Confidence     float64   `json:"confidence"`
	BBox           []float64 `json:"bbox,omitempty"`
	LogID          string    `json:"log_id"`
}

// GUIAlertEvent republishes a drone alert to browsers.
type GUIAlertEvent struct {
	Envelope
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// GUIStatusEvent announces router-side state changes (scan lifecycle, command acks).
type GUIStatusEvent struct {
	Envelope
	Command   string     `json:"command,omitempty"`
	Status    string     `json:"status,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	Stats     *ScanStats `json:"stats,omitempty"`
}

// ScanStats are final session counters attached to SCAN_STOPPED events.
type ScanStats struct {
	TotalFrames     int `json:"total_frames"`
	FireDetections  int `json:"fire_detections"`
	SmokeDetections int `json:"smoke_detections"`
}

// NewEnvelope stamps an envelope with the current time.
func NewEnvelope(msgType, droneID string) Envelope {
	return Envelope{
		Type:      msgType,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		DroneID:   droneID,
	}
}
