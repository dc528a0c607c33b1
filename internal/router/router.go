package router

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/lo"

	"github.com/Alierenkayhan/yangin-risk-drone/internal/broker"
	"github.com/Alierenkayhan/yangin-risk-drone/internal/database"
	"github.com/Alierenkayhan/yangin-risk-drone/internal/detection"
	"github.com/Alierenkayhan/yangin-risk-drone/internal/models"
)

// Gateway is the broker surface the router drives.
type Gateway interface {
	Connect() error
	BindDroneConsumer(drone models.Drone, kind models.QueueKind) error
	Deliveries() <-chan broker.Delivery
	ConnectionErrors() <-chan *amqp.Error
	PublishGUI(droneID, messageType string, payload any)
	SendCommand(drone models.Drone, cmd models.CommandMessage) error
	Close()
}

// SessionRegistry owns scan session state.
type SessionRegistry interface {
	Start(ctx context.Context, droneID string) (*models.ScanSession, error)
	Stop(ctx context.Context, session *models.ScanSession) (*models.ScanSession, error)
	RecordFrame(ctx context.Context, session *models.ScanSession, hasFire, hasSmoke bool) error
	ActiveSessionFor(ctx context.Context, droneID string) (*models.ScanSession, error)
}

// Dispatcher gates frame forwarding to the detection pipeline.
type Dispatcher interface {
	StartDetection(droneID, sessionID string)
	StopDetection(droneID string)
	ProcessFrame(ctx context.Context, droneID, frameData string) (*detection.Result, error)
}

// Store is the drone cache and audit log the router mutates as a side effect
// of message processing.
type Store interface {
	ListActiveDrones(ctx context.Context) ([]models.Drone, error)
	UpdateDroneStatus(ctx context.Context, update database.StatusUpdate) error
	InsertLogEntry(ctx context.Context, entry *models.LogEntry) error
}

// SnapshotStore persists the frame a detection fired on. Optional.
type SnapshotStore interface {
	SaveFrameSnapshot(ctx context.Context, droneID, sessionID string, frameNumber int, frameData string) (string, error)
}

// Router binds every active drone's queues to one consuming connection and
// classifies each message. All handlers run serially on the consume loop, so
// no per-drone locking exists anywhere downstream.
type Router struct {
	gateway    Gateway
	registry   SessionRegistry
	dispatcher Dispatcher
	store      Store
	snapshots  SnapshotStore

	// session ids that already emitted a PIPELINE_DEGRADED event
	degraded map[string]bool

	stop     chan struct{}
	stopOnce sync.Once
}

// New wires the router to its collaborators. snapshots may be nil.
func New(gateway Gateway, registry SessionRegistry, dispatcher Dispatcher, store Store, snapshots SnapshotStore) *Router {
	return &Router{
		gateway:    gateway,
		registry:   registry,
		dispatcher: dispatcher,
		store:      store,
		snapshots:  snapshots,
		degraded:   make(map[string]bool),
		stop:       make(chan struct{}),
	}
}

// Run connects, binds consumers for the active drone set (optionally filtered
// to one drone id for horizontal sharding) and blocks processing deliveries
// until Stop is called, ctx is cancelled or a connection dies.
func (r *Router) Run(ctx context.Context, droneIDFilter string) error {
	if err := r.gateway.Connect(); err != nil {
		return fmt.Errorf("router startup failed: %w", err)
	}
	defer r.gateway.Close()

	if err := r.Setup(ctx, droneIDFilter); err != nil {
		return fmt.Errorf("router setup failed: %w", err)
	}

	log.Println("Router: waiting for messages")

	for {
		select {
		case <-ctx.Done():
			log.Println("Router: context cancelled, stopping")
			return nil
		case <-r.stop:
			log.Println("Router: stop requested")
			return nil
		case amqpErr := <-r.gateway.ConnectionErrors():
			return fmt.Errorf("broker connection lost: %v", amqpErr)
		case d := <-r.gateway.Deliveries():
			r.process(ctx, d)
		}
	}
}

// Stop requests a graceful shutdown. Safe to call from a signal handler
// while Run is blocked; the in-flight handler finishes first.
func (r *Router) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
}

// Setup binds the four queues of every drone in the working set.
// A missing queue skips that bind, never the whole setup.
func (r *Router) Setup(ctx context.Context, droneIDFilter string) error {
	drones, err := r.store.ListActiveDrones(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active drones: %w", err)
	}

	if droneIDFilter != "" {
		drones = lo.Filter(drones, func(d models.Drone, _ int) bool {
			return d.DroneID == droneIDFilter
		})
	}

	kinds := []models.QueueKind{
		models.QueueTelemetry,
		models.QueueVideo,
		models.QueueAlerts,
		models.QueueGUICommand,
	}

	for _, drone := range drones {
		for _, kind := range kinds {
			if err := r.gateway.BindDroneConsumer(drone, kind); err != nil {
				return fmt.Errorf("failed to bind %s/%s: %w", drone.DroneID, kind, err)
			}
		}
		log.Printf("Router: drone bound: %s (%s)", drone.Name, drone.DroneID)
	}

	log.Printf("Router: consuming for %d drones: %v", len(drones),
		lo.Map(drones, func(d models.Drone, _ int) string { return d.DroneID }))
	return nil
}

// process runs one delivery through its handler and settles the ack.
// Handler errors discard the message without requeue: redelivering a
// malformed or poison message would just repeat the failure.
func (r *Router) process(ctx context.Context, d broker.Delivery) {
	var err error

	switch d.Kind {
	case models.QueueTelemetry:
		err = r.handleTelemetry(ctx, d)
	case models.QueueVideo:
		err = r.handleVideo(ctx, d)
	case models.QueueAlerts:
		err = r.handleAlert(ctx, d)
	case models.QueueGUICommand:
		err = r.handleGUICommand(ctx, d)
	default:
		err = fmt.Errorf("unknown queue kind %q", d.Kind)
	}

	if err != nil {
		log.Printf("Router: %s error [%s]: %v", d.Kind, d.Drone.DroneID, err)
		if nackErr := d.Discard(); nackErr != nil {
			log.Printf("Router: nack failed [%s]: %v", d.Drone.DroneID, nackErr)
		}
		return
	}

	if ackErr := d.Ack(); ackErr != nil {
		log.Printf("Router: ack failed [%s]: %v", d.Drone.DroneID, ackErr)
	}
}

// handleTelemetry updates the drone's cached state and republishes the
// report to the GUI telemetry topic.
func (r *Router) handleTelemetry(ctx context.Context, d broker.Delivery) error {
	msg, err := models.DecodeTelemetry(d.Body)
	if err != nil {
		return err
	}

	status := d.Drone.LastStatus
	if msg.Data.Status != "" {
		status = models.DroneStatus(msg.Data.Status)
	}

	if err := r.store.UpdateDroneStatus(ctx, database.StatusUpdate{
		DroneID: d.Drone.DroneID,
		Status:  status,
		SeenAt:  time.Now(),
	}); err != nil {
		return fmt.Errorf("failed to update drone status: %w", err)
	}

	r.gateway.PublishGUI(d.Drone.DroneID, models.GUITelemetry, models.TelemetryMessage{
		Envelope: r.envelope(models.TypeTelemetry, d.Drone.DroneID, msg.Timestamp),
		Data:     msg.Data,
	})

	return nil
}

// handleVideo routes one frame: raw passthrough when no scan is active,
// through the detection pipeline when one is.
func (r *Router) handleVideo(ctx context.Context, d broker.Delivery) error {
	msg, err := models.DecodeVideoFrame(d.Body)
	if err != nil {
		return err
	}

	// Nothing to do for an empty frame
	if msg.Data == "" {
		return nil
	}

	session, err := r.registry.ActiveSessionFor(ctx, d.Drone.DroneID)
	if err != nil {
		return fmt.Errorf("failed to look up active session: %w", err)
	}

	if session == nil {
		r.publishFrame(d.Drone.DroneID, msg, msg.Data, false)
		return nil
	}

	result, pipeErr := r.dispatcher.ProcessFrame(ctx, d.Drone.DroneID, msg.Data)
	if pipeErr != nil || result == nil {
		// The GUI keeps showing live video through a pipeline outage,
		// with an explicit degraded signal the first time it happens.
		if pipeErr != nil {
			log.Printf("Router: pipeline error [%s]: %v", d.Drone.DroneID, pipeErr)
		}
		r.signalDegraded(d.Drone.DroneID, session.SessionID)
		r.publishFrame(d.Drone.DroneID, msg, msg.Data, true)
		return nil
	}

	delete(r.degraded, session.SessionID)

	guiFrame := result.AnnotatedFrame
	if guiFrame == "" {
		guiFrame = msg.Data
	}
	r.publishFrame(d.Drone.DroneID, msg, guiFrame, true)

	if len(result.Detections) > 0 {
		r.gateway.PublishGUI(d.Drone.DroneID, models.GUIDetection, models.GUIDetectionEvent{
			Envelope:    r.envelope(models.TypeDetection, d.Drone.DroneID, msg.Timestamp),
			FrameNumber: msg.FrameNumber,
			Detections:  result.Detections,
			HasFire:     result.HasFire,
			HasSmoke:    result.HasSmoke,
		})
	}

	if result.HasFire || result.HasSmoke {
		if err := r.logDetections(ctx, d.Drone, session, msg, result); err != nil {
			return err
		}
	}

	if err := r.registry.RecordFrame(ctx, session, result.HasFire, result.HasSmoke); err != nil {
		return fmt.Errorf("failed to record frame: %w", err)
	}

	return nil
}

// logDetections writes the durable record and fires the live alert for each
// fire/smoke detection. The LogEntry is the system of record; the alert
// event is the notification path.
func (r *Router) logDetections(ctx context.Context, drone models.Drone, session *models.ScanSession, msg *models.VideoFrameMessage, result *detection.Result) error {
	qualifying := lo.Filter(result.Detections, func(det models.Detection, _ int) bool {
		return det.Class == "fire" || det.Class == "smoke"
	})

	framePath := ""
	if r.snapshots != nil && len(qualifying) > 0 {
		snapshot := result.AnnotatedFrame
		if snapshot == "" {
			snapshot = msg.Data
		}
		path, err := r.snapshots.SaveFrameSnapshot(ctx, drone.DroneID, session.SessionID, msg.FrameNumber, snapshot)
		if err != nil {
			// Snapshot loss is acceptable; the log entry still lands
			log.Printf("Router: snapshot upload failed [%s]: %v", drone.DroneID, err)
		} else {
			framePath = path
		}
	}

	for _, det := range qualifying {
		logType := models.LogFireDetected
		if det.Class == "smoke" {
			logType = models.LogSmokeDetected
		}

		confidence := det.Confidence
		entry := &models.LogEntry{
			Source:         drone.Name,
			Message:        fmt.Sprintf("%s detected, confidence %.2f", det.Class, det.Confidence),
			LogType:        logType,
			DroneID:        drone.DroneID,
			Confidence:     &confidence,
			DetectionClass: det.Class,
			BBox:           det.BBox,
			FramePath:      framePath,
		}
		if err := r.store.InsertLogEntry(ctx, entry); err != nil {
			return fmt.Errorf("failed to log detection: %w", err)
		}

		r.gateway.PublishGUI(drone.DroneID, models.GUIAlerts, models.GUIDetectionAlert{
			Envelope:       r.envelope(models.TypeDetectionAlert, drone.DroneID, ""),
			DetectionClass: det.Class,
			Confidence:     det.Confidence,
			BBox:           det.BBox,
			LogID:          entry.ID,
		})
	}

	return nil
}

// handleAlert records a drone alert and republishes it to the GUI.
func (r *Router) handleAlert(ctx context.Context, d broker.Delivery) error {
	msg, err := models.DecodeAlert(d.Body)
	if err != nil {
		return err
	}

	message := msg.Message
	if message == "" {
		message = "Alert received"
	}

	if err := r.store.InsertLogEntry(ctx, &models.LogEntry{
		Source:  d.Drone.Name,
		Message: message,
		LogType: models.LogAlert,
		DroneID: d.Drone.DroneID,
	}); err != nil {
		return fmt.Errorf("failed to log alert: %w", err)
	}

	r.gateway.PublishGUI(d.Drone.DroneID, models.GUIAlerts, models.GUIAlertEvent{
		Envelope: r.envelope(models.TypeAlert, d.Drone.DroneID, msg.Timestamp),
		Message:  msg.Message,
		Data:     msg.Data,
	})

	return nil
}

// handleGUICommand relays browser commands to the drone. START_SCAN and
// STOP_SCAN are intercepted to coordinate session state; everything else
// passes through verbatim.
func (r *Router) handleGUICommand(ctx context.Context, d broker.Delivery) error {
	msg, err := models.DecodeCommand(d.Body)
	if err != nil {
		return err
	}

	log.Printf("Router: GUI command [%s]: %s %v", d.Drone.DroneID, msg.Command, msg.Params)

	switch msg.Command {
	case models.CommandStartScan:
		if err := r.startScan(ctx, d.Drone); err != nil {
			return err
		}
	case models.CommandStopScan:
		if err := r.stopScan(ctx, d.Drone); err != nil {
			return err
		}
	default:
		if err := r.gateway.SendCommand(d.Drone, models.CommandMessage{
			Envelope: r.envelope(msg.Command, d.Drone.DroneID, ""),
			Command:  msg.Command,
			Params:   msg.Params,
		}); err != nil {
			return fmt.Errorf("failed to relay command %s: %w", msg.Command, err)
		}
	}

	// Confirmation regardless of which branch fired
	r.gateway.PublishGUI(d.Drone.DroneID, models.GUIStatus, models.GUIStatusEvent{
		Envelope: r.envelope(models.TypeCommandAck, d.Drone.DroneID, ""),
		Command:  msg.Command,
		Status:   "sent",
	})

	return nil
}

func (r *Router) startScan(ctx context.Context, drone models.Drone) error {
	session, err := r.registry.Start(ctx, drone.DroneID)
	if err != nil {
		return fmt.Errorf("failed to start scan: %w", err)
	}

	r.dispatcher.StartDetection(drone.DroneID, session.SessionID)

	r.gateway.PublishGUI(drone.DroneID, models.GUIStatus, models.GUIStatusEvent{
		Envelope:  r.envelope(models.TypeScanStarted, drone.DroneID, ""),
		SessionID: session.SessionID,
	})

	if err := r.gateway.SendCommand(drone, models.CommandMessage{
		Envelope:  r.envelope(models.CommandStartScan, drone.DroneID, ""),
		Command:   models.CommandStartScan,
		SessionID: session.SessionID,
	}); err != nil {
		return fmt.Errorf("failed to send START_SCAN: %w", err)
	}

	return nil
}

func (r *Router) stopScan(ctx context.Context, drone models.Drone) error {
	session, err := r.registry.ActiveSessionFor(ctx, drone.DroneID)
	if err != nil {
		return fmt.Errorf("failed to look up active session: %w", err)
	}
	if session == nil {
		log.Printf("Router: STOP_SCAN with no active session [%s]", drone.DroneID)
		return nil
	}

	final, err := r.registry.Stop(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to stop scan: %w", err)
	}

	r.dispatcher.StopDetection(drone.DroneID)
	delete(r.degraded, session.SessionID)

	r.gateway.PublishGUI(drone.DroneID, models.GUIStatus, models.GUIStatusEvent{
		Envelope:  r.envelope(models.TypeScanStopped, drone.DroneID, ""),
		SessionID: final.SessionID,
		Stats: &models.ScanStats{
			TotalFrames:     final.TotalFramesProcessed,
			FireDetections:  final.FireDetections,
			SmokeDetections: final.SmokeDetections,
		},
	})

	if err := r.gateway.SendCommand(drone, models.CommandMessage{
		Envelope:  r.envelope(models.CommandStopScan, drone.DroneID, ""),
		Command:   models.CommandStopScan,
		SessionID: final.SessionID,
	}); err != nil {
		return fmt.Errorf("failed to send STOP_SCAN: %w", err)
	}

	return nil
}

// publishFrame sends a frame to the GUI video topic tagged with scan state.
func (r *Router) publishFrame(droneID string, msg *models.VideoFrameMessage, frameData string, scanning bool) {
	r.gateway.PublishGUI(droneID, models.GUIVideo, models.GUIVideoFrame{
		Envelope:    r.envelope(models.TypeVideoFrame, droneID, msg.Timestamp),
		FrameNumber: msg.FrameNumber,
		Data:        frameData,
		Scanning:    scanning,
	})
}

// signalDegraded emits one PIPELINE_DEGRADED status event per session so the
// GUI learns about an outage beyond the raw video picture.
func (r *Router) signalDegraded(droneID, sessionID string) {
	if r.degraded[sessionID] {
		return
	}
	r.degraded[sessionID] = true

	r.gateway.PublishGUI(droneID, models.GUIStatus, models.GUIStatusEvent{
		Envelope:  r.envelope(models.TypePipelineState, droneID, ""),
		SessionID: sessionID,
		Status:    "no_pipeline_result",
	})
}

// envelope stamps outbound payloads, reusing the source timestamp when the
// message carried one.
func (r *Router) envelope(msgType, droneID, timestamp string) models.Envelope {
	env := models.NewEnvelope(msgType, droneID)
	if timestamp != "" {
		env.Timestamp = timestamp
	}
	return env
}
