package detection

import (
	"context"
	"log"
)

// Dispatcher gates which drones' frames are forwarded to the pipeline.
// It holds no locks: all calls happen on the router's single consume loop,
// which serializes frame handling per process. That reliance is part of the
// router's concurrency contract, not an omission.
type Dispatcher struct {
	pipeline Pipeline

	// droneID → session id of the active scan
	active map[string]string

	framesProcessed int64
}

// NewDispatcher creates a Dispatcher sharing the given pipeline instance.
func NewDispatcher(pipeline Pipeline) *Dispatcher {
	return &Dispatcher{
		pipeline: pipeline,
		active:   make(map[string]string),
	}
}

// StartDetection marks the drone's frames for processing under a session.
// One entry per drone: a superseding start simply replaces the session id.
func (d *Dispatcher) StartDetection(droneID, sessionID string) {
	d.active[droneID] = sessionID
	log.Printf("Dispatcher: detection active for %s, session=%s", droneID, sessionID)
}

// StopDetection removes the drone's record.
func (d *Dispatcher) StopDetection(droneID string) {
	delete(d.active, droneID)
	log.Printf("Dispatcher: detection stopped for %s", droneID)
}

// IsActive reports whether frames for the drone are being processed.
func (d *Dispatcher) IsActive(droneID string) bool {
	_, ok := d.active[droneID]
	return ok
}

// SessionFor returns the session id the drone's frames are tagged with.
func (d *Dispatcher) SessionFor(droneID string) string {
	return d.active[droneID]
}

// ProcessFrame runs one frame through the pipeline. Returns (nil, nil) when
// detection is not active for the drone; the caller forwards the raw frame.
func (d *Dispatcher) ProcessFrame(ctx context.Context, droneID, frameData string) (*Result, error) {
	if _, ok := d.active[droneID]; !ok {
		return nil, nil
	}

	result, err := d.pipeline.ProcessFrame(ctx, frameData)
	if err != nil {
		return nil, err
	}

	d.framesProcessed++
	return result, nil
}

// FramesProcessed returns the number of frames this dispatcher has run
// through the pipeline since startup.
func (d *Dispatcher) FramesProcessed() int64 {
	return d.framesProcessed
}
