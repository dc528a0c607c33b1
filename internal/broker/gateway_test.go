package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alierenkayhan/yangin-risk-drone/internal/models"
)

type recordingAcker struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *recordingAcker) Ack(uint64, bool) error { a.acked = true; return nil }
func (a *recordingAcker) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}
func (a *recordingAcker) Reject(_ uint64, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func TestDeliveryAck(t *testing.T) {
	acker := &recordingAcker{}
	d := Delivery{Tag: 7, Acker: acker}

	require.NoError(t, d.Ack())
	assert.True(t, acker.acked)
	assert.False(t, acker.nacked)
}

func TestDeliveryDiscardNeverRequeues(t *testing.T) {
	acker := &recordingAcker{}
	d := Delivery{Tag: 7, Acker: acker}

	require.NoError(t, d.Discard())
	assert.True(t, acker.nacked)
	assert.False(t, acker.requeue)
}

func TestDeliveryNilAckerIsSafe(t *testing.T) {
	d := Delivery{}
	assert.NoError(t, d.Ack())
	assert.NoError(t, d.Discard())
}

func TestGUIPersistence(t *testing.T) {
	// Video frames are transient: a stalled consumer must not pile up
	// stale frames on the broker. Everything else survives a restart.
	assert.False(t, GUIPersistent(models.GUIVideo))

	assert.True(t, GUIPersistent(models.GUITelemetry))
	assert.True(t, GUIPersistent(models.GUIDetection))
	assert.True(t, GUIPersistent(models.GUIAlerts))
	assert.True(t, GUIPersistent(models.GUIStatus))
}
