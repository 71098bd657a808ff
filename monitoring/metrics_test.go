package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMonitor_Counters(t *testing.T) {
	m := NewMonitor()

	before := testutil.ToFloat64(fanoutEvents.WithLabelValues("playback-update", "success"))
	m.TrackFanout("playback-update", "success")
	m.TrackFanout("playback-update", "success")
	assert.Equal(t, before+2, testutil.ToFloat64(fanoutEvents.WithLabelValues("playback-update", "success")))

	m.SetRunning(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(watcherRunning))
	m.SetRunning(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(watcherRunning))

	m.SetConnectedTenants(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(connectedTenants))
}

func TestMonitor_NilIsNoop(t *testing.T) {
	var m *Monitor

	assert.NotPanics(t, func() {
		m.TrackTick("playback", "success", time.Second)
		m.SetConnectedTenants(1)
		m.SetRunning(true)
		m.TrackTenantError("playback")
		m.TrackFanout("stats-update", "error")
		m.TrackSuppressed("stats-update")
		m.TrackRequestOperation("submit", "pending")
	})
}
