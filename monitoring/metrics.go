package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	watcherTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_ticks_total",
			Help: "Total watcher sweeps by loop and outcome",
		},
		[]string{"loop", "status"},
	)

	watcherTickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watcher_tick_duration_seconds",
			Help:    "Duration of a full tenant sweep",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"loop"},
	)

	connectedTenants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watcher_connected_tenants",
			Help: "Tenants with a live Spotify connection in the last sweep",
		},
	)

	watcherRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watcher_running",
			Help: "1 while the playback watcher has a timer armed",
		},
	)

	tenantErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_tenant_errors_total",
			Help: "Per-tenant errors contained by the watcher",
		},
		[]string{"stage"},
	)

	fanoutEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_events_total",
			Help: "Events published to tenant channels",
		},
		[]string{"event_type", "status"},
	)

	fanoutSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_suppressed_total",
			Help: "Updates skipped because nothing meaningful changed",
		},
		[]string{"event_type"},
	)

	requestOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "request_operations_total",
			Help: "Song request state changes",
		},
		[]string{"operation", "status"},
	)
)

// Monitor records watcher and request metrics. A nil *Monitor is a no-op so
// components can be built without metrics in tests.
type Monitor struct{}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) TrackTick(loop, status string, duration time.Duration) {
	if m == nil {
		return
	}
	watcherTicks.WithLabelValues(loop, status).Inc()
	watcherTickDuration.WithLabelValues(loop).Observe(duration.Seconds())
}

func (m *Monitor) SetConnectedTenants(n int) {
	if m == nil {
		return
	}
	connectedTenants.Set(float64(n))
}

func (m *Monitor) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		watcherRunning.Set(1)
		return
	}
	watcherRunning.Set(0)
}

func (m *Monitor) TrackTenantError(stage string) {
	if m == nil {
		return
	}
	tenantErrors.WithLabelValues(stage).Inc()
}

func (m *Monitor) TrackFanout(eventType, status string) {
	if m == nil {
		return
	}
	fanoutEvents.WithLabelValues(eventType, status).Inc()
}

func (m *Monitor) TrackSuppressed(eventType string) {
	if m == nil {
		return
	}
	fanoutSuppressed.WithLabelValues(eventType).Inc()
}

func (m *Monitor) TrackRequestOperation(operation, status string) {
	if m == nil {
		return
	}
	requestOperations.WithLabelValues(operation, status).Inc()
}
