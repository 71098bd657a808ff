package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dj-requests/internal/status"
	"dj-requests/models"
	"dj-requests/monitoring"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"
)

type WatcherConfig struct {
	// Concurrency bounds how many tenants are checked at once within a sweep.
	Concurrency int
	// FetchTimeout caps each Spotify call; it is never longer than the tick
	// interval.
	FetchTimeout  time.Duration
	StatsInterval time.Duration
}

type WatcherStatus struct {
	Running         bool       `json:"running"`
	IntervalMs      int64      `json:"interval_ms"`
	QueueIntervalMs int64      `json:"queue_interval_ms"`
	StatsIntervalMs int64      `json:"stats_interval_ms"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	LastTickAt      *time.Time `json:"last_tick_at,omitempty"`
	Tenants         int        `json:"tenants"`
}

// sweepSettings are read once per sweep so a concurrent restart cannot change
// them halfway through.
type sweepSettings struct {
	queueInterval time.Duration
	fetchTimeout  time.Duration
}

// tenantSnapshot is the last known truth for one tenant. It is replaced as a
// whole, never patched.
type tenantSnapshot struct {
	playback       *models.PlaybackState
	queue          []models.Track
	queueFetchedAt time.Time
	// lastTrackID survives idle polls, so a track resuming after the device
	// went quiet is not fulfilled a second time.
	lastTrackID string
}

// WatcherService polls every connected tenant's player, reconciles requests
// against what is playing and fans out updates. One instance per process.
type WatcherService struct {
	connections ConnectionChecker
	playback    PlaybackClient
	reconciler  *RequestReconciler
	stats       *StatsAggregator
	publisher   Publisher
	monitor     *monitoring.Monitor
	clock       clock.Clock
	cfg         WatcherConfig

	mu            sync.Mutex
	cancel        context.CancelFunc
	interval      time.Duration
	queueInterval time.Duration
	startedAt     time.Time
	lastTickAt    time.Time
	loops         sync.WaitGroup

	// Held for a whole sweep. A sweep left running by a restart finishes
	// before the new loop's first sweep reads the snapshots.
	sweepMu sync.Mutex
	statsMu sync.Mutex

	snapMu    sync.Mutex
	snapshots map[string]*tenantSnapshot
}

func NewWatcherService(
	connections ConnectionChecker,
	playback PlaybackClient,
	reconciler *RequestReconciler,
	stats *StatsAggregator,
	publisher Publisher,
	monitor *monitoring.Monitor,
	clk clock.Clock,
	cfg WatcherConfig,
) *WatcherService {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &WatcherService{
		connections: connections,
		playback:    playback,
		reconciler:  reconciler,
		stats:       stats,
		publisher:   publisher,
		monitor:     monitor,
		clock:       clk,
		cfg:         cfg,
		snapshots:   make(map[string]*tenantSnapshot),
	}
}

// Start arms the watcher. A running watcher is stopped first, so there is
// never more than one timer. The first sweep runs immediately.
func (w *WatcherService) Start(interval, queueInterval time.Duration) error {
	if interval <= 0 {
		return status.ErrInvalidInterval
	}
	if queueInterval <= 0 {
		queueInterval = interval
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopLocked() {
		slog.Info("Restarting playback watcher")
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.interval = interval
	w.queueInterval = queueInterval
	w.startedAt = w.clock.Now()

	w.loops.Add(1)
	go w.runLoop(ctx, "playback", interval, w.checkAll)

	if w.stats != nil && w.cfg.StatsInterval > 0 {
		w.loops.Add(1)
		go w.runLoop(ctx, "stats", w.cfg.StatsInterval, w.aggregateStats)
	}

	w.monitor.SetRunning(true)
	slog.Info("Playback watcher started",
		"interval", interval,
		"queueInterval", queueInterval,
		"statsInterval", w.cfg.StatsInterval,
	)
	return nil
}

// Stop disarms the timers. A sweep already in flight is left to finish.
// Calling Stop on a stopped watcher does nothing.
func (w *WatcherService) Stop() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	stopped := w.stopLocked()
	if stopped {
		slog.Info("Playback watcher stopped")
	}
	return stopped
}

func (w *WatcherService) stopLocked() bool {
	if w.cancel == nil {
		return false
	}
	w.cancel()
	w.cancel = nil
	w.monitor.SetRunning(false)
	return true
}

func (w *WatcherService) Status() WatcherStatus {
	w.mu.Lock()
	st := WatcherStatus{
		Running:         w.cancel != nil,
		IntervalMs:      w.interval.Milliseconds(),
		QueueIntervalMs: w.queueInterval.Milliseconds(),
		StatsIntervalMs: w.cfg.StatsInterval.Milliseconds(),
	}
	if !w.startedAt.IsZero() {
		t := w.startedAt
		st.StartedAt = &t
	}
	if !w.lastTickAt.IsZero() {
		t := w.lastTickAt
		st.LastTickAt = &t
	}
	w.mu.Unlock()

	w.snapMu.Lock()
	st.Tenants = len(w.snapshots)
	w.snapMu.Unlock()

	return st
}

// Shutdown stops the watcher and waits for in-flight sweeps, up to timeout.
func (w *WatcherService) Shutdown(timeout time.Duration) {
	w.Stop()

	done := make(chan struct{})
	go func() {
		w.loops.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Playback watcher loops finished")
	case <-time.After(timeout):
		slog.Warn("Timeout waiting for playback watcher loops", "timeout", timeout)
	}
}

// runLoop sweeps, then waits interval before the next sweep. Sweeps run
// detached from ctx: cancelling ctx stops the next sweep, not the current one.
func (w *WatcherService) runLoop(ctx context.Context, name string, interval time.Duration, sweep func(context.Context) error) {
	defer w.loops.Done()

	for {
		started := w.clock.Now()
		err := sweep(context.WithoutCancel(ctx))
		if err != nil {
			w.monitor.TrackTick(name, "error", w.clock.Since(started))
			slog.Error("Watcher sweep failed", "loop", name, "error", err)
		} else {
			w.monitor.TrackTick(name, "success", w.clock.Since(started))
		}

		if name == "playback" {
			w.mu.Lock()
			w.lastTickAt = started
			w.mu.Unlock()
		}

		if ctx.Err() != nil {
			return
		}

		timer := w.clock.Timer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (w *WatcherService) checkAll(ctx context.Context) error {
	w.sweepMu.Lock()
	defer w.sweepMu.Unlock()

	tenants, err := w.connections.ConnectedTenants(ctx)
	if err != nil {
		return fmt.Errorf("list connected tenants: %w", err)
	}
	w.monitor.SetConnectedTenants(len(tenants))

	w.mu.Lock()
	settings := sweepSettings{queueInterval: w.queueInterval, fetchTimeout: w.cfg.FetchTimeout}
	if w.interval > 0 && (settings.fetchTimeout <= 0 || settings.fetchTimeout > w.interval) {
		settings.fetchTimeout = w.interval
	}
	w.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(w.cfg.Concurrency)
	for _, tenantID := range tenants {
		g.Go(func() error {
			w.checkTenant(ctx, tenantID, settings)
			return nil
		})
	}
	_ = g.Wait()

	w.pruneSnapshots(tenants)
	return nil
}

func (w *WatcherService) aggregateStats(ctx context.Context) error {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()

	tenants, err := w.connections.ConnectedTenants(ctx)
	if err != nil {
		return fmt.Errorf("list connected tenants: %w", err)
	}
	w.stats.AggregateAll(ctx, tenants)
	return nil
}

// checkTenant runs one tenant's step of a sweep: fetch, decide, reconcile,
// emit, then replace the snapshot. Nothing here escapes to other tenants.
func (w *WatcherService) checkTenant(ctx context.Context, tenantID string, settings sweepSettings) {
	defer func() {
		if r := recover(); r != nil {
			w.monitor.TrackTenantError("panic")
			slog.Error("Recovered from panic while checking tenant", "tenantID", tenantID, "panic", r)
		}
	}()

	prev := w.snapshot(tenantID)

	current, err := w.fetchPlayback(ctx, tenantID, settings.fetchTimeout)
	if err != nil {
		w.monitor.TrackTenantError("playback")
		slog.Warn("Failed to fetch playback, skipping tenant this tick", "tenantID", tenantID, "error", err)
		return
	}

	next := &tenantSnapshot{playback: current}
	var prevPlayback *models.PlaybackState
	if prev != nil {
		prevPlayback = prev.playback
		next.queue = prev.queue
		next.queueFetchedAt = prev.queueFetchedAt
		next.lastTrackID = prev.lastTrackID
	}

	trackChanged := TrackChanged(current, prevPlayback)
	now := w.clock.Now()

	switch {
	case current == nil:
		next.queue = nil
		next.queueFetchedAt = time.Time{}
	case trackChanged || next.queueFetchedAt.IsZero() || now.Sub(next.queueFetchedAt) >= settings.queueInterval:
		queue, err := w.fetchQueue(ctx, tenantID, settings.fetchTimeout)
		if err != nil {
			// Keep the old queue and retry on the next tick.
			w.monitor.TrackTenantError("queue")
			slog.Warn("Failed to fetch queue", "tenantID", tenantID, "error", err)
			next.queueFetchedAt = time.Time{}
		} else {
			next.queue = queue
			next.queueFetchedAt = now
		}
	}

	if current != nil && current.Item != nil {
		if current.Item.ID != next.lastTrackID {
			if _, err := w.reconciler.FindFulfillableRequest(ctx, tenantID, current.Item.URI); err != nil {
				w.monitor.TrackTenantError("reconcile")
				slog.Error("Failed to auto-fulfill request", "tenantID", tenantID, "trackURI", current.Item.URI, "error", err)
			}
		}
		next.lastTrackID = current.Item.ID
	}

	var prevQueue []models.Track
	if prev != nil {
		prevQueue = prev.queue
	}

	if HasMeaningfulChange(current, prevPlayback) || QueueChanged(next.queue, prevQueue) {
		w.emitPlayback(ctx, tenantID, current, next.queue, now)
	} else {
		w.monitor.TrackSuppressed(EventPlaybackUpdate)
	}

	w.storeSnapshot(tenantID, next)
}

func (w *WatcherService) emitPlayback(ctx context.Context, tenantID string, current *models.PlaybackState, queue []models.Track, now time.Time) {
	enhanced, err := w.reconciler.EnrichQueueWithRequesters(ctx, tenantID, queue)
	if err != nil {
		// The queue still goes out, only without requester names.
		w.monitor.TrackTenantError("enrich")
		slog.Warn("Failed to enrich queue with requesters", "tenantID", tenantID, "error", err)
	}

	update := models.PlaybackUpdate{
		Queue:     enhanced,
		Timestamp: now,
	}
	if current != nil {
		update.CurrentTrack = current.Item
		update.IsPlaying = current.IsPlaying
		update.ProgressMs = current.ProgressMs
		update.Device = current.Device
	}

	if err := w.publisher.Publish(ctx, TenantChannel(tenantID), EventPlaybackUpdate, update); err != nil {
		w.monitor.TrackTenantError("publish")
		slog.Error("Failed to publish playback update", "tenantID", tenantID, "error", err)
	}
}

func (w *WatcherService) fetchPlayback(ctx context.Context, tenantID string, timeout time.Duration) (*models.PlaybackState, error) {
	fetchCtx, cancel := fetchContext(ctx, timeout)
	defer cancel()
	return w.playback.CurrentPlayback(fetchCtx, tenantID)
}

func (w *WatcherService) fetchQueue(ctx context.Context, tenantID string, timeout time.Duration) ([]models.Track, error) {
	fetchCtx, cancel := fetchContext(ctx, timeout)
	defer cancel()
	return w.playback.Queue(fetchCtx, tenantID)
}

// fetchContext bounds a single Spotify call so a slow tenant cannot stretch
// a sweep past the tick interval.
func fetchContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (w *WatcherService) snapshot(tenantID string) *tenantSnapshot {
	w.snapMu.Lock()
	defer w.snapMu.Unlock()
	return w.snapshots[tenantID]
}

func (w *WatcherService) storeSnapshot(tenantID string, snap *tenantSnapshot) {
	w.snapMu.Lock()
	defer w.snapMu.Unlock()
	w.snapshots[tenantID] = snap
}

// pruneSnapshots forgets tenants that dropped their connection. If they come
// back, their first poll is treated as a change.
func (w *WatcherService) pruneSnapshots(tenants []string) {
	keep := make(map[string]struct{}, len(tenants))
	for _, id := range tenants {
		keep[id] = struct{}{}
	}

	w.snapMu.Lock()
	defer w.snapMu.Unlock()
	for id := range w.snapshots {
		if _, ok := keep[id]; !ok {
			delete(w.snapshots, id)
		}
	}
}
