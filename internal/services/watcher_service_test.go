package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"dj-requests/internal/status"
	"dj-requests/models"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type watcherFixture struct {
	watcher     *WatcherService
	connections *fakeConnections
	playback    *fakePlayback
	store       *memoryRequestStore
	publisher   *MockPublisher
	clock       *clock.Mock
}

func setupTestWatcher(pub *MockPublisher, reqs ...models.Request) *watcherFixture {
	clk := clock.NewMock()
	clk.Set(partyStart)
	if pub == nil {
		pub = newMockPublisher()
	}

	f := &watcherFixture{
		connections: &fakeConnections{},
		playback:    newFakePlayback(),
		store:       newMemoryRequestStore(reqs...),
		publisher:   pub,
		clock:       clk,
	}
	f.watcher = NewWatcherService(
		f.connections,
		f.playback,
		NewRequestReconciler(f.store, clk, 0),
		nil,
		pub,
		nil,
		clk,
		WatcherConfig{Concurrency: 4},
	)
	f.watcher.queueInterval = 15 * time.Second
	return f
}

func (f *watcherFixture) tick(t *testing.T) {
	t.Helper()
	require.NoError(t, f.watcher.checkAll(context.Background()))
}

func (f *watcherFixture) playbackUpdates() []models.PlaybackUpdate {
	var out []models.PlaybackUpdate
	for _, p := range f.publisher.published(EventPlaybackUpdate) {
		out = append(out, p.(models.PlaybackUpdate))
	}
	return out
}

func TestWatcher_TrackChangeFetchesQueue(t *testing.T) {
	f := setupTestWatcher(nil)
	f.connections.set("dj-1")
	f.playback.setPlaying("dj-1", playing("a", 0))
	f.playback.setQueue("dj-1", []models.Track{track("b"), track("c")})

	f.tick(t)
	assert.Equal(t, 1, f.playback.queueFetches("dj-1"))

	f.clock.Add(2 * time.Second)
	f.playback.setPlaying("dj-1", playing("a", 2000))
	f.tick(t)
	assert.Equal(t, 1, f.playback.queueFetches("dj-1"), "queue reused inside its interval")

	f.clock.Add(2 * time.Second)
	f.playback.setPlaying("dj-1", playing("b", 0))
	f.tick(t)
	assert.Equal(t, 2, f.playback.queueFetches("dj-1"), "track change refreshes the queue")

	f.clock.Add(16 * time.Second)
	f.tick(t)
	assert.Equal(t, 3, f.playback.queueFetches("dj-1"), "queue interval elapsed")
}

func TestWatcher_EndToEndFulfilment(t *testing.T) {
	f := setupTestWatcher(nil,
		approvedRequest("first", "T", "A", "Alice", partyStart),
		approvedRequest("second", "T", "A", "Bob", partyStart.Add(5*time.Second)),
	)
	f.clock.Add(10 * time.Second)
	f.connections.set("T")
	f.playback.setPlaying("T", playing("A", 0))
	f.playback.setQueue("T", []models.Track{track("A")})

	f.tick(t)

	first := f.store.get("first")
	assert.Equal(t, models.RequestPlayed, first.Status)
	require.NotNil(t, first.PlayedAt)
	assert.True(t, partyStart.Add(10*time.Second).Equal(*first.PlayedAt))
	assert.Equal(t, models.RequestApproved, f.store.get("second").Status)

	updates := f.playbackUpdates()
	require.Len(t, updates, 1)
	require.NotNil(t, updates[0].CurrentTrack)
	assert.Equal(t, "A", updates[0].CurrentTrack.ID)
	assert.True(t, updates[0].IsPlaying)
	require.Len(t, updates[0].Queue, 1)
	require.NotNil(t, updates[0].Queue[0].RequestedBy)
	assert.Equal(t, "Bob", *updates[0].Queue[0].RequestedBy)
	f.publisher.AssertCalled(t, "Publish", mock.Anything, "party-T", EventPlaybackUpdate, mock.Anything)
}

func TestWatcher_SuppressesProgressOnlyChange(t *testing.T) {
	f := setupTestWatcher(nil)
	f.connections.set("dj-1")
	f.playback.setPlaying("dj-1", playing("a", 0))

	f.tick(t)
	for i := 1; i <= 3; i++ {
		f.clock.Add(2 * time.Second)
		f.playback.setPlaying("dj-1", playing("a", i*2000))
		f.tick(t)
	}

	assert.Len(t, f.playbackUpdates(), 1)

	paused := playing("a", 8000)
	paused.IsPlaying = false
	f.playback.setPlaying("dj-1", paused)
	f.tick(t)

	updates := f.playbackUpdates()
	require.Len(t, updates, 2)
	assert.False(t, updates[1].IsPlaying)
	assert.Equal(t, 8000, updates[1].ProgressMs)
}

func TestWatcher_QueueChangeAloneEmits(t *testing.T) {
	f := setupTestWatcher(nil)
	f.connections.set("dj-1")
	f.playback.setPlaying("dj-1", playing("a", 0))
	f.playback.setQueue("dj-1", []models.Track{track("b")})
	f.tick(t)

	f.playback.setQueue("dj-1", []models.Track{track("b"), track("c")})
	f.clock.Add(20 * time.Second)
	f.tick(t)

	updates := f.playbackUpdates()
	require.Len(t, updates, 2)
	assert.Len(t, updates[1].Queue, 2)
}

func TestWatcher_TenantFailuresAreIsolated(t *testing.T) {
	f := setupTestWatcher(nil)
	f.connections.set("broken", "panicky", "ok")
	f.playback.playbackErr["broken"] = errors.New("token expired")
	f.playback.panics["panicky"] = true
	f.playback.setPlaying("ok", playing("a", 0))

	f.tick(t)

	f.publisher.AssertNumberOfCalls(t, "Publish", 1)
	f.publisher.AssertCalled(t, "Publish", mock.Anything, "party-ok", EventPlaybackUpdate, mock.Anything)
	assert.Nil(t, f.watcher.snapshot("broken"))
	assert.Nil(t, f.watcher.snapshot("panicky"))
	assert.NotNil(t, f.watcher.snapshot("ok"))
}

func TestWatcher_ReconcileFailureStillEmits(t *testing.T) {
	f := setupTestWatcher(nil, approvedRequest("r1", "dj-1", "a", "Alice", partyStart))
	f.store.updateErr = errors.New("database is locked")
	f.connections.set("dj-1")
	f.playback.setPlaying("dj-1", playing("a", 0))

	f.tick(t)

	assert.Len(t, f.playbackUpdates(), 1)
	assert.Equal(t, models.RequestApproved, f.store.get("r1").Status)
}

func TestWatcher_QueueFailureKeepsPreviousQueue(t *testing.T) {
	f := setupTestWatcher(nil)
	f.connections.set("dj-1")
	f.playback.setPlaying("dj-1", playing("a", 0))
	f.playback.setQueue("dj-1", []models.Track{track("b")})
	f.tick(t)

	f.playback.queueErr["dj-1"] = errors.New("rate limited")
	f.playback.setPlaying("dj-1", playing("c", 0))
	f.tick(t)

	snap := f.watcher.snapshot("dj-1")
	require.NotNil(t, snap)
	assert.Equal(t, []models.Track{track("b")}, snap.queue)
	assert.True(t, snap.queueFetchedAt.IsZero())

	delete(f.playback.queueErr, "dj-1")
	f.tick(t)
	assert.Equal(t, 3, f.playback.queueFetches("dj-1"), "failed queue fetch retried next tick")
}

func TestWatcher_PublishFailureStillUpdatesSnapshot(t *testing.T) {
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("pubnub unavailable"))
	f := setupTestWatcher(pub)
	f.connections.set("dj-1")
	f.playback.setPlaying("dj-1", playing("a", 0))

	f.tick(t)
	f.tick(t)

	pub.AssertNumberOfCalls(t, "Publish", 1)
	require.NotNil(t, f.watcher.snapshot("dj-1"))
}

func TestWatcher_PlaybackStopsClearsQueue(t *testing.T) {
	f := setupTestWatcher(nil)
	f.connections.set("dj-1")
	f.playback.setPlaying("dj-1", playing("a", 0))
	f.playback.setQueue("dj-1", []models.Track{track("b")})
	f.tick(t)

	f.playback.setPlaying("dj-1", nil)
	f.tick(t)

	updates := f.playbackUpdates()
	require.Len(t, updates, 2)
	assert.Nil(t, updates[1].CurrentTrack)
	assert.Empty(t, updates[1].Queue)
	assert.Equal(t, 1, f.playback.queueFetches("dj-1"))
}

func TestWatcher_EnumerationFailureAbortsSweep(t *testing.T) {
	f := setupTestWatcher(nil)
	f.connections.err = errors.New("redis unavailable")

	err := f.watcher.checkAll(context.Background())

	assert.Error(t, err)
	assert.Equal(t, 0, f.playback.playbackFetches())
}

func TestWatcher_DisconnectedTenantIsForgotten(t *testing.T) {
	f := setupTestWatcher(nil)
	f.connections.set("dj-1")
	f.playback.setPlaying("dj-1", playing("a", 0))
	f.tick(t)

	f.connections.set()
	f.tick(t)
	assert.Nil(t, f.watcher.snapshot("dj-1"))

	f.connections.set("dj-1")
	f.tick(t)
	assert.Len(t, f.playbackUpdates(), 2)
}

func TestWatcher_StartRejectsBadInterval(t *testing.T) {
	f := setupTestWatcher(nil)

	assert.ErrorIs(t, f.watcher.Start(0, time.Second), status.ErrInvalidInterval)
	assert.False(t, f.watcher.Status().Running)
}

func TestWatcher_StartStop(t *testing.T) {
	f := setupTestWatcher(nil)
	f.connections.set("dj-1")
	f.playback.setPlaying("dj-1", playing("a", 0))

	require.NoError(t, f.watcher.Start(2*time.Second, 15*time.Second))

	st := f.watcher.Status()
	assert.True(t, st.Running)
	assert.Equal(t, int64(2000), st.IntervalMs)
	assert.Equal(t, int64(15000), st.QueueIntervalMs)

	assert.Eventually(t, func() bool {
		return f.playback.playbackFetches() >= 1
	}, time.Second, 5*time.Millisecond, "first sweep runs immediately")

	assert.Eventually(t, func() bool {
		f.clock.Add(2 * time.Second)
		return f.playback.playbackFetches() >= 3
	}, time.Second, 5*time.Millisecond)

	assert.True(t, f.watcher.Stop())
	assert.False(t, f.watcher.Stop())
	f.watcher.Shutdown(time.Second)

	fetches := f.playback.playbackFetches()
	f.clock.Add(10 * time.Second)
	assert.Equal(t, fetches, f.playback.playbackFetches())
	assert.False(t, f.watcher.Status().Running)
	require.NotNil(t, f.watcher.Status().LastTickAt)
}

func TestWatcher_RestartKeepsSingleLoop(t *testing.T) {
	f := setupTestWatcher(nil)
	f.connections.set("dj-1")

	require.NoError(t, f.watcher.Start(2*time.Second, 0))
	require.NoError(t, f.watcher.Start(4*time.Second, 0))

	st := f.watcher.Status()
	assert.True(t, st.Running)
	assert.Equal(t, int64(4000), st.IntervalMs)
	assert.Equal(t, int64(4000), st.QueueIntervalMs)

	assert.True(t, f.watcher.Stop())
	f.watcher.Shutdown(time.Second)

	fetches := f.playback.playbackFetches()
	f.clock.Add(time.Minute)
	assert.Equal(t, fetches, f.playback.playbackFetches())
}

func TestWatcher_RestartDuringSweepFulfilsOnce(t *testing.T) {
	f := setupTestWatcher(nil,
		approvedRequest("first", "T", "A", "Alice", partyStart),
		approvedRequest("second", "T", "A", "Bob", partyStart.Add(5*time.Second)),
	)
	f.connections.set("T")
	f.playback.setPlaying("T", playing("A", 0))
	entered, release := f.playback.holdNextPlayback()

	require.NoError(t, f.watcher.Start(2*time.Second, 15*time.Second))
	<-entered
	require.NoError(t, f.watcher.Start(2*time.Second, 15*time.Second))
	release()

	assert.Eventually(t, func() bool {
		return f.playback.playbackFetches() >= 2
	}, time.Second, 5*time.Millisecond, "restarted loop sweeps after the held one")

	f.watcher.Shutdown(time.Second)

	assert.Equal(t, models.RequestPlayed, f.store.get("first").Status)
	assert.Equal(t, models.RequestApproved, f.store.get("second").Status)
}

func TestWatcher_ResumeAfterIdleDoesNotFulfilAgain(t *testing.T) {
	f := setupTestWatcher(nil,
		approvedRequest("first", "T", "A", "Alice", partyStart),
		approvedRequest("second", "T", "A", "Bob", partyStart.Add(5*time.Second)),
	)
	f.connections.set("T")

	f.playback.setPlaying("T", playing("A", 0))
	f.tick(t)
	f.playback.setPlaying("T", nil)
	f.tick(t)
	f.playback.setPlaying("T", playing("A", 30000))
	f.tick(t)

	assert.Equal(t, models.RequestPlayed, f.store.get("first").Status)
	assert.Equal(t, models.RequestApproved, f.store.get("second").Status)

	f.playback.setPlaying("T", playing("B", 0))
	f.tick(t)
	f.playback.setPlaying("T", playing("A", 0))
	f.tick(t)

	assert.Equal(t, models.RequestPlayed, f.store.get("second").Status)
}
