package services

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"dj-requests/internal/status"
	"dj-requests/models"

	"github.com/stretchr/testify/mock"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, channel, eventType string, payload any) error {
	args := m.Called(ctx, channel, eventType, payload)
	return args.Error(0)
}

// published returns the payloads sent with eventType, in call order.
func (m *MockPublisher) published(eventType string) []any {
	var out []any
	for _, call := range m.Calls {
		if call.Method == "Publish" && call.Arguments.String(2) == eventType {
			out = append(out, call.Arguments.Get(3))
		}
	}
	return out
}

func newMockPublisher() *MockPublisher {
	p := &MockPublisher{}
	p.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return p
}

type memoryRequestStore struct {
	mu        sync.Mutex
	requests  map[string]*models.Request
	nextID    int
	byStatErr error
	updateErr error
	listErr   error
}

func newMemoryRequestStore(reqs ...models.Request) *memoryRequestStore {
	s := &memoryRequestStore{requests: make(map[string]*models.Request)}
	for i := range reqs {
		r := reqs[i]
		if r.ID == "" {
			s.nextID++
			r.ID = "req-" + strconv.Itoa(s.nextID)
		}
		s.requests[r.ID] = &r
	}
	return s
}

func (s *memoryRequestStore) sorted(match func(*models.Request) bool) []models.Request {
	var out []models.Request
	for _, r := range s.requests {
		if match(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *memoryRequestStore) GetRequestsByStatus(ctx context.Context, st models.RequestStatus, limit, offset int, tenantID string) ([]models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byStatErr != nil {
		return nil, s.byStatErr
	}
	out := s.sorted(func(r *models.Request) bool { return r.UserID == tenantID && r.Status == st })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryRequestStore) UpdateRequestStatus(ctx context.Context, requestID string, newStatus models.RequestStatus, at time.Time) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	r, ok := s.requests[requestID]
	if !ok {
		return nil, status.ErrRequestNotFound
	}
	r.Status = newStatus
	switch newStatus {
	case models.RequestApproved:
		r.ApprovedAt = &at
	case models.RequestRejected:
		r.RejectedAt = &at
	case models.RequestPlayed:
		r.PlayedAt = &at
	}
	cp := *r
	return &cp, nil
}

func (s *memoryRequestStore) ListRequests(ctx context.Context, tenantID string) ([]models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.sorted(func(r *models.Request) bool { return r.UserID == tenantID }), nil
}

func (s *memoryRequestStore) GetRequest(ctx context.Context, requestID string) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[requestID]
	if !ok {
		return nil, status.ErrRequestNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memoryRequestStore) CreateRequest(ctx context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	req.ID = "req-" + strconv.Itoa(s.nextID)
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

func (s *memoryRequestStore) get(id string) models.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.requests[id]
}

type memoryEventStore struct {
	mu     sync.Mutex
	events map[string]*models.Event
	saves  int
}

func newMemoryEventStore(events ...models.Event) *memoryEventStore {
	s := &memoryEventStore{events: make(map[string]*models.Event)}
	for i := range events {
		ev := events[i]
		s.events[ev.UserID] = &ev
	}
	return s
}

func (s *memoryEventStore) GetEventByUser(ctx context.Context, userID string) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[userID]
	if !ok {
		return nil, status.ErrEventNotFound
	}
	cp := *ev
	return &cp, nil
}

func (s *memoryEventStore) SaveEvent(ctx context.Context, ev *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.ID == "" {
		ev.ID = "ev-" + ev.UserID
	}
	cp := *ev
	s.events[ev.UserID] = &cp
	s.saves++
	return nil
}

type fakeConnections struct {
	mu      sync.Mutex
	tenants []string
	err     error
}

func (f *fakeConnections) set(tenants ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenants = tenants
}

func (f *fakeConnections) ConnectedTenants(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]string(nil), f.tenants...), nil
}

func (f *fakeConnections) IsConnected(ctx context.Context, tenantID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tenants {
		if t == tenantID {
			return true, nil
		}
	}
	return false, nil
}

type fakePlayback struct {
	mu          sync.Mutex
	playback    map[string]*models.PlaybackState
	queues      map[string][]models.Track
	playbackErr map[string]error
	queueErr    map[string]error
	panics      map[string]bool
	queueCalls  map[string]int
	playCalls   int
	hold        *playbackHold
}

type playbackHold struct {
	entered chan struct{}
	release chan struct{}
}

func newFakePlayback() *fakePlayback {
	return &fakePlayback{
		playback:    make(map[string]*models.PlaybackState),
		queues:      make(map[string][]models.Track),
		playbackErr: make(map[string]error),
		queueErr:    make(map[string]error),
		panics:      make(map[string]bool),
		queueCalls:  make(map[string]int),
	}
}

func (f *fakePlayback) setPlaying(tenantID string, state *models.PlaybackState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playback[tenantID] = state
}

func (f *fakePlayback) setQueue(tenantID string, queue []models.Track) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[tenantID] = queue
}

// holdNextPlayback parks the next CurrentPlayback call until release is
// called. entered is closed once the call is parked.
func (f *fakePlayback) holdNextPlayback() (entered <-chan struct{}, release func()) {
	h := &playbackHold{entered: make(chan struct{}), release: make(chan struct{})}
	f.mu.Lock()
	f.hold = h
	f.mu.Unlock()
	return h.entered, func() { close(h.release) }
}

func (f *fakePlayback) CurrentPlayback(ctx context.Context, tenantID string) (*models.PlaybackState, error) {
	f.mu.Lock()
	h := f.hold
	f.hold = nil
	f.mu.Unlock()
	if h != nil {
		close(h.entered)
		<-h.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.playCalls++
	if f.panics[tenantID] {
		panic("malformed player state")
	}
	if err := f.playbackErr[tenantID]; err != nil {
		return nil, err
	}
	return f.playback[tenantID], nil
}

func (f *fakePlayback) Queue(ctx context.Context, tenantID string) ([]models.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queueCalls[tenantID]++
	if err := f.queueErr[tenantID]; err != nil {
		return nil, err
	}
	return f.queues[tenantID], nil
}

func (f *fakePlayback) queueFetches(tenantID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queueCalls[tenantID]
}

func (f *fakePlayback) playbackFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playCalls
}

func track(id string) models.Track {
	return models.Track{
		ID:         id,
		Name:       "Track " + id,
		URI:        "spotify:track:" + id,
		DurationMs: 200000,
		Artists:    []models.Artist{{ID: "artist-" + id, Name: "Artist " + id}},
		Album:      models.Album{ID: "album-" + id, Name: "Album " + id},
	}
}

func playing(id string, progress int) *models.PlaybackState {
	t := track(id)
	return &models.PlaybackState{
		IsPlaying:  true,
		ProgressMs: progress,
		Device:     &models.Device{ID: "booth", Name: "Booth", Type: "Computer", VolumePercent: 80},
		Item:       &t,
	}
}
