package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"dj-requests/internal/status"
	"dj-requests/models"
	"dj-requests/monitoring"

	"github.com/benbjohnson/clock"
)

type SubmitRequestInput struct {
	TrackURI      string `json:"track_uri"`
	TrackName     string `json:"track_name"`
	ArtistName    string `json:"artist_name"`
	AlbumName     string `json:"album_name"`
	DurationMs    int    `json:"duration_ms"`
	RequesterName string `json:"requester_name"`
	Pin           string `json:"pin"`
}

type TrackCandidate struct {
	TrackURI   string `json:"track_uri"`
	TrackName  string `json:"track_name"`
	ArtistName string `json:"artist_name"`
	AlbumName  string `json:"album_name"`
	DurationMs int    `json:"duration_ms"`
}

type RandomPickInput struct {
	Candidates    []TrackCandidate `json:"candidates"`
	RequesterName string           `json:"requester_name"`
}

const randomPickRequester = "Random Pick"

type RequestUpdate struct {
	Action  string          `json:"action"`
	Request *models.Request `json:"request"`
}

// RequestService handles guest submissions and host decisions. It never marks
// a request played; only the watcher does that when the track is heard.
type RequestService struct {
	requests     RequestStore
	events       EventStore
	publisher    Publisher
	monitor      *monitoring.Monitor
	clock        clock.Clock
	defaultLimit int
	pick         func(n int) int
}

func NewRequestService(requests RequestStore, events EventStore, publisher Publisher, monitor *monitoring.Monitor, clk clock.Clock, defaultLimit int) *RequestService {
	if clk == nil {
		clk = clock.New()
	}
	return &RequestService{
		requests:     requests,
		events:       events,
		publisher:    publisher,
		monitor:      monitor,
		clock:        clk,
		defaultLimit: defaultLimit,
		pick:         rand.IntN,
	}
}

func (s *RequestService) Submit(ctx context.Context, tenantID string, in SubmitRequestInput) (*models.Request, error) {
	ev, err := s.events.GetEventByUser(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if GetPageState(ev.Status, ev.PagesEnabled).Requests != models.PageEnabled {
		return nil, status.ErrRequestsClosed
	}
	if !VerifyPin(ev, in.Pin) {
		s.monitor.TrackRequestOperation("submit", "invalid_pin")
		return nil, status.ErrInvalidPin
	}

	requester := strings.TrimSpace(in.RequesterName)
	if strings.TrimSpace(in.TrackURI) == "" || requester == "" {
		return nil, status.ErrInvalidRequest
	}

	if err := s.checkLimit(ctx, tenantID, requester, ev.Config.MaxRequestsPerUser); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	req := &models.Request{
		UserID:        tenantID,
		TrackURI:      strings.TrimSpace(in.TrackURI),
		TrackName:     in.TrackName,
		ArtistName:    in.ArtistName,
		AlbumName:     in.AlbumName,
		DurationMs:    in.DurationMs,
		RequesterName: requester,
		Status:        models.RequestPending,
		CreatedAt:     now,
	}
	if ev.Config.AutoApprove {
		req.Status = models.RequestApproved
		req.ApprovedAt = &now
	}

	if err := s.requests.CreateRequest(ctx, req); err != nil {
		s.monitor.TrackRequestOperation("submit", "error")
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.monitor.TrackRequestOperation("submit", string(req.Status))
	slog.Info("Request submitted",
		"tenantID", tenantID,
		"requestID", req.ID,
		"trackURI", req.TrackURI,
		"status", req.Status,
	)
	s.publish(ctx, tenantID, "submitted", req)
	return req, nil
}

// RandomPick lets the host draw one track from candidates. Tracks that
// already have an open request are skipped unless nothing else is left. The
// pick is created approved and waits for the watcher like any other request.
func (s *RequestService) RandomPick(ctx context.Context, tenantID string, in RandomPickInput) (*models.Request, error) {
	if _, err := s.events.GetEventByUser(ctx, tenantID); err != nil {
		return nil, err
	}

	candidates := make([]TrackCandidate, 0, len(in.Candidates))
	for _, c := range in.Candidates {
		c.TrackURI = strings.TrimSpace(c.TrackURI)
		if c.TrackURI != "" {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, status.ErrNoCandidates
	}

	all, err := s.requests.ListRequests(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	open := make(map[string]struct{})
	for _, r := range all {
		if r.Status == models.RequestPending || r.Status == models.RequestApproved {
			open[r.TrackURI] = struct{}{}
		}
	}
	fresh := make([]TrackCandidate, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := open[c.TrackURI]; !ok {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) > 0 {
		candidates = fresh
	}

	chosen := candidates[s.pick(len(candidates))]
	requester := strings.TrimSpace(in.RequesterName)
	if requester == "" {
		requester = randomPickRequester
	}

	now := s.clock.Now()
	req := &models.Request{
		UserID:        tenantID,
		TrackURI:      chosen.TrackURI,
		TrackName:     chosen.TrackName,
		ArtistName:    chosen.ArtistName,
		AlbumName:     chosen.AlbumName,
		DurationMs:    chosen.DurationMs,
		RequesterName: requester,
		Status:        models.RequestApproved,
		CreatedAt:     now,
		ApprovedAt:    &now,
	}
	if err := s.requests.CreateRequest(ctx, req); err != nil {
		s.monitor.TrackRequestOperation("random_pick", "error")
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.monitor.TrackRequestOperation("random_pick", "success")
	slog.Info("Random pick created",
		"tenantID", tenantID,
		"requestID", req.ID,
		"trackURI", req.TrackURI,
		"candidates", len(candidates),
	)
	s.publish(ctx, tenantID, "random_pick", req)
	return req, nil
}

func (s *RequestService) Approve(ctx context.Context, tenantID, requestID string) (*models.Request, error) {
	return s.decide(ctx, tenantID, requestID, models.RequestApproved, models.RequestPending)
}

// Reject works on pending requests and on approved ones that have not played.
func (s *RequestService) Reject(ctx context.Context, tenantID, requestID string) (*models.Request, error) {
	return s.decide(ctx, tenantID, requestID, models.RequestRejected, models.RequestPending, models.RequestApproved)
}

func (s *RequestService) List(ctx context.Context, tenantID string, st models.RequestStatus, limit, offset int) ([]models.Request, error) {
	if st == "" {
		return s.requests.ListRequests(ctx, tenantID)
	}
	return s.requests.GetRequestsByStatus(ctx, st, limit, offset, tenantID)
}

func (s *RequestService) decide(ctx context.Context, tenantID, requestID string, to models.RequestStatus, from ...models.RequestStatus) (*models.Request, error) {
	req, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.UserID != tenantID {
		return nil, status.ErrRequestNotFound
	}

	allowed := false
	for _, st := range from {
		if req.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: status is %s", status.ErrRequestNotActive, req.Status)
	}

	updated, err := s.requests.UpdateRequestStatus(ctx, requestID, to, s.clock.Now())
	if err != nil {
		s.monitor.TrackRequestOperation(string(to), "error")
		return nil, fmt.Errorf("update request: %w", err)
	}

	s.monitor.TrackRequestOperation(string(to), "success")
	s.publish(ctx, tenantID, string(to), updated)
	return updated, nil
}

// checkLimit counts the requester's open requests (pending or approved).
// A limit of zero or less falls back to the service default; a default of
// zero or less disables the check.
func (s *RequestService) checkLimit(ctx context.Context, tenantID, requester string, limit int) error {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit <= 0 {
		return nil
	}

	all, err := s.requests.ListRequests(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list requests: %w", err)
	}

	open := 0
	for _, r := range all {
		if !strings.EqualFold(strings.TrimSpace(r.RequesterName), requester) {
			continue
		}
		if r.Status == models.RequestPending || r.Status == models.RequestApproved {
			open++
		}
	}
	if open >= limit {
		s.monitor.TrackRequestOperation("submit", "limited")
		return fmt.Errorf("%w: %d open requests", status.ErrRequestLimit, open)
	}
	return nil
}

func (s *RequestService) publish(ctx context.Context, tenantID, action string, req *models.Request) {
	if err := s.publisher.Publish(ctx, TenantChannel(tenantID), EventRequestUpdate, RequestUpdate{Action: action, Request: req}); err != nil {
		slog.Error("Failed to publish request update", "tenantID", tenantID, "requestID", req.ID, "error", err)
	}
}
