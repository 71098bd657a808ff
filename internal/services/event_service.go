package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dj-requests/internal/status"
	"dj-requests/models"
	"dj-requests/monitoring"
	"dj-requests/utils"

	"github.com/benbjohnson/clock"
	"golang.org/x/crypto/bcrypt"
)

const pinLength = 4

// EventService owns writes to a tenant's event. Every status change goes
// through ValidateStateTransition before it is saved.
type EventService struct {
	store     EventStore
	publisher Publisher
	monitor   *monitoring.Monitor
	clock     clock.Clock
}

func NewEventService(store EventStore, publisher Publisher, monitor *monitoring.Monitor, clk clock.Clock) *EventService {
	if clk == nil {
		clk = clock.New()
	}
	return &EventService{store: store, publisher: publisher, monitor: monitor, clock: clk}
}

// EventView is what guests and display screens see of an event.
type EventView struct {
	UserID       string              `json:"user_id"`
	Status       models.EventStatus  `json:"status"`
	PagesEnabled models.PagesEnabled `json:"pages_enabled"`
	PageState    models.PageState    `json:"page_state"`
	Config       models.EventConfig  `json:"config"`
	PinRequired  bool                `json:"pin_required"`
	Version      int                 `json:"version"`
}

func NewEventView(ev *models.Event) EventView {
	cfg := ev.Config
	cfg.PinHash = ""
	return EventView{
		UserID:       ev.UserID,
		Status:       ev.Status,
		PagesEnabled: ev.PagesEnabled,
		PageState:    GetPageState(ev.Status, ev.PagesEnabled),
		Config:       cfg,
		PinRequired:  ev.Config.PinHash != "",
		Version:      ev.Version,
	}
}

func (s *EventService) GetEvent(ctx context.Context, userID string) (*models.Event, error) {
	return s.store.GetEventByUser(ctx, userID)
}

// StartEvent creates the host's event in standby with a fresh PIN. If the
// event already exists it is returned unchanged and pin is empty.
func (s *EventService) StartEvent(ctx context.Context, userID string) (ev *models.Event, pin string, err error) {
	existing, err := s.store.GetEventByUser(ctx, userID)
	if err == nil {
		return existing, "", nil
	}
	if !errors.Is(err, status.ErrEventNotFound) {
		return nil, "", err
	}

	pin, err = utils.GenerateOTP(pinLength)
	if err != nil {
		return nil, "", fmt.Errorf("generate pin: %w", err)
	}
	hash, err := hashPin(pin)
	if err != nil {
		return nil, "", err
	}

	now := s.clock.Now()
	ev = &models.Event{
		UserID:       userID,
		Status:       models.EventStandby,
		PagesEnabled: models.PagesEnabled{Requests: true, Display: true},
		Config:       models.EventConfig{PinHash: hash},
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.SaveEvent(ctx, ev); err != nil {
		return nil, "", fmt.Errorf("save event: %w", err)
	}

	slog.Info("Event started", "userID", userID, "eventID", ev.ID)
	s.publishEvent(ctx, ev)
	return ev, pin, nil
}

// UpdateStatus validates and applies a lifecycle change. An empty status in
// change keeps the current one. The stored PIN hash always survives a config
// update from the host.
func (s *EventService) UpdateStatus(ctx context.Context, userID string, change StateChange) (*models.Event, error) {
	ev, err := s.store.GetEventByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if change.Status == "" {
		change.Status = ev.Status
	}
	if !change.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", status.ErrInvalidStatus, change.Status)
	}
	if change.Config != nil {
		cfg := *change.Config
		cfg.PinHash = ev.Config.PinHash
		change.Config = &cfg
	}

	if result := ValidateStateTransition(*ev, change); !result.Valid {
		s.monitor.TrackRequestOperation("event_transition", "rejected")
		return nil, &status.TransitionError{Reason: result.Reason}
	}

	from := ev.Status
	ev.PagesEnabled, ev.Config = resolveChange(*ev, change)
	ev.Status = change.Status
	ev.Version++
	ev.UpdatedAt = s.clock.Now()

	if err := s.store.SaveEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("save event: %w", err)
	}

	s.monitor.TrackRequestOperation("event_transition", "success")
	slog.Info("Event updated",
		"userID", userID,
		"from", from,
		"to", ev.Status,
		"version", ev.Version,
	)
	s.publishEvent(ctx, ev)
	return ev, nil
}

// SetPin replaces the guest PIN.
func (s *EventService) SetPin(ctx context.Context, userID, pin string) error {
	ev, err := s.store.GetEventByUser(ctx, userID)
	if err != nil {
		return err
	}
	if len(pin) < pinLength {
		return fmt.Errorf("%w: must be at least %d characters", status.ErrInvalidPin, pinLength)
	}

	hash, err := hashPin(pin)
	if err != nil {
		return err
	}
	ev.Config.PinHash = hash
	ev.Version++
	ev.UpdatedAt = s.clock.Now()

	if err := s.store.SaveEvent(ctx, ev); err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	s.publishEvent(ctx, ev)
	return nil
}

// VerifyPin accepts any pin when the event has none set.
func VerifyPin(ev *models.Event, pin string) bool {
	if ev.Config.PinHash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(ev.Config.PinHash), []byte(pin)) == nil
}

func (s *EventService) publishEvent(ctx context.Context, ev *models.Event) {
	if err := s.publisher.Publish(ctx, TenantChannel(ev.UserID), EventEventUpdate, NewEventView(ev)); err != nil {
		slog.Error("Failed to publish event update", "userID", ev.UserID, "error", err)
	}
}

func hashPin(pin string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(hash), nil
}
