package services

import (
	"context"
	"time"

	"dj-requests/models"
)

// ConnectionChecker knows which tenants hold usable Spotify credentials.
type ConnectionChecker interface {
	ConnectedTenants(ctx context.Context) ([]string, error)
	IsConnected(ctx context.Context, tenantID string) (bool, error)
}

// PlaybackClient fetches player state for a tenant. CurrentPlayback returns
// (nil, nil) when nothing is active.
type PlaybackClient interface {
	CurrentPlayback(ctx context.Context, tenantID string) (*models.PlaybackState, error)
	Queue(ctx context.Context, tenantID string) ([]models.Track, error)
}

type RequestStore interface {
	GetRequestsByStatus(ctx context.Context, status models.RequestStatus, limit, offset int, tenantID string) ([]models.Request, error)
	UpdateRequestStatus(ctx context.Context, requestID string, newStatus models.RequestStatus, at time.Time) (*models.Request, error)
	ListRequests(ctx context.Context, tenantID string) ([]models.Request, error)
	GetRequest(ctx context.Context, requestID string) (*models.Request, error)
	CreateRequest(ctx context.Context, req *models.Request) error
}

type EventStore interface {
	GetEventByUser(ctx context.Context, userID string) (*models.Event, error)
	SaveEvent(ctx context.Context, event *models.Event) error
}

// Publisher delivers an event to every subscriber of a channel.
type Publisher interface {
	Publish(ctx context.Context, channel, eventType string, payload any) error
}
