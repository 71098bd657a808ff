package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dj-requests/monitoring"

	"github.com/google/uuid"
	pubnub "github.com/pubnub/go/v7"
)

const (
	EventPlaybackUpdate = "playback-update"
	EventStatsUpdate    = "stats-update"
	EventEventUpdate    = "event-update"
	EventRequestUpdate  = "request-update"
)

// TenantChannel is the fan-out channel every page of a tenant subscribes to.
func TenantChannel(tenantID string) string {
	return fmt.Sprintf("party-%s", tenantID)
}

type Envelope struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

type PubNubPublisher struct {
	pubnub  *pubnub.PubNub
	monitor *monitoring.Monitor
}

func NewPubNubPublisher(pn *pubnub.PubNub, monitor *monitoring.Monitor) *PubNubPublisher {
	return &PubNubPublisher{pubnub: pn, monitor: monitor}
}

// Publish sends payload to channel. ctx bounds the HTTP call to PubNub.
func (p *PubNubPublisher) Publish(ctx context.Context, channel, eventType string, payload any) error {
	if err := ctx.Err(); err != nil {
		p.monitor.TrackFanout(eventType, "error")
		return fmt.Errorf("publish %s to %s: %w", eventType, channel, err)
	}

	msg := Envelope{
		ID:        uuid.NewString(),
		Type:      eventType,
		Data:      payload,
		Timestamp: time.Now().UnixMilli(),
	}

	_, status, err := p.pubnub.PublishWithContext(ctx).
		Channel(channel).
		Message(msg).
		Execute()
	if err != nil {
		p.monitor.TrackFanout(eventType, "error")
		slog.Error("Failed to publish event",
			"channel", channel,
			"type", eventType,
			"status", status.StatusCode,
			"error", err,
		)
		return fmt.Errorf("publish %s to %s: %w", eventType, channel, err)
	}

	p.monitor.TrackFanout(eventType, "success")
	return nil
}
