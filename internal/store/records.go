package store

import (
	"time"

	"dj-requests/models"

	"github.com/pocketbase/pocketbase/core"
)

const (
	EventsCollection   = "events"
	RequestsCollection = "requests"
)

func eventFromRecord(record *core.Record) (*models.Event, error) {
	ev := &models.Event{
		ID:        record.Id,
		UserID:    record.GetString("user_id"),
		Status:    models.EventStatus(record.GetString("status")),
		Version:   record.GetInt("version"),
		CreatedAt: record.GetDateTime("created").Time(),
		UpdatedAt: record.GetDateTime("updated").Time(),
	}
	if err := record.UnmarshalJSONField("pages_enabled", &ev.PagesEnabled); err != nil {
		return nil, err
	}
	if err := record.UnmarshalJSONField("config", &ev.Config); err != nil {
		return nil, err
	}
	return ev, nil
}

func applyEvent(record *core.Record, ev *models.Event) {
	record.Set("user_id", ev.UserID)
	record.Set("status", string(ev.Status))
	record.Set("pages_enabled", ev.PagesEnabled)
	record.Set("config", ev.Config)
	record.Set("version", ev.Version)
}

func requestFromRecord(record *core.Record) models.Request {
	return models.Request{
		ID:            record.Id,
		UserID:        record.GetString("user_id"),
		TrackURI:      record.GetString("track_uri"),
		TrackName:     record.GetString("track_name"),
		ArtistName:    record.GetString("artist_name"),
		AlbumName:     record.GetString("album_name"),
		DurationMs:    record.GetInt("duration_ms"),
		RequesterName: record.GetString("requester_name"),
		Status:        models.RequestStatus(record.GetString("status")),
		CreatedAt:     record.GetDateTime("created").Time(),
		ApprovedAt:    optionalTime(record, "approved_at"),
		RejectedAt:    optionalTime(record, "rejected_at"),
		PlayedAt:      optionalTime(record, "played_at"),
	}
}

func applyRequest(record *core.Record, req *models.Request) {
	record.Set("user_id", req.UserID)
	record.Set("track_uri", req.TrackURI)
	record.Set("track_name", req.TrackName)
	record.Set("artist_name", req.ArtistName)
	record.Set("album_name", req.AlbumName)
	record.Set("duration_ms", req.DurationMs)
	record.Set("requester_name", req.RequesterName)
	record.Set("status", string(req.Status))
	setOptionalTime(record, "approved_at", req.ApprovedAt)
	setOptionalTime(record, "rejected_at", req.RejectedAt)
	setOptionalTime(record, "played_at", req.PlayedAt)
}

func optionalTime(record *core.Record, field string) *time.Time {
	dt := record.GetDateTime(field)
	if dt.IsZero() {
		return nil
	}
	t := dt.Time()
	return &t
}

func setOptionalTime(record *core.Record, field string, t *time.Time) {
	if t == nil {
		return
	}
	record.Set(field, *t)
}
