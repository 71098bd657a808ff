package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dj-requests/internal/status"
	"dj-requests/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

// Store persists events and requests as PocketBase records.
type Store struct {
	app core.App
}

func New(app core.App) *Store {
	return &Store{app: app}
}

func (s *Store) GetEventByUser(ctx context.Context, userID string) (*models.Event, error) {
	record, err := s.app.FindFirstRecordByFilter(EventsCollection, "user_id = {:user}", dbx.Params{"user": userID})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find event: %w", err)
	}
	return eventFromRecord(record)
}

func (s *Store) SaveEvent(ctx context.Context, ev *models.Event) error {
	var record *core.Record
	if ev.ID == "" {
		collection, err := s.app.FindCollectionByNameOrId(EventsCollection)
		if err != nil {
			return fmt.Errorf("events collection: %w", err)
		}
		record = core.NewRecord(collection)
	} else {
		found, err := s.app.FindRecordById(EventsCollection, ev.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return status.ErrEventNotFound
		}
		if err != nil {
			return fmt.Errorf("find event: %w", err)
		}
		record = found
	}

	applyEvent(record, ev)
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("save event: %w", err)
	}

	ev.ID = record.Id
	ev.CreatedAt = record.GetDateTime("created").Time()
	ev.UpdatedAt = record.GetDateTime("updated").Time()
	return nil
}

// GetRequestsByStatus returns a tenant's requests in status, oldest first.
// A limit of zero returns every match.
func (s *Store) GetRequestsByStatus(ctx context.Context, st models.RequestStatus, limit, offset int, tenantID string) ([]models.Request, error) {
	records, err := s.app.FindRecordsByFilter(
		RequestsCollection,
		"user_id = {:user} && status = {:status}",
		"+created",
		limit,
		offset,
		dbx.Params{"user": tenantID, "status": string(st)},
	)
	if err != nil {
		return nil, fmt.Errorf("find requests: %w", err)
	}
	return requestsFromRecords(records), nil
}

func (s *Store) ListRequests(ctx context.Context, tenantID string) ([]models.Request, error) {
	records, err := s.app.FindRecordsByFilter(
		RequestsCollection,
		"user_id = {:user}",
		"+created",
		0,
		0,
		dbx.Params{"user": tenantID},
	)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requestsFromRecords(records), nil
}

func (s *Store) GetRequest(ctx context.Context, requestID string) (*models.Request, error) {
	record, err := s.findRequest(requestID)
	if err != nil {
		return nil, err
	}
	req := requestFromRecord(record)
	return &req, nil
}

func (s *Store) CreateRequest(ctx context.Context, req *models.Request) error {
	collection, err := s.app.FindCollectionByNameOrId(RequestsCollection)
	if err != nil {
		return fmt.Errorf("requests collection: %w", err)
	}

	record := core.NewRecord(collection)
	applyRequest(record, req)
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("save request: %w", err)
	}

	req.ID = record.Id
	req.CreatedAt = record.GetDateTime("created").Time()
	return nil
}

// UpdateRequestStatus moves a request to newStatus and stamps the matching
// timestamp field with at.
func (s *Store) UpdateRequestStatus(ctx context.Context, requestID string, newStatus models.RequestStatus, at time.Time) (*models.Request, error) {
	record, err := s.findRequest(requestID)
	if err != nil {
		return nil, err
	}

	record.Set("status", string(newStatus))
	if field := newStatus.TimestampField(); field != "" {
		record.Set(field, at)
	}
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return nil, fmt.Errorf("update request: %w", err)
	}

	req := requestFromRecord(record)
	return &req, nil
}

func (s *Store) findRequest(requestID string) (*core.Record, error) {
	record, err := s.app.FindRecordById(RequestsCollection, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find request: %w", err)
	}
	return record, nil
}

func requestsFromRecords(records []*core.Record) []models.Request {
	out := make([]models.Request, 0, len(records))
	for _, r := range records {
		out = append(out, requestFromRecord(r))
	}
	return out
}
