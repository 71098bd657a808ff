package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"dj-requests/models"

	"github.com/benbjohnson/clock"
)

type RequestReconciler struct {
	store       RequestStore
	clock       clock.Clock
	lookupLimit int
}

func NewRequestReconciler(store RequestStore, clk clock.Clock, lookupLimit int) *RequestReconciler {
	if lookupLimit <= 0 {
		lookupLimit = 200
	}
	return &RequestReconciler{store: store, clock: clk, lookupLimit: lookupLimit}
}

// FindFulfillableRequest marks the oldest approved request for trackURI as
// played and returns it. No match is not an error.
func (r *RequestReconciler) FindFulfillableRequest(ctx context.Context, tenantID, trackURI string) (*models.Request, error) {
	if trackURI == "" {
		return nil, nil
	}

	approved, err := r.approved(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	for _, req := range approved {
		if req.TrackURI != trackURI {
			continue
		}

		updated, err := r.store.UpdateRequestStatus(ctx, req.ID, models.RequestPlayed, r.clock.Now())
		if err != nil {
			return nil, fmt.Errorf("mark request %s played: %w", req.ID, err)
		}
		slog.Info("Request fulfilled by playback",
			"tenantID", tenantID,
			"requestID", req.ID,
			"trackURI", trackURI,
		)
		return updated, nil
	}

	return nil, nil
}

// EnrichQueueWithRequesters attaches the requester of the oldest approved
// request for each queued track. Matches are not consumed.
func (r *RequestReconciler) EnrichQueueWithRequesters(ctx context.Context, tenantID string, queue []models.Track) ([]models.EnhancedQueueItem, error) {
	items := make([]models.EnhancedQueueItem, len(queue))
	for i, track := range queue {
		items[i] = models.EnhancedQueueItem{Track: track}
	}
	if len(queue) == 0 {
		return items, nil
	}

	approved, err := r.approved(ctx, tenantID)
	if err != nil {
		return items, err
	}

	requesters := make(map[string]string, len(approved))
	for _, req := range approved {
		if _, seen := requesters[req.TrackURI]; !seen {
			requesters[req.TrackURI] = req.RequesterName
		}
	}

	for i := range items {
		if name, ok := requesters[items[i].URI]; ok {
			n := name
			items[i].RequestedBy = &n
		}
	}
	return items, nil
}

// approved returns the tenant's approved requests, oldest first. Ties on
// creation time keep the store's order.
func (r *RequestReconciler) approved(ctx context.Context, tenantID string) ([]models.Request, error) {
	requests, err := r.store.GetRequestsByStatus(ctx, models.RequestApproved, r.lookupLimit, 0, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load approved requests: %w", err)
	}
	sort.SliceStable(requests, func(i, j int) bool {
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})
	return requests, nil
}
