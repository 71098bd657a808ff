package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"dj-requests/models"
	"dj-requests/monitoring"

	"github.com/cespare/xxhash/v2"
)

// StatsAggregator recomputes per-tenant request counts and only publishes
// when they differ from the last published set.
type StatsAggregator struct {
	store     RequestStore
	publisher Publisher
	monitor   *monitoring.Monitor

	mu        sync.Mutex
	snapshots map[string]uint64
}

func NewStatsAggregator(store RequestStore, publisher Publisher, monitor *monitoring.Monitor) *StatsAggregator {
	return &StatsAggregator{
		store:     store,
		publisher: publisher,
		monitor:   monitor,
		snapshots: make(map[string]uint64),
	}
}

func ComputeStats(requests []models.Request) models.RequestStats {
	var stats models.RequestStats
	requesters := make(map[string]struct{})

	for _, req := range requests {
		stats.Total++
		switch req.Status {
		case models.RequestPending:
			stats.Pending++
		case models.RequestApproved:
			stats.Approved++
		case models.RequestRejected:
			stats.Rejected++
		case models.RequestPlayed:
			stats.Played++
		}
		if name := strings.ToLower(strings.TrimSpace(req.RequesterName)); name != "" {
			requesters[name] = struct{}{}
		}
	}

	stats.UniqueRequesters = len(requesters)
	return stats
}

// Aggregate recomputes one tenant. It reports whether a stats event was
// published.
func (a *StatsAggregator) Aggregate(ctx context.Context, tenantID string) (bool, error) {
	requests, err := a.store.ListRequests(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("list requests: %w", err)
	}

	stats := ComputeStats(requests)
	data, err := json.Marshal(stats)
	if err != nil {
		return false, err
	}
	sum := xxhash.Sum64(data)

	a.mu.Lock()
	prev, seen := a.snapshots[tenantID]
	if seen && prev == sum {
		a.mu.Unlock()
		a.monitor.TrackSuppressed(EventStatsUpdate)
		return false, nil
	}
	a.snapshots[tenantID] = sum
	a.mu.Unlock()

	// The snapshot stays stored even if delivery fails.
	if err := a.publisher.Publish(ctx, TenantChannel(tenantID), EventStatsUpdate, stats); err != nil {
		return true, fmt.Errorf("publish stats: %w", err)
	}
	return true, nil
}

// AggregateAll runs Aggregate for every tenant, containing per-tenant errors.
func (a *StatsAggregator) AggregateAll(ctx context.Context, tenants []string) {
	for _, tenantID := range tenants {
		if _, err := a.Aggregate(ctx, tenantID); err != nil {
			a.monitor.TrackTenantError("stats")
			slog.Error("Failed to aggregate request stats", "tenantID", tenantID, "error", err)
		}
	}
	a.retain(tenants)
}

// retain drops snapshots of tenants that are no longer connected so a
// reconnecting tenant gets a fresh stats event.
func (a *StatsAggregator) retain(tenants []string) {
	keep := make(map[string]struct{}, len(tenants))
	for _, id := range tenants {
		keep[id] = struct{}{}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for id := range a.snapshots {
		if _, ok := keep[id]; !ok {
			delete(a.snapshots, id)
		}
	}
}
