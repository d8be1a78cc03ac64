// Package dashboard maintains the per-tenant KPI projection. Reads go
// cache-then-compute against Redis; writes that change the numbers
// invalidate the key and push a delta event so subscribed dashboards
// recompute on their next read.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/domain"
	"github.com/trackfleet/logistics-core/internal/store"
)

const (
	// SnapshotTTL is the cache lifetime for the periodic refresh job.
	SnapshotTTL = 15 * time.Minute
	// ConnectTTL is the short lifetime used for on-connect reads so a
	// freshly opened dashboard never shows numbers older than half a minute.
	ConnectTTL = 30 * time.Second
)

// StatsStore aggregates per-status counts from the relational store.
// Implementations must tolerate tenants with zero rows.
type StatsStore interface {
	DashboardCounts(ctx context.Context, tenantID string) (*domain.DashboardSnapshot, error)
}

// Bus is the slice of the realtime hub the projection publishes to.
type Bus interface {
	EmitToDashboard(companyID, event string, payload any)
}

type Projection struct {
	stats  StatsStore
	cache  store.Cache
	bus    Bus
	logger *zap.Logger
}

func NewProjection(stats StatsStore, cache store.Cache, bus Bus, logger *zap.Logger) *Projection {
	return &Projection{
		stats:  stats,
		cache:  cache,
		bus:    bus,
		logger: logger.With(zap.String("component", "dashboard")),
	}
}

// Snapshot returns the tenant's KPI bundle, serving from cache when a
// fresh entry exists and computing (then caching with ttl) otherwise.
func (p *Projection) Snapshot(ctx context.Context, tenantID string, ttl time.Duration) (*domain.DashboardSnapshot, error) {
	key := store.DashboardKey(tenantID)

	if b, err := p.cache.Get(ctx, key); err == nil {
		var snap domain.DashboardSnapshot
		if err := json.Unmarshal(b, &snap); err == nil && snap.TenantID == tenantID {
			return &snap, nil
		}
		// Corrupt or mis-keyed entries are recomputed, never served.
		p.logger.Warn("discarding bad dashboard cache entry", zap.String("tenant_id", tenantID))
	}

	return p.Refresh(ctx, tenantID, ttl)
}

// Refresh recomputes the snapshot from the relational store and writes it
// to cache with the given ttl. The cache write is best-effort.
func (p *Projection) Refresh(ctx context.Context, tenantID string, ttl time.Duration) (*domain.DashboardSnapshot, error) {
	snap, err := p.stats.DashboardCounts(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("compute dashboard for %s: %w", tenantID, err)
	}
	if snap.TenantID == "" {
		snap.TenantID = tenantID
	}
	snap.GeneratedAt = time.Now().UTC()

	if b, err := json.Marshal(snap); err == nil {
		if err := p.cache.Set(ctx, store.DashboardKey(tenantID), b, ttl); err != nil {
			p.logger.Warn("failed to cache dashboard snapshot",
				zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}
	return snap, nil
}

// Invalidate drops the tenant's cached snapshot and pushes a delta event
// to the tenant's dashboard room so connected clients refetch. reason is
// the change that triggered it, e.g. "shipment_status_changed".
func (p *Projection) Invalidate(ctx context.Context, tenantID, reason string) {
	if err := p.cache.Del(ctx, store.DashboardKey(tenantID)); err != nil {
		p.logger.Warn("failed to invalidate dashboard cache",
			zap.String("tenant_id", tenantID), zap.Error(err))
	}
	if p.bus != nil {
		p.bus.EmitToDashboard(tenantID, "dashboard_delta", map[string]string{"reason": reason})
	}
}
