// Package health probes the backing stores and keeps the latest composite
// status in Redis. Alerts fire on a healthy to unhealthy transition only;
// consecutive unhealthy probes stay quiet.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/domain"
	"github.com/trackfleet/logistics-core/internal/store"
)

const (
	// ProbeTimeout bounds each individual store check.
	ProbeTimeout = 5 * time.Second
	// SnapshotTTL matches the probe cadence with headroom: a snapshot
	// older than this means the monitor itself is down.
	SnapshotTTL = 10 * time.Minute
)

// Probe is one named store check. Check returns nil when healthy.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// AlertBus is the slice of the realtime hub the monitor publishes to.
type AlertBus interface {
	BroadcastAlerts(event string, payload any)
}

// Monitor runs the probe set and records transitions. Not safe for
// concurrent Run calls; the scheduler's single-flight gate serialises it.
type Monitor struct {
	probes []Probe
	cache  store.Cache
	bus    AlertBus
	logger *zap.Logger
	prev   map[string]domain.HealthState
}

func NewMonitor(probes []Probe, cache store.Cache, bus AlertBus, logger *zap.Logger) *Monitor {
	return &Monitor{
		probes: probes,
		cache:  cache,
		bus:    bus,
		logger: logger.With(zap.String("component", "health")),
		prev:   make(map[string]domain.HealthState),
	}
}

// Run executes every probe, writes the snapshot, and raises transition
// alerts. It never returns an error: a platform with every store down is a
// finding to report, not a job failure.
func (m *Monitor) Run(ctx context.Context) error {
	snap := &domain.HealthSnapshot{
		Timestamp: time.Now().UTC(),
		Stores:    make(map[string]domain.HealthState, len(m.probes)),
	}

	for _, p := range m.probes {
		state := m.runProbe(ctx, p)
		snap.Stores[p.Name] = state
		if state == domain.HealthUnhealthy {
			snap.Issues = append(snap.Issues, p.Name+" is unhealthy")
		}

		if state == domain.HealthUnhealthy && m.prev[p.Name] != domain.HealthUnhealthy {
			m.logger.Error("store became unhealthy", zap.String("store", p.Name))
			if m.bus != nil {
				m.bus.BroadcastAlerts("system_alert", map[string]string{
					"severity": "critical",
					"store":    p.Name,
					"message":  p.Name + " is unhealthy",
				})
			}
		}
		if state == domain.HealthHealthy && m.prev[p.Name] == domain.HealthUnhealthy {
			m.logger.Info("store recovered", zap.String("store", p.Name))
		}
		m.prev[p.Name] = state
	}

	m.persist(ctx, snap)

	if snap.Healthy() {
		m.logger.Debug("health check passed", zap.Int("stores", len(snap.Stores)))
	} else {
		m.logger.Warn("health check found issues", zap.Strings("issues", snap.Issues))
	}
	return nil
}

func (m *Monitor) runProbe(ctx context.Context, p Probe) domain.HealthState {
	pctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	if err := p.Check(pctx); err != nil {
		m.logger.Warn("probe failed", zap.String("store", p.Name), zap.Error(err))
		return domain.HealthUnhealthy
	}
	return domain.HealthHealthy
}

// persist writes the snapshot to Redis best-effort. When Redis is itself
// down the snapshot survives only in logs.
func (m *Monitor) persist(ctx context.Context, snap *domain.HealthSnapshot) {
	b, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := m.cache.Set(ctx, store.HealthKey, b, SnapshotTTL); err != nil {
		m.logger.Warn("failed to store health snapshot", zap.Error(err))
	}
}

// Latest reads the last stored snapshot. domain.ErrNotFound means no probe
// has run within the TTL window.
func (m *Monitor) Latest(ctx context.Context) (*domain.HealthSnapshot, error) {
	b, err := m.cache.Get(ctx, store.HealthKey)
	if err != nil {
		return nil, err
	}
	var snap domain.HealthSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// HTTPProbe checks an external dependency's health endpoint.
func HTTPProbe(name, url string) Probe {
	client := &http.Client{Timeout: ProbeTimeout}
	return Probe{
		Name: name,
		Check: func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 300 {
				return &httpStatusError{status: resp.StatusCode}
			}
			return nil
		},
	}
}

type httpStatusError struct{ status int }

func (e *httpStatusError) Error() string {
	return "unexpected status " + http.StatusText(e.status)
}
