package health

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/domain"
	"github.com/trackfleet/logistics-core/internal/store"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	down bool
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return nil, errors.New("redis down")
	}
	b, ok := c.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return errors.New("redis down")
	}
	c.data[key] = value
	return nil
}

func (c *memCache) Del(context.Context, ...string) error { return nil }
func (c *memCache) Ping(context.Context) error           { return nil }

type recordingBus struct {
	alerts []any
}

func (b *recordingBus) BroadcastAlerts(_ string, payload any) {
	b.alerts = append(b.alerts, payload)
}

func okProbe(name string) Probe {
	return Probe{Name: name, Check: func(context.Context) error { return nil }}
}

func failingProbe(name string, fail *bool) Probe {
	return Probe{Name: name, Check: func(context.Context) error {
		if *fail {
			return errors.New("connection refused")
		}
		return nil
	}}
}

func TestMonitor_WritesSnapshot(t *testing.T) {
	cache := newMemCache()
	m := NewMonitor([]Probe{okProbe("postgres"), okProbe("mongo"), okProbe("redis")}, cache, &recordingBus{}, zap.NewNop())

	require.NoError(t, m.Run(context.Background()))

	b, ok := cache.data[store.HealthKey]
	require.True(t, ok)
	var snap domain.HealthSnapshot
	require.NoError(t, json.Unmarshal(b, &snap))
	assert.True(t, snap.Healthy())
	assert.Len(t, snap.Stores, 3)
	assert.Empty(t, snap.Issues)
}

func TestMonitor_AlertsOnTransitionOnly(t *testing.T) {
	cache := newMemCache()
	bus := &recordingBus{}
	fail := false
	m := NewMonitor([]Probe{okProbe("postgres"), failingProbe("mongo", &fail)}, cache, bus, zap.NewNop())

	require.NoError(t, m.Run(context.Background()))
	assert.Empty(t, bus.alerts)

	// mongo goes down: one alert.
	fail = true
	require.NoError(t, m.Run(context.Background()))
	require.Len(t, bus.alerts, 1)

	// Still down: no duplicate alert.
	require.NoError(t, m.Run(context.Background()))
	assert.Len(t, bus.alerts, 1)

	// Recovery, then a fresh outage alerts again.
	fail = false
	require.NoError(t, m.Run(context.Background()))
	fail = true
	require.NoError(t, m.Run(context.Background()))
	assert.Len(t, bus.alerts, 2)
}

func TestMonitor_NeverFailsTheScheduler(t *testing.T) {
	cache := newMemCache()
	cache.down = true
	fail := true
	m := NewMonitor([]Probe{failingProbe("postgres", &fail), failingProbe("mongo", &fail)}, cache, &recordingBus{}, zap.NewNop())

	// All stores down, Redis persist failing: Run still returns nil.
	assert.NoError(t, m.Run(context.Background()))
}

func TestMonitor_ProbeTimeoutMarksUnhealthy(t *testing.T) {
	slow := Probe{Name: "external", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	cache := newMemCache()
	bus := &recordingBus{}
	m := NewMonitor([]Probe{slow}, cache, bus, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, m.Run(ctx))

	var snap domain.HealthSnapshot
	require.NoError(t, json.Unmarshal(cache.data[store.HealthKey], &snap))
	assert.Equal(t, domain.HealthUnhealthy, snap.Stores["external"])
	assert.Len(t, bus.alerts, 1)
}

func TestMonitor_Latest(t *testing.T) {
	cache := newMemCache()
	m := NewMonitor([]Probe{okProbe("postgres")}, cache, nil, zap.NewNop())

	_, err := m.Latest(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, m.Run(context.Background()))
	snap, err := m.Latest(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Healthy())
}
