package tenant_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/domain"
	"github.com/trackfleet/logistics-core/internal/tenant"
)

type fakeStore struct {
	tenants []domain.Tenant
	err     error
	calls   int
}

func (f *fakeStore) ListActive(ctx context.Context) ([]domain.Tenant, error) {
	f.calls++
	return f.tenants, f.err
}

func tenants(ids ...string) []domain.Tenant {
	out := make([]domain.Tenant, len(ids))
	for i, id := range ids {
		out[i] = domain.Tenant{ID: id, Name: "co-" + id, Active: true}
	}
	return out
}

func TestForEach_IsolatesTenantFailure(t *testing.T) {
	store := &fakeStore{tenants: tenants("A", "B", "C")}
	it := tenant.NewIterator(store, zap.NewNop())

	boom := errors.New("work exploded")
	var visited []string
	res, err := it.ForEach(context.Background(), func(ctx context.Context, tn domain.Tenant) error {
		visited = append(visited, tn.ID)
		if tn.ID == "B" {
			return boom
		}
		return nil
	}, tenant.NewOptions())

	require.NoError(t, err, "tenant failure must not fail the iteration")
	assert.Equal(t, []string{"A", "B", "C"}, visited, "all three tenants attempted")

	require.Len(t, res.Outcomes, 3)
	assert.NoError(t, res.Outcomes[0].Err)
	assert.ErrorIs(t, res.Outcomes[1].Err, boom)
	assert.NoError(t, res.Outcomes[2].Err)
	require.Len(t, res.Failed(), 1)
	assert.Equal(t, "B", res.Failed()[0].Tenant.ID)
}

func TestForEach_StableOrderByID(t *testing.T) {
	store := &fakeStore{tenants: tenants("zulu", "alpha", "mike")}
	it := tenant.NewIterator(store, zap.NewNop())

	var visited []string
	_, err := it.ForEach(context.Background(), func(ctx context.Context, tn domain.Tenant) error {
		visited = append(visited, tn.ID)
		return nil
	}, tenant.NewOptions())

	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mike", "zulu"}, visited)
	assert.Equal(t, 1, store.calls, "tenants queried exactly once")
}

func TestForEach_StopOnError(t *testing.T) {
	store := &fakeStore{tenants: tenants("A", "B", "C")}
	it := tenant.NewIterator(store, zap.NewNop())

	boom := errors.New("nope")
	var visited int
	res, err := it.ForEach(context.Background(), func(ctx context.Context, tn domain.Tenant) error {
		visited++
		if tn.ID == "B" {
			return boom
		}
		return nil
	}, tenant.NewOptions().StopOnError())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, visited)
	assert.Len(t, res.Outcomes, 2)
}

func TestForEach_PerTenantTimeout(t *testing.T) {
	store := &fakeStore{tenants: tenants("slow")}
	it := tenant.NewIterator(store, zap.NewNop())

	res, err := it.ForEach(context.Background(), func(ctx context.Context, tn domain.Tenant) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	}, tenant.NewOptions().PerTenantTimeout(10*time.Millisecond))

	require.NoError(t, err)
	require.Len(t, res.Failed(), 1)
	assert.ErrorIs(t, res.Failed()[0].Err, context.DeadlineExceeded)
}

func TestForEach_ListFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	it := tenant.NewIterator(store, zap.NewNop())

	_, err := it.ForEach(context.Background(), func(ctx context.Context, tn domain.Tenant) error {
		return nil
	}, tenant.NewOptions())
	require.Error(t, err)
}

func TestForEach_CancelledContextStopsIteration(t *testing.T) {
	store := &fakeStore{tenants: tenants("A", "B", "C")}
	it := tenant.NewIterator(store, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	var visited int
	res, err := it.ForEach(ctx, func(ctx context.Context, tn domain.Tenant) error {
		visited++
		cancel()
		return nil
	}, tenant.NewOptions())

	require.Error(t, err)
	assert.Equal(t, 1, visited)
	assert.Len(t, res.Outcomes, 1)
}
