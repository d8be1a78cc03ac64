package scheduler_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/domain"
	"github.com/trackfleet/logistics-core/internal/scheduler"
)

func noopHandler(ctx context.Context) error { return nil }

func TestRegistry_Register_Duplicate(t *testing.T) {
	reg := scheduler.NewRegistry(zap.NewNop())

	desc := scheduler.NewJob("dup", "0 1 * * *").Handler(noopHandler).Build()
	require.NoError(t, reg.Register(desc))

	err := reg.Register(desc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDuplicateJob))
}

func TestRegistry_Register_InvalidSchedule(t *testing.T) {
	reg := scheduler.NewRegistry(zap.NewNop())

	err := reg.Register(scheduler.NewJob("bad", "not a cron").Handler(noopHandler).Build())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidSchedule))
}

func TestRegistry_Register_MissingHandler(t *testing.T) {
	reg := scheduler.NewRegistry(zap.NewNop())
	err := reg.Register(scheduler.NewJob("hollow", "0 1 * * *").Build())
	require.Error(t, err)
}

func TestRegistry_EnablePredicateEvaluatedAtRegistration(t *testing.T) {
	reg := scheduler.NewRegistry(zap.NewNop())

	gate := false
	require.NoError(t, reg.Register(
		scheduler.NewJob("gated", "0 1 * * *").
			Handler(noopHandler).
			EnabledIf(func() bool { return gate }).
			Build(),
	))

	// Flipping the predicate source after registration changes nothing.
	gate = true
	list := reg.List()
	require.Len(t, list, 1)
	assert.False(t, list[0].Enabled)
}

func TestRegistry_AdminOpsIdempotent(t *testing.T) {
	reg := scheduler.NewRegistry(zap.NewNop())
	require.NoError(t, reg.Register(
		scheduler.NewJob("ops", "0 1 * * *").Handler(noopHandler).Build(),
	))

	require.NoError(t, reg.Pause("ops"))
	require.NoError(t, reg.Pause("ops"))
	assert.Equal(t, scheduler.StatePaused, reg.List()[0].State)

	require.NoError(t, reg.Resume("ops"))
	require.NoError(t, reg.Resume("ops"))
	assert.Equal(t, scheduler.StateIdle, reg.List()[0].State)

	require.NoError(t, reg.Disable("ops"))
	require.NoError(t, reg.Disable("ops"))
	assert.False(t, reg.List()[0].Enabled)

	require.NoError(t, reg.Enable("ops"))
	assert.True(t, reg.List()[0].Enabled)
}

func TestRegistry_AdminOpsUnknownJob(t *testing.T) {
	reg := scheduler.NewRegistry(zap.NewNop())

	for _, op := range []func(string) error{reg.Enable, reg.Disable, reg.Pause, reg.Resume} {
		err := op("ghost")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrUnknownJob))
	}
}

func TestRegistry_ListSortedWithLastRun(t *testing.T) {
	reg := scheduler.NewRegistry(zap.NewNop())
	sched := scheduler.New(reg, scheduler.SystemClock(), 0, zap.NewNop(), scheduler.Hooks{})

	require.NoError(t, reg.Register(scheduler.NewJob("zeta", "0 1 * * *").Handler(noopHandler).Build()))
	require.NoError(t, reg.Register(scheduler.NewJob("alpha", "0 2 * * *").Handler(noopHandler).Build()))

	run, err := sched.RunNow(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, scheduler.OutcomeOK, run.Outcome)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "zeta", list[1].Name)
	require.NotNil(t, list[0].LastRun)
	assert.Equal(t, scheduler.OutcomeOK, list[0].LastRun.Outcome)
	assert.Nil(t, list[1].LastRun)
}
