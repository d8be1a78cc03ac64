// Package tenant partitions per-tenant work into bounded batches so one
// company cannot starve another in a scheduled cycle.
package tenant

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/domain"
)

// Store lists the tenants an iteration walks. Queried exactly once per
// invocation.
type Store interface {
	ListActive(ctx context.Context) ([]domain.Tenant, error)
}

// Work is the per-tenant unit. The ctx it receives carries the per-tenant
// timeout and must be passed to every store call.
type Work func(ctx context.Context, t domain.Tenant) error

// DefaultBatchSize bounds sub-batch paging inside job handlers.
const DefaultBatchSize = 100

// MinPerTenantTimeout is the floor for the derived per-tenant budget.
const MinPerTenantTimeout = 2 * time.Second

// Options bounds one iteration. Construct with NewOptions.
type Options struct {
	batchSize        int
	perTenantTimeout time.Duration
	continueOnError  bool
}

// NewOptions returns the defaults every periodic job starts from:
// batch size 100, derived per-tenant timeout, continue on error.
func NewOptions() Options {
	return Options{
		batchSize:       DefaultBatchSize,
		continueOnError: true,
	}
}

func (o Options) BatchSize(n int) Options {
	if n > 0 {
		o.batchSize = n
	}
	return o
}

func (o Options) PerTenantTimeout(d time.Duration) Options {
	o.perTenantTimeout = d
	return o
}

// StopOnError makes the first tenant failure abort the iteration.
// Periodic jobs never use this; admin-triggered backfills may.
func (o Options) StopOnError() Options {
	o.continueOnError = false
	return o
}

// Batch returns the configured sub-batch size for handlers that page
// through per-tenant rows.
func (o Options) Batch() int { return o.batchSize }

// Outcome is the captured result for one tenant.
type Outcome struct {
	Tenant domain.Tenant
	Err    error
}

// Result aggregates per-tenant outcomes. A failed tenant never fails the
// iteration as a whole unless StopOnError was set.
type Result struct {
	Outcomes []Outcome
}

// Failed returns the outcomes that carry an error.
func (r Result) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Iterator walks tenants with bounded batches and isolated failures.
type Iterator struct {
	store  Store
	logger *zap.Logger
}

func NewIterator(store Store, logger *zap.Logger) *Iterator {
	return &Iterator{
		store:  store,
		logger: logger.With(zap.String("component", "tenant_iterator")),
	}
}

// ForEach queries tenants once, orders them by id, and invokes work for
// each under its own timeout. Per-tenant failures are captured in the
// result; the returned error is non-nil only when the tenant query itself
// fails, when ctx is cancelled mid-iteration, or when StopOnError tripped.
func (it *Iterator) ForEach(ctx context.Context, work Work, opts Options) (Result, error) {
	tenants, err := it.store.ListActive(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list tenants: %w", err)
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].ID < tenants[j].ID })

	budget := opts.perTenantTimeout
	if budget <= 0 {
		budget = deriveBudget(ctx, len(tenants))
	}

	res := Result{Outcomes: make([]Outcome, 0, len(tenants))}
	for i, t := range tenants {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		workErr := it.runOne(ctx, work, t, budget)
		res.Outcomes = append(res.Outcomes, Outcome{Tenant: t, Err: workErr})

		if workErr != nil {
			it.logger.Warn("tenant work failed",
				zap.String("tenant_id", t.ID),
				zap.Error(workErr),
			)
			if !opts.continueOnError {
				return res, fmt.Errorf("tenant %s: %w", t.ID, workErr)
			}
		}

		if (i+1)%opts.batchSize == 0 {
			it.logger.Debug("tenant batch complete",
				zap.Int("processed", i+1),
				zap.Int("total", len(tenants)),
			)
		}
	}
	return res, nil
}

func (it *Iterator) runOne(ctx context.Context, work Work, t domain.Tenant, budget time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	return work(tctx, t)
}

// deriveBudget splits the caller's remaining deadline evenly across
// tenants, clamped at the two second floor. Without a deadline the floor
// of the default job timeout is used per tenant.
func deriveBudget(ctx context.Context, n int) time.Duration {
	if n == 0 {
		return MinPerTenantTimeout
	}
	window := 5 * time.Minute
	if deadline, ok := ctx.Deadline(); ok {
		window = time.Until(deadline)
	}
	budget := window / time.Duration(n)
	if budget < MinPerTenantTimeout {
		return MinPerTenantTimeout
	}
	return budget
}
