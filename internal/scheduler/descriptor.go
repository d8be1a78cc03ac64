package scheduler

import (
	"context"
	"time"
)

// ConcurrencyPolicy decides what happens when a job's schedule fires while a
// previous run is still in flight.
type ConcurrencyPolicy int

const (
	// SkipIfRunning records the tick as skipped and moves on. Default.
	SkipIfRunning ConcurrencyPolicy = iota
	// QueueOne parks at most one pending trigger; further ticks collapse
	// into it.
	QueueOne
	// AllowConcurrent launches overlapping runs in parallel. Jobs that
	// share a Redis key under this policy rely on Redis list operations
	// being atomic; anything else needs its own lock.
	AllowConcurrent
)

func (p ConcurrencyPolicy) String() string {
	switch p {
	case SkipIfRunning:
		return "skip-if-running"
	case QueueOne:
		return "queue-one"
	case AllowConcurrent:
		return "allow-concurrent"
	}
	return "unknown"
}

// Handler is the unit of work a job performs. It must honour ctx
// cancellation: the scheduler cancels it on timeout and on shutdown.
type Handler func(ctx context.Context) error

// DefaultTimeout bounds a single run when the descriptor does not override it.
const DefaultTimeout = 5 * time.Minute

// JobDescriptor is the immutable registration record for one job.
type JobDescriptor struct {
	Name       string
	Expression string
	Timezone   string
	Handler    Handler
	Timeout    time.Duration
	Policy     ConcurrencyPolicy
	// EnabledIf is evaluated once, at registration. A nil predicate
	// registers the job enabled.
	EnabledIf func() bool
}

// JobBuilder assembles a JobDescriptor with enumerated options.
type JobBuilder struct {
	d JobDescriptor
}

// NewJob starts a descriptor for name firing on the given 5-field cron
// expression. Timezone defaults to UTC, timeout to DefaultTimeout, policy
// to SkipIfRunning.
func NewJob(name, expression string) *JobBuilder {
	return &JobBuilder{d: JobDescriptor{
		Name:       name,
		Expression: expression,
		Timezone:   "UTC",
		Timeout:    DefaultTimeout,
		Policy:     SkipIfRunning,
	}}
}

func (b *JobBuilder) Timezone(tz string) *JobBuilder {
	b.d.Timezone = tz
	return b
}

func (b *JobBuilder) Handler(h Handler) *JobBuilder {
	b.d.Handler = h
	return b
}

func (b *JobBuilder) Timeout(d time.Duration) *JobBuilder {
	b.d.Timeout = d
	return b
}

func (b *JobBuilder) Policy(p ConcurrencyPolicy) *JobBuilder {
	b.d.Policy = p
	return b
}

func (b *JobBuilder) EnabledIf(pred func() bool) *JobBuilder {
	b.d.EnabledIf = pred
	return b
}

// Build finalises the descriptor. Validation happens at registration, where
// the expression is compiled against the timezone.
func (b *JobBuilder) Build() JobDescriptor {
	return b.d
}
