package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/croneval"
	"github.com/trackfleet/logistics-core/internal/domain"
)

// Outcome is the terminal state of one job run.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeFailed   Outcome = "failed"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeTimedOut Outcome = "timed_out"
)

// JobRun is the record of a single run. Runs are retained only as log
// records and as the slot's last-run snapshot for List().
type JobRun struct {
	JobName    string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    Outcome
	Duration   time.Duration
	Error      string
}

// JobState is the live status surfaced by List().
type JobState string

const (
	StateIdle    JobState = "idle"
	StateRunning JobState = "running"
	StatePaused  JobState = "paused"
)

// JobStatus is one row of the registry snapshot.
type JobStatus struct {
	Name       string
	Expression string
	Timezone   string
	Policy     ConcurrencyPolicy
	State      JobState
	Enabled    bool
	NextFire   time.Time
	LastRun    *JobRun
}

// jobSlot is the arena entry for one registered job. Running work refers to
// jobs by slot index, never by pointer.
type jobSlot struct {
	desc     JobDescriptor
	sched    *croneval.Schedule
	enabled  bool
	paused   bool
	pending  bool // queue-one: at most one parked trigger
	running  int
	nextFire time.Time
	lastRun  *JobRun
}

// Registry holds job descriptors by slot and owns the single-flight gate.
// It is the only shared mutable state in the scheduling core; every field
// of every slot is guarded by mu.
type Registry struct {
	mu     sync.Mutex
	slots  []*jobSlot
	index  map[string]int
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		index:  make(map[string]int),
		logger: logger.With(zap.String("component", "job_registry")),
	}
}

// Register validates and adds a descriptor. The enable predicate is
// evaluated exactly once, here. Descriptors are immutable afterwards.
func (r *Registry) Register(desc JobDescriptor) error {
	if desc.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if desc.Handler == nil {
		return fmt.Errorf("job %q: handler is required", desc.Name)
	}
	sched, err := croneval.Parse(desc.Expression, desc.Timezone)
	if err != nil {
		return fmt.Errorf("job %q: %w", desc.Name, err)
	}
	if desc.Timeout <= 0 {
		desc.Timeout = DefaultTimeout
	}

	enabled := true
	if desc.EnabledIf != nil {
		enabled = desc.EnabledIf()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.index[desc.Name]; exists {
		return fmt.Errorf("job %q: %w", desc.Name, domain.ErrDuplicateJob)
	}
	r.slots = append(r.slots, &jobSlot{desc: desc, sched: sched, enabled: enabled})
	r.index[desc.Name] = len(r.slots) - 1

	r.logger.Info("job registered",
		zap.String("job", desc.Name),
		zap.String("schedule", sched.String()),
		zap.String("policy", desc.Policy.String()),
		zap.Bool("enabled", enabled),
	)
	return nil
}

// List returns a point-in-time snapshot of every job, sorted by name.
func (r *Registry) List() []JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]JobStatus, 0, len(r.slots))
	for _, s := range r.slots {
		state := StateIdle
		if s.paused {
			state = StatePaused
		}
		if s.running > 0 {
			state = StateRunning
		}
		st := JobStatus{
			Name:       s.desc.Name,
			Expression: s.desc.Expression,
			Timezone:   s.desc.Timezone,
			Policy:     s.desc.Policy,
			State:      state,
			Enabled:    s.enabled,
			NextFire:   s.nextFire,
		}
		if s.lastRun != nil {
			run := *s.lastRun
			st.LastRun = &run
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Enable, Disable, Pause and Resume are idempotent admin operations.

func (r *Registry) Enable(name string) error  { return r.setFlag(name, func(s *jobSlot) { s.enabled = true }) }
func (r *Registry) Disable(name string) error { return r.setFlag(name, func(s *jobSlot) { s.enabled = false }) }
func (r *Registry) Pause(name string) error   { return r.setFlag(name, func(s *jobSlot) { s.paused = true }) }
func (r *Registry) Resume(name string) error  { return r.setFlag(name, func(s *jobSlot) { s.paused = false }) }

func (r *Registry) setFlag(name string, apply func(*jobSlot)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[name]
	if !ok {
		return fmt.Errorf("job %q: %w", name, domain.ErrUnknownJob)
	}
	apply(r.slots[i])
	return nil
}

func (r *Registry) lookup(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[name]
	if !ok {
		return 0, fmt.Errorf("job %q: %w", name, domain.ErrUnknownJob)
	}
	return i, nil
}

func (r *Registry) descriptor(idx int) JobDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[idx].desc
}

func (r *Registry) isEnabled(idx int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[idx].enabled
}

// collectDue advances every enabled job's next-fire cursor up to now and
// returns one due entry per elapsed tick, plus the earliest upcoming fire
// instant across all jobs. Paused jobs have their cursor advanced silently.
func (r *Registry) collectDue(now time.Time) (due []int, next time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.slots {
		if !s.enabled {
			continue
		}
		if s.nextFire.IsZero() {
			s.nextFire = s.sched.Next(now)
		}
		for !s.nextFire.After(now) {
			if !s.paused {
				due = append(due, i)
			}
			s.nextFire = s.sched.Next(s.nextFire)
		}
		if next.IsZero() || s.nextFire.Before(next) {
			next = s.nextFire
		}
	}
	return due, next
}

// gateResult is the outcome of one single-flight acquisition attempt.
type gateResult int

const (
	gateStarted gateResult = iota
	gateSkipped
	gateParked
)

// acquire requests the single-flight gate for the slot, applying the
// descriptor's concurrency policy.
func (r *Registry) acquire(idx int) gateResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.slots[idx]
	if s.running > 0 {
		switch s.desc.Policy {
		case SkipIfRunning:
			return gateSkipped
		case QueueOne:
			s.pending = true // collapse further ticks into one
			return gateParked
		}
	}
	s.running++
	return gateStarted
}

// release returns the gate. When a parked queue-one trigger is waiting and
// this was the last active run, the gate transfers to it and release
// reports true: the caller must execute one more run.
func (r *Registry) release(idx int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.slots[idx]
	s.running--
	if s.pending && s.running == 0 {
		s.pending = false
		s.running++
		return true
	}
	return false
}

// record stores the run as the slot's last-run snapshot.
func (r *Registry) record(idx int, run JobRun) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[idx].lastRun = &run
}
