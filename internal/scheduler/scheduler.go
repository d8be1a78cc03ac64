// Package scheduler drives registered jobs on their cron cadence.
//
// Exactly one Scheduler runs per process. It is a single coordinator
// goroutine: it never blocks on store I/O itself, it only computes the
// earliest next-fire instant, sleeps on a logical timer until then, and
// launches handlers on their own worker goroutines through the registry's
// single-flight gate.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultGrace is how long shutdown waits for cancelled handlers to unwind.
const DefaultGrace = 30 * time.Second

// Hooks carries the metric callbacks injected by main. Using a struct keeps
// the constructor signature clean and the scheduler metrics-agnostic.
type Hooks struct {
	OnRun func(run JobRun)
}

// Scheduler fires registered jobs at their scheduled instants.
type Scheduler struct {
	reg    *Registry
	clock  Clock
	grace  time.Duration
	logger *zap.Logger
	hooks  Hooks

	wake chan struct{}
	wg   sync.WaitGroup
}

func New(reg *Registry, clock Clock, grace time.Duration, logger *zap.Logger, hooks Hooks) *Scheduler {
	if clock == nil {
		clock = SystemClock()
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	if hooks.OnRun == nil {
		hooks.OnRun = func(JobRun) {}
	}
	return &Scheduler{
		reg:    reg,
		clock:  clock,
		grace:  grace,
		logger: logger.With(zap.String("component", "scheduler")),
		hooks:  hooks,
		wake:   make(chan struct{}, 1),
	}
}

// Wake nudges the coordinator to recompute its timer. Called after admin
// operations that change the schedule surface (enable, resume).
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled, firing due jobs as their instants
// arrive. On cancellation it stops accepting triggers, cancels running
// handlers (they share ctx) and waits up to the grace window for them.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", zap.Duration("grace", s.grace))

	for {
		now := s.clock.Now()
		due, next := s.reg.collectDue(now)
		for _, idx := range due {
			s.trigger(ctx, idx)
		}

		var timer <-chan time.Time
		if !next.IsZero() {
			d := next.Sub(s.clock.Now())
			if d < 0 {
				d = 0
			}
			timer = s.clock.After(d)
		}

		select {
		case <-ctx.Done():
			s.drain()
			return
		case <-s.wake:
		case <-timer:
		}
	}
}

// drain waits for in-flight handlers after shutdown cancellation.
func (s *Scheduler) drain() {
	s.logger.Info("scheduler stopping, waiting for running jobs",
		zap.Duration("grace", s.grace))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped cleanly")
	case <-time.After(s.grace):
		s.logger.Warn("grace window elapsed with jobs still running")
	}
}

// trigger requests the single-flight gate and launches a worker on success.
func (s *Scheduler) trigger(ctx context.Context, idx int) {
	switch s.reg.acquire(idx) {
	case gateSkipped:
		run := s.skippedRun(idx)
		s.finishRun(idx, run)
	case gateParked:
		// queue-one: the active run picks this up on release.
	case gateStarted:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runSlot(ctx, idx)
		}()
	}
}

// runSlot executes the slot's handler, then keeps the gate if a parked
// queue-one trigger is waiting.
func (s *Scheduler) runSlot(ctx context.Context, idx int) {
	for {
		run := s.execute(ctx, idx)
		s.finishRun(idx, run)
		if !s.reg.release(idx) {
			return
		}
	}
}

// RunNow synchronously triggers the named job through the same single-flight
// gate the scheduler uses. It bypasses pause. A held gate yields a skipped
// run, mirroring a scheduled tick.
func (s *Scheduler) RunNow(ctx context.Context, name string) (JobRun, error) {
	idx, err := s.reg.lookup(name)
	if err != nil {
		return JobRun{}, err
	}

	switch s.reg.acquire(idx) {
	case gateSkipped, gateParked:
		run := s.skippedRun(idx)
		s.finishRun(idx, run)
		return run, nil
	}

	run := s.execute(ctx, idx)
	s.finishRun(idx, run)
	if s.reg.release(idx) {
		// A queue-one trigger parked while we ran; serve it asynchronously.
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runSlot(ctx, idx)
		}()
	}
	return run, nil
}

// execute runs one handler invocation under the per-job timeout with the
// top-level guard: a panic or error is confined to this run's record.
func (s *Scheduler) execute(ctx context.Context, idx int) JobRun {
	desc := s.reg.descriptor(idx)
	started := s.clock.Now()

	runCtx, cancel := context.WithTimeout(ctx, desc.Timeout)
	err := s.safeCall(runCtx, desc.Name, desc.Handler)
	cancel()

	finished := s.clock.Now()
	run := JobRun{
		JobName:    desc.Name,
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   finished.Sub(started),
	}
	switch {
	case err == nil:
		run.Outcome = OutcomeOK
	case errors.Is(err, context.DeadlineExceeded):
		run.Outcome = OutcomeTimedOut
		run.Error = err.Error()
	default:
		run.Outcome = OutcomeFailed
		run.Error = err.Error()
	}
	return run
}

// safeCall invokes the handler and converts a panic into an error so a
// failing job never halts the scheduler.
func (s *Scheduler) safeCall(ctx context.Context, name string, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.logger.Error("job handler panicked",
				zap.String("job", name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	return h(ctx)
}

func (s *Scheduler) skippedRun(idx int) JobRun {
	now := s.clock.Now()
	return JobRun{
		JobName:    s.reg.descriptor(idx).Name,
		StartedAt:  now,
		FinishedAt: now,
		Outcome:    OutcomeSkipped,
	}
}

// finishRun records the run on the slot, logs it, and feeds the metric hook.
func (s *Scheduler) finishRun(idx int, run JobRun) {
	s.reg.record(idx, run)
	s.hooks.OnRun(run)

	fields := []zap.Field{
		zap.String("job", run.JobName),
		zap.String("outcome", string(run.Outcome)),
		zap.Duration("duration", run.Duration),
	}
	switch run.Outcome {
	case OutcomeOK, OutcomeSkipped:
		s.logger.Info("job run finished", fields...)
	case OutcomeTimedOut:
		s.logger.Warn("job run timed out", fields...)
	default:
		s.logger.Error("job run failed", append(fields, zap.String("error", run.Error))...)
	}
}
