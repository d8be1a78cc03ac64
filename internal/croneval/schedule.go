// Package croneval parses standard 5-field cron expressions in a fixed
// IANA timezone and yields next-fire instants.
//
// Evaluation is deterministic: the same (expression, timezone, after) always
// produces the identical instant. DST gaps are skipped forward and ambiguous
// local times fire exactly once; both behaviours come from the underlying
// robfig/cron schedule arithmetic, which works on local wall-clock fields.
package croneval

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/trackfleet/logistics-core/internal/domain"
)

// parser accepts exactly the standard 5 fields: minute hour dom month dow.
var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Schedule is a compiled cron expression bound to a timezone.
type Schedule struct {
	expr string
	loc  *time.Location
	spec cron.Schedule
}

// Parse compiles expr in the given IANA timezone. Rejections carry
// domain.ErrInvalidSchedule so registration surfaces a structured error.
func Parse(expr, tz string) (*Schedule, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q: %v", domain.ErrInvalidSchedule, tz, err)
	}
	spec, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", domain.ErrInvalidSchedule, expr, err)
	}
	return &Schedule{expr: expr, loc: loc, spec: spec}, nil
}

// Next returns the first instant strictly after t at which the schedule
// fires, evaluated in the schedule's timezone.
func (s *Schedule) Next(after time.Time) time.Time {
	return s.spec.Next(after.In(s.loc))
}

// Expression returns the original cron expression.
func (s *Schedule) Expression() string { return s.expr }

// Location returns the timezone the schedule evaluates in.
func (s *Schedule) Location() *time.Location { return s.loc }

func (s *Schedule) String() string {
	return s.expr + " @ " + s.loc.String()
}
