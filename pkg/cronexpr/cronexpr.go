// Package cronexpr computes schedule fire times from cron expressions.
//
// Five-field (minute precision) and six-field (leading seconds) expressions are
// accepted, as are descriptors such as @daily. "?" is accepted in the
// day-of-month and day-of-week fields. Evaluation happens in the schedule's
// IANA time zone so that local wall-clock times follow daylight-saving rules:
// a 02:00 schedule fires once on a fall-back day and not at all on a
// spring-forward day.
package cronexpr

import (
	"strings"
	"time"

	"automation-scheduler/pkg/errors"

	"github.com/robfig/cron/v3"
)

// Horizon bounds the search for the next occurrence. Expressions that never
// fire inside it (for example 30 February) are rejected.
const Horizon = 5 * 365 * 24 * time.Hour

// ErrNoFutureOccurrence is returned when an expression has no occurrence
// within Horizon. It is also marked as a schedule configuration error.
var ErrNoFutureOccurrence = errors.New("cron expression has no future occurrence")

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Schedule is a parsed expression bound to a location.
type Schedule struct {
	expr     string
	location *time.Location
	spec     cron.Schedule
}

// Parse parses expr for the given zone id. An empty zone means UTC.
func Parse(expr, timezone string) (*Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.Mark(errors.New("cron expression is empty"), errors.ErrScheduleConfiguration)
	}
	if strings.HasPrefix(expr, "TZ=") || strings.HasPrefix(expr, "CRON_TZ=") {
		return nil, errors.Mark(errors.Newf("cron expression %q must not embed a time zone", expr), errors.ErrScheduleConfiguration)
	}

	loc, err := LoadLocation(timezone)
	if err != nil {
		return nil, err
	}

	spec, err := parser.Parse(expr)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "parse cron expression %q", expr), errors.ErrScheduleConfiguration)
	}
	return &Schedule{expr: expr, location: loc, spec: spec}, nil
}

// LoadLocation resolves an IANA zone id. An empty id means UTC.
func LoadLocation(timezone string) (*time.Location, error) {
	if strings.TrimSpace(timezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "load time zone %q", timezone), errors.ErrScheduleConfiguration)
	}
	return loc, nil
}

// Next returns the first fire time strictly after ref, in UTC.
func (s *Schedule) Next(ref time.Time) (time.Time, error) {
	next := s.spec.Next(ref.In(s.location))
	if next.IsZero() || next.Sub(ref) > Horizon {
		return time.Time{}, errors.Mark(
			errors.Wrapf(ErrNoFutureOccurrence, "expression %q after %s", s.expr, ref.UTC().Format(time.RFC3339)),
			errors.ErrScheduleConfiguration,
		)
	}
	return next.UTC(), nil
}

// Location returns the zone the schedule is evaluated in.
func (s *Schedule) Location() *time.Location {
	return s.location
}

// Next parses expr and returns its first fire time strictly after ref, in UTC.
func Next(expr, timezone string, ref time.Time) (time.Time, error) {
	s, err := Parse(expr, timezone)
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(ref)
}

// Validate checks that expr parses in timezone and fires at least once after ref.
func Validate(expr, timezone string, ref time.Time) error {
	_, err := Next(expr, timezone, ref)
	return err
}
