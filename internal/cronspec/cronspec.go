// Package cronspec parses crontab expressions and computes fire times.
//
// Supported forms are 5-field ("m h dom mon dow") and 6-field
// ("s m h dom mon dow") expressions. Descriptors like "@hourly" are not
// accepted; job schedules are always explicit field expressions.
package cronspec

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrInvalidFormat is returned when the expression does not have 5 or 6
	// whitespace-separated fields.
	ErrInvalidFormat = errors.New("cron expression must have 5 or 6 fields")

	// ErrInvalidField is returned when a field is out of range or malformed.
	ErrInvalidField = errors.New("invalid cron field")
)

// parser accepts an optional leading seconds field. Descriptors are
// deliberately excluded.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Trigger is a parsed cron expression bound to a timezone.
type Trigger struct {
	expr  string
	sched cron.Schedule
}

// Parse validates expr and binds it to loc. A nil loc means UTC.
func Parse(expr string, loc *time.Location) (Trigger, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return Trigger{}, fmt.Errorf("%w: empty expression", ErrInvalidFormat)
	}
	if n := len(strings.Fields(s)); n < 5 || n > 6 {
		return Trigger{}, fmt.Errorf("%w: got %d", ErrInvalidFormat, n)
	}
	if loc == nil {
		loc = time.UTC
	}

	// The parser binds the schedule to a location via a CRON_TZ prefix;
	// without it evaluation would happen in server-local time.
	sched, err := parser.Parse("CRON_TZ=" + loc.String() + " " + s)
	if err != nil {
		return Trigger{}, fmt.Errorf("%w: %v", ErrInvalidField, err)
	}
	return Trigger{expr: s, sched: sched}, nil
}

// Expr returns the normalized (trimmed) expression text.
func (t Trigger) Expr() string { return t.expr }

// NextAfter returns the first fire time strictly after from.
// ok is false when no future fire exists within the parser's search horizon
// (e.g. "0 0 30 2 *").
func (t Trigger) NextAfter(from time.Time) (time.Time, bool) {
	if t.sched == nil {
		return time.Time{}, false
	}
	next := t.sched.Next(from)
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}
