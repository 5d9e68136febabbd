// Package schedule manufactures synthetic events on timers and publishes
// them through the event bus: fixed intervals, cron expressions, and
// reactive database watches.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Synthetic event types produced by the scheduler. Handlers register
// against these exactly like any external event type, so the same
// condition and dependency-injection machinery applies.
const (
	TypeInterval = "@interval"
	TypeCron     = "@cron"
	TypeWatch    = "@watch"
)

// Source is the provenance tag on every scheduler-produced event.
const Source = "scheduler"

// Interval executes on a fixed period.
type Interval struct {
	// Every is the period between executions. Required, positive.
	Every time.Duration

	// StartImmediately fires the first execution with zero delay.
	StartImmediately bool

	// AlignToMinute delays the first execution to the next minute boundary.
	AlignToMinute bool
}

// Every creates an interval schedule with the given period.
func Every(d time.Duration) Interval {
	return Interval{Every: d}
}

// EveryMinutes creates a minute-based interval schedule.
func EveryMinutes(minutes float64) Interval {
	return Interval{Every: time.Duration(minutes * float64(time.Minute))}
}

// EveryHours creates an hour-based interval schedule.
func EveryHours(hours float64) Interval {
	return Interval{Every: time.Duration(hours * float64(time.Hour))}
}

func (i Interval) validate() error {
	if i.Every <= 0 {
		return fmt.Errorf("interval period must be positive, got %s", i.Every)
	}
	return nil
}

// Cron executes on a standard 5-field cron expression
// (minute hour day-of-month month day-of-week), optionally in a named
// IANA timezone. An empty Timezone means local time.
type Cron struct {
	Expression string
	Timezone   string
}

// DailyAt creates a cron schedule firing daily at the given time.
func DailyAt(hour, minute int) Cron {
	return Cron{Expression: fmt.Sprintf("%d %d * * *", minute, hour)}
}

// WeeklyAt creates a cron schedule firing weekly on the given weekday.
func WeeklyAt(weekday time.Weekday, hour, minute int) Cron {
	return Cron{Expression: fmt.Sprintf("%d %d * * %d", minute, hour, int(weekday))}
}

// Hourly creates a cron schedule firing at the given minute past every hour.
func Hourly(minute int) Cron {
	return Cron{Expression: fmt.Sprintf("%d * * * *", minute)}
}

// parse validates the expression and timezone, returning the evaluable
// schedule.
func (c Cron) parse() (cron.Schedule, error) {
	loc := time.Local
	if c.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(c.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(c.Expression)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", c.Expression, err)
	}
	return location{sched: sched, loc: loc}, nil
}

// Next returns the first execution time after the given instant.
func (c Cron) Next(after time.Time) (time.Time, error) {
	sched, err := c.parse()
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}

// location evaluates a parsed cron schedule in a fixed timezone.
type location struct {
	sched cron.Schedule
	loc   *time.Location
}

func (l location) Next(t time.Time) time.Time {
	return l.sched.Next(t.In(l.loc))
}

// Watch polls a query and fires when its criteria are met.
type Watch struct {
	// Query is the statement executed against the Querier collaborator.
	Query string

	// Params are bound to the query's placeholders.
	Params []any

	// CheckInterval is the polling period. Required, positive.
	CheckInterval time.Duration

	// DetectChanges fires only when the result set differs from the
	// previous poll. When false, any non-empty result set fires.
	DetectChanges bool
}

// NewWatch creates a watch polling the query on the given interval.
func NewWatch(query string, checkInterval time.Duration) Watch {
	return Watch{Query: query, CheckInterval: checkInterval}
}

func (w Watch) validate() error {
	if w.Query == "" {
		return fmt.Errorf("watch query is required")
	}
	if w.CheckInterval <= 0 {
		return fmt.Errorf("watch check interval must be positive, got %s", w.CheckInterval)
	}
	return nil
}
