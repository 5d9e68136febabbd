package schedule

import (
	"fmt"
	"time"

	"github.com/tmorell/beacon/pkg/beacon/event"
)

// Tick is the payload of an @interval event.
type Tick struct {
	ExecutionTime    time.Time     `json:"execution_time"`
	ExecutionCount   int64         `json:"execution_count"`
	Every            time.Duration `json:"every"`
	StartImmediately bool          `json:"start_immediately"`
	AlignToMinute    bool          `json:"align_to_minute"`
}

// CronTick is the payload of a @cron event.
type CronTick struct {
	ExecutionTime  time.Time `json:"execution_time"`
	ExecutionCount int64     `json:"execution_count"`
	Expression     string    `json:"expression"`
	Timezone       string    `json:"timezone,omitempty"`
	ScheduledTime  time.Time `json:"scheduled_time"`
}

// WatchResult is the payload of a @watch event.
type WatchResult struct {
	ExecutionTime   time.Time        `json:"execution_time"`
	ExecutionCount  int64            `json:"execution_count"`
	Query           string           `json:"query"`
	Params          []any            `json:"params,omitempty"`
	CheckInterval   time.Duration    `json:"check_interval"`
	DetectChanges   bool             `json:"detect_changes"`
	Results         []map[string]any `json:"results"`
	PreviousResults []map[string]any `json:"previous_results,omitempty"`
	HasChanges      bool             `json:"has_changes"`
	ResultsCount    int              `json:"results_count"`
}

// executionTime extracts the execution timestamp from any scheduler payload.
func executionTime(evt event.Event) (time.Time, bool) {
	switch p := evt.Data().(type) {
	case Tick:
		return p.ExecutionTime, true
	case CronTick:
		return p.ExecutionTime, true
	case WatchResult:
		return p.ExecutionTime, true
	default:
		return time.Time{}, false
	}
}

// DuringHours matches scheduler events whose execution time falls within
// [start, end) in 24-hour format. A start greater than end spans midnight
// (e.g. 22-6).
func DuringHours(start, end int) event.Condition {
	return event.NewCondition(fmt.Sprintf("during_hours(%d-%d)", start, end), func(evt event.Event) bool {
		t, ok := executionTime(evt)
		if !ok {
			return false
		}
		hour := t.Hour()
		if start <= end {
			return hour >= start && hour < end
		}
		return hour >= start || hour < end
	})
}

// OnWeekdays matches scheduler events executing Monday through Friday.
func OnWeekdays() event.Condition {
	return event.NewCondition("on_weekdays", func(evt event.Event) bool {
		t, ok := executionTime(evt)
		if !ok {
			return false
		}
		wd := t.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	})
}

// OnWeekends matches scheduler events executing Saturday or Sunday.
func OnWeekends() event.Condition {
	return event.NewCondition("on_weekends", func(evt event.Event) bool {
		t, ok := executionTime(evt)
		if !ok {
			return false
		}
		wd := t.Weekday()
		return wd == time.Saturday || wd == time.Sunday
	})
}

// HasResults matches @watch events whose query returned any rows.
func HasResults() event.Condition {
	return event.NewCondition("has_results", func(evt event.Event) bool {
		p, ok := evt.Data().(WatchResult)
		return ok && len(p.Results) > 0
	})
}

// MinResults matches @watch events whose query returned at least n rows.
func MinResults(n int) event.Condition {
	return event.NewCondition(fmt.Sprintf("min_results(%d)", n), func(evt event.Event) bool {
		p, ok := evt.Data().(WatchResult)
		return ok && len(p.Results) >= n
	})
}

// ResultEquals matches @watch events whose first result row has the given
// field value.
func ResultEquals(field string, value any) event.Condition {
	return event.NewCondition(fmt.Sprintf("result_equals(%s, %v)", field, value), func(evt event.Event) bool {
		p, ok := evt.Data().(WatchResult)
		if !ok || len(p.Results) == 0 {
			return false
		}
		return p.Results[0][field] == value
	})
}
