package event

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Condition is a named predicate over an event.
//
// Conditions are pure from the dispatcher's point of view: a predicate that
// needs mutable state (cooldown maps, counters) owns and synchronizes that
// state itself. Evaluation must never escape the bus boundary - callers go
// through Eval, which treats a panic as a non-match.
type Condition interface {
	// Name returns a human-readable name for debugging.
	Name() string

	// Evaluate checks the event against this condition.
	Evaluate(evt Event) bool
}

// condition adapts a check function to the Condition interface.
type condition struct {
	name  string
	check func(Event) bool
}

func (c *condition) Name() string { return c.name }

func (c *condition) Evaluate(evt Event) bool { return c.check(evt) }

// NewCondition creates a condition from a check function.
func NewCondition(name string, check func(Event) bool) Condition {
	if name == "" {
		name = "unnamed_condition"
	}
	return &condition{name: name, check: check}
}

// Eval evaluates a condition fail-closed: a panic inside the check is
// recovered, logged, and treated as false. A nil condition matches
// everything. The logger may be nil.
func Eval(logger *slog.Logger, c Condition, evt Event) (result bool) {
	if c == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			if logger != nil {
				logger.Error("condition panicked",
					slog.String("condition", c.Name()),
					slog.String("event_type", evt.Type()),
					slog.Any("panic", r),
				)
			}
			result = false
		}
	}()
	return c.Evaluate(evt)
}

// And combines two conditions; both must pass. Evaluation short-circuits.
func And(a, b Condition) Condition {
	return NewCondition(fmt.Sprintf("(%s AND %s)", a.Name(), b.Name()), func(evt Event) bool {
		return a.Evaluate(evt) && b.Evaluate(evt)
	})
}

// Or combines two conditions; either may pass. Evaluation short-circuits.
func Or(a, b Condition) Condition {
	return NewCondition(fmt.Sprintf("(%s OR %s)", a.Name(), b.Name()), func(evt Event) bool {
		return a.Evaluate(evt) || b.Evaluate(evt)
	})
}

// Not negates a condition.
func Not(c Condition) Condition {
	return NewCondition("NOT "+c.Name(), func(evt Event) bool {
		return !c.Evaluate(evt)
	})
}

// Always matches every event. Useful as a default.
func Always() Condition {
	return NewCondition("always_true", func(Event) bool { return true })
}

// Never matches no event. Useful for disabling handlers.
func Never() Condition {
	return NewCondition("always_false", func(Event) bool { return false })
}

// SourceIs checks the event's source tag.
func SourceIs(source string) Condition {
	return NewCondition(fmt.Sprintf("source_is(%s)", source), func(evt Event) bool {
		return evt.Source() == source
	})
}

// HasField checks that the payload carries a named field.
func HasField(field string) Condition {
	return NewCondition(fmt.Sprintf("has_field(%s)", field), func(evt Event) bool {
		_, ok := Field(evt, field)
		return ok
	})
}

// FieldEquals checks a payload field for equality.
func FieldEquals(field string, value any) Condition {
	return NewCondition(fmt.Sprintf("equals(%s, %v)", field, value), func(evt Event) bool {
		v, ok := Field(evt, field)
		if !ok {
			return false
		}
		return v == value
	})
}

// FieldContains checks a string payload field for a substring
// (case-insensitive).
func FieldContains(field, substring string) Condition {
	lower := strings.ToLower(substring)
	return NewCondition(fmt.Sprintf("contains(%s, %s)", field, substring), func(evt Event) bool {
		v, ok := Field(evt, field)
		if !ok {
			return false
		}
		s, ok := v.(string)
		if !ok {
			return false
		}
		return strings.Contains(strings.ToLower(s), lower)
	})
}

// GreaterThan checks a numeric payload field against a lower bound.
func GreaterThan(field string, value float64) Condition {
	return NewCondition(fmt.Sprintf("greater_than(%s, %v)", field, value), func(evt Event) bool {
		f, ok := numericField(evt, field)
		return ok && f > value
	})
}

// LessThan checks a numeric payload field against an upper bound.
func LessThan(field string, value float64) Condition {
	return NewCondition(fmt.Sprintf("less_than(%s, %v)", field, value), func(evt Event) bool {
		f, ok := numericField(evt, field)
		return ok && f < value
	})
}

// Between checks a numeric payload field against an inclusive range.
func Between(field string, minVal, maxVal float64) Condition {
	return NewCondition(fmt.Sprintf("between(%s, %v, %v)", field, minVal, maxVal), func(evt Event) bool {
		f, ok := numericField(evt, field)
		return ok && f >= minVal && f <= maxVal
	})
}

// Cooldown passes at most once per key within the given period.
//
// The key function maps an event to a cooldown bucket (typically a user or
// source identifier). State is owned by the condition and guarded by its
// own mutex, so a single Cooldown value may back registrations on several
// event types.
func Cooldown(period time.Duration, keyFn func(Event) string) Condition {
	var (
		mu   sync.Mutex
		last = make(map[string]time.Time)
	)
	return NewCondition(fmt.Sprintf("cooldown(%s)", period), func(evt Event) bool {
		key := keyFn(evt)

		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if prev, ok := last[key]; ok && now.Sub(prev) < period {
			return false
		}
		last[key] = now
		return true
	})
}

// numericField extracts a payload field coerced to float64.
func numericField(evt Event, field string) (float64, bool) {
	v, ok := Field(evt, field)
	if !ok {
		return 0, false
	}
	return toFloat64(v)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
