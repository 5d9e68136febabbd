package event_test

import (
	"testing"
	"time"

	"github.com/tmorell/beacon/pkg/beacon/event"
)

func orderEvent(amount float64) event.Event {
	return event.New("order.created", "shop", orderCreated{OrderID: "o-1", Amount: amount, UserID: "u-1"})
}

func TestFieldConditions(t *testing.T) {
	big := orderEvent(150)
	small := orderEvent(50)

	tests := []struct {
		name string
		cond event.Condition
		evt  event.Event
		want bool
	}{
		{"greater than matches", event.GreaterThan("amount", 100), big, true},
		{"greater than rejects", event.GreaterThan("amount", 100), small, false},
		{"less than matches", event.LessThan("amount", 100), small, true},
		{"between matches", event.Between("amount", 100, 200), big, true},
		{"between rejects below", event.Between("amount", 100, 200), small, false},
		{"has field", event.HasField("order_id"), big, true},
		{"has field missing", event.HasField("nope"), big, false},
		{"field equals", event.FieldEquals("user_id", "u-1"), big, true},
		{"field equals mismatch", event.FieldEquals("user_id", "u-2"), big, false},
		{"source is", event.SourceIs("shop"), big, true},
		{"source is mismatch", event.SourceIs("scheduler"), big, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cond.Evaluate(tt.evt); got != tt.want {
				t.Errorf("%s: got %v, want %v", tt.cond.Name(), got, tt.want)
			}
		})
	}
}

func TestFieldContains(t *testing.T) {
	evt := event.NewMap("chat.message", "irc", map[string]any{"text": "Hello World"})

	if !event.FieldContains("text", "world").Evaluate(evt) {
		t.Error("expected case-insensitive substring match")
	}
	if event.FieldContains("text", "goodbye").Evaluate(evt) {
		t.Error("expected no match for absent substring")
	}
}

func TestConditionComposition(t *testing.T) {
	big := orderEvent(150)
	small := orderEvent(50)

	highValue := event.GreaterThan("amount", 100)
	fromShop := event.SourceIs("shop")

	and := event.And(highValue, fromShop)
	if !and.Evaluate(big) {
		t.Error("AND should match when both sides match")
	}
	if and.Evaluate(small) {
		t.Error("AND should reject when one side fails")
	}

	or := event.Or(highValue, event.SourceIs("scheduler"))
	if !or.Evaluate(big) {
		t.Error("OR should match when one side matches")
	}
	if or.Evaluate(small) {
		t.Error("OR should reject when both sides fail")
	}

	if event.Not(fromShop).Evaluate(big) {
		t.Error("NOT should invert a match")
	}
}

func TestConditionNames(t *testing.T) {
	a := event.NewCondition("a", func(event.Event) bool { return true })
	b := event.NewCondition("b", func(event.Event) bool { return false })

	if got := event.And(a, b).Name(); got != "(a AND b)" {
		t.Errorf("unexpected AND name %q", got)
	}
	if got := event.Or(a, b).Name(); got != "(a OR b)" {
		t.Errorf("unexpected OR name %q", got)
	}
	if got := event.Not(a).Name(); got != "NOT a" {
		t.Errorf("unexpected NOT name %q", got)
	}
}

func TestEvalFailClosed(t *testing.T) {
	panicky := event.NewCondition("boom", func(event.Event) bool {
		panic("condition bug")
	})

	if event.Eval(nil, panicky, orderEvent(1)) {
		t.Error("panicking condition should evaluate to false")
	}
}

func TestEvalNilCondition(t *testing.T) {
	if !event.Eval(nil, nil, orderEvent(1)) {
		t.Error("nil condition should pass everything")
	}
}

func TestCooldown(t *testing.T) {
	cond := event.Cooldown(50*time.Millisecond, func(evt event.Event) string {
		v, _ := event.Field(evt, "user_id")
		s, _ := v.(string)
		return s
	})

	evt := orderEvent(10)
	if !cond.Evaluate(evt) {
		t.Fatal("first evaluation should pass")
	}
	if cond.Evaluate(evt) {
		t.Error("second evaluation inside cooldown should fail")
	}

	time.Sleep(60 * time.Millisecond)
	if !cond.Evaluate(evt) {
		t.Error("evaluation after cooldown expiry should pass")
	}
}

func TestCooldownIsPerKey(t *testing.T) {
	cond := event.Cooldown(time.Minute, func(evt event.Event) string {
		v, _ := event.Field(evt, "user_id")
		s, _ := v.(string)
		return s
	})

	alice := event.NewMap("msg", "irc", map[string]any{"user_id": "alice"})
	bob := event.NewMap("msg", "irc", map[string]any{"user_id": "bob"})

	if !cond.Evaluate(alice) {
		t.Fatal("alice's first event should pass")
	}
	if !cond.Evaluate(bob) {
		t.Error("bob's first event should pass despite alice's cooldown")
	}
}
