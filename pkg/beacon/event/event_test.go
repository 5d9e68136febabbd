package event_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/tmorell/beacon/pkg/beacon/event"
)

type orderCreated struct {
	OrderID string  `json:"order_id"`
	Amount  float64 `json:"amount"`
	UserID  string  `json:"user_id"`
}

func TestNewEvent(t *testing.T) {
	evt := event.New("order.created", "shop", orderCreated{OrderID: "o-1", Amount: 42})

	if evt.Type() != "order.created" {
		t.Errorf("expected type order.created, got %s", evt.Type())
	}
	if evt.Source() != "shop" {
		t.Errorf("expected source shop, got %s", evt.Source())
	}
	if evt.ID() == "" {
		t.Error("expected non-empty event ID")
	}
	if evt.Timestamp().IsZero() {
		t.Error("expected non-zero timestamp")
	}

	payload := evt.TypedData()
	if payload.OrderID != "o-1" || payload.Amount != 42 {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestEventIDsAreUnique(t *testing.T) {
	a := event.New("x", "test", 1)
	b := event.New("x", "test", 1)
	if a.ID() == b.ID() {
		t.Errorf("expected distinct IDs, both were %s", a.ID())
	}
}

func TestEventOptions(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	evt := event.New("x", "test", "payload",
		event.WithEventID("fixed-id"),
		event.WithTimestamp(ts),
	)
	if evt.ID() != "fixed-id" {
		t.Errorf("expected fixed-id, got %s", evt.ID())
	}
	if !evt.Timestamp().Equal(ts) {
		t.Errorf("expected %v, got %v", ts, evt.Timestamp())
	}
}

func TestDataBytes(t *testing.T) {
	evt := event.New("order.created", "shop", orderCreated{OrderID: "o-2", Amount: 7})

	data := evt.DataBytes()
	if len(data) == 0 {
		t.Fatal("expected non-empty data bytes")
	}

	var decoded orderCreated
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.OrderID != "o-2" {
		t.Errorf("expected o-2, got %s", decoded.OrderID)
	}
}

func TestEventJSONRoundTrip(t *testing.T) {
	evt := event.New("order.created", "shop", orderCreated{OrderID: "o-3", Amount: 9.5})

	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded event.BaseEvent[orderCreated]
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.Type() != evt.Type() {
		t.Errorf("type mismatch: %s vs %s", decoded.Type(), evt.Type())
	}
	if decoded.ID() != evt.ID() {
		t.Errorf("id mismatch: %s vs %s", decoded.ID(), evt.ID())
	}
	if decoded.TypedData().Amount != 9.5 {
		t.Errorf("unexpected amount %v", decoded.TypedData().Amount)
	}
}

func TestFieldOnStruct(t *testing.T) {
	evt := event.New("order.created", "shop", orderCreated{OrderID: "o-4", Amount: 150, UserID: "u-1"})

	v, ok := event.Field(evt, "amount")
	if !ok {
		t.Fatal("expected amount field to exist")
	}
	if v.(float64) != 150 {
		t.Errorf("expected 150, got %v", v)
	}

	v, ok = event.Field(evt, "OrderID")
	if !ok || v.(string) != "o-4" {
		t.Errorf("expected o-4 via struct field name, got %v (ok=%v)", v, ok)
	}

	if _, ok := event.Field(evt, "missing"); ok {
		t.Error("expected missing field lookup to fail")
	}
}

func TestFieldOnMap(t *testing.T) {
	evt := event.NewMap("chat.message", "irc", map[string]any{
		"user": "alice",
		"text": "hello",
	})

	v, ok := event.Field(evt, "user")
	if !ok || v.(string) != "alice" {
		t.Errorf("expected alice, got %v (ok=%v)", v, ok)
	}
}
