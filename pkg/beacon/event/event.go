// Package event defines the typed event model and the condition algebra
// used to filter event delivery.
//
// Events are immutable once created - any modification creates a new event.
// The event type string is the sole routing key; payloads are either a
// strongly-typed struct (domain events) or a map[string]any (ad-hoc events).
package event

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is the core interface for all events in the system.
type Event interface {
	// Identity
	ID() string     // Unique event identifier
	Type() string   // Event type (e.g., "order.created", "@interval")
	Source() string // Provenance tag (e.g., "scheduler", "twitch")

	// Metadata
	Timestamp() time.Time // When the event occurred

	// Payload
	Data() any         // Typed payload
	DataBytes() []byte // Serialized payload for the persistence hook
}

// Metadata contains common event metadata fields.
type Metadata struct {
	EventID     string    `json:"id"`
	EventType   string    `json:"type"`
	EventSource string    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
}

// BaseEvent provides a generic event implementation.
// T is the payload type for type-safe access.
type BaseEvent[T any] struct {
	Meta    Metadata `json:"metadata"`
	Payload T        `json:"payload"`

	// Cached serialization (computed lazily)
	cachedBytes []byte
}

// ID returns the unique event identifier.
func (e *BaseEvent[T]) ID() string {
	return e.Meta.EventID
}

// Type returns the event type.
func (e *BaseEvent[T]) Type() string {
	return e.Meta.EventType
}

// Source returns the event source.
func (e *BaseEvent[T]) Source() string {
	return e.Meta.EventSource
}

// Timestamp returns when the event occurred.
func (e *BaseEvent[T]) Timestamp() time.Time {
	return e.Meta.Timestamp
}

// Data returns the event payload.
func (e *BaseEvent[T]) Data() any {
	return e.Payload
}

// TypedData returns the strongly-typed payload.
func (e *BaseEvent[T]) TypedData() T {
	return e.Payload
}

// DataBytes returns the serialized payload.
// The result is cached for efficiency.
func (e *BaseEvent[T]) DataBytes() []byte {
	if e.cachedBytes == nil {
		// Best effort - errors are ignored for interface compliance
		e.cachedBytes, _ = json.Marshal(e.Payload)
	}
	return e.cachedBytes
}

// MarshalJSON implements json.Marshaler.
func (e *BaseEvent[T]) MarshalJSON() ([]byte, error) {
	type alias BaseEvent[T]
	return json.Marshal((*alias)(e))
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *BaseEvent[T]) UnmarshalJSON(data []byte) error {
	type alias BaseEvent[T]
	if err := json.Unmarshal(data, (*alias)(e)); err != nil {
		return err
	}
	e.cachedBytes = nil // Clear cache on unmarshal
	return nil
}

// Option configures event creation.
type Option func(*eventConfig)

type eventConfig struct {
	id        string
	timestamp time.Time
}

// WithEventID sets a specific event ID (default: auto-generated UUID).
func WithEventID(id string) Option {
	return func(cfg *eventConfig) {
		cfg.id = id
	}
}

// WithTimestamp sets a specific timestamp (default: time.Now()).
func WithTimestamp(t time.Time) Option {
	return func(cfg *eventConfig) {
		cfg.timestamp = t
	}
}

// New creates a new event with the given type, source, and payload.
func New[T any](eventType, source string, payload T, opts ...Option) *BaseEvent[T] {
	cfg := &eventConfig{
		id:        uuid.New().String(),
		timestamp: time.Now(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return &BaseEvent[T]{
		Meta: Metadata{
			EventID:     cfg.id,
			EventType:   eventType,
			EventSource: source,
			Timestamp:   cfg.timestamp,
		},
		Payload: payload,
	}
}

// NewMap creates an ad-hoc event with a map payload.
// Use this for simple events, testing, or when the schema is not known.
func NewMap(eventType, source string, data map[string]any, opts ...Option) *BaseEvent[map[string]any] {
	if data == nil {
		data = make(map[string]any)
	}
	return New(eventType, source, data, opts...)
}

// Field extracts a named field from an event payload.
//
// Map payloads are looked up by key. Struct payloads (or pointers to
// structs) are looked up by exported field name, falling back to the
// field's json tag. The second return is false when the field is absent.
func Field(evt Event, name string) (any, bool) {
	data := evt.Data()
	if data == nil {
		return nil, false
	}

	if m, ok := data.(map[string]any); ok {
		v, ok := m[name]
		return v, ok
	}

	v := reflect.ValueOf(data)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, false
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if f.Name == name || jsonTagName(f) == name {
			return v.Field(i).Interface(), true
		}
	}
	return nil, false
}

// jsonTagName returns the name portion of a field's json tag, if any.
func jsonTagName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" || tag == "-" {
		return ""
	}
	if idx := strings.Index(tag, ","); idx >= 0 {
		tag = tag[:idx]
	}
	return tag
}
