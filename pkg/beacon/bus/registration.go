package bus

import (
	"fmt"
	"sort"

	"github.com/tmorell/beacon/pkg/beacon/di"
	"github.com/tmorell/beacon/pkg/beacon/event"
)

// DefaultPriority is assigned to registrations that do not set one.
// Lower values run first.
const DefaultPriority = 100

// Registration is a stored handler binding: the inspected handler, its
// optional condition, priority, and provenance tag.
type Registration struct {
	eventType string
	spec      *di.HandlerSpec
	condition event.Condition
	priority  int
	module    string
	name      string
}

// Name returns the registration's handler name.
func (r *Registration) Name() string { return r.name }

// Priority returns the registration's priority (lower runs first).
func (r *Registration) Priority() int { return r.priority }

// Module returns the provenance tag supplied at registration, if any.
func (r *Registration) Module() string { return r.module }

// RegisterOption configures a registration.
type RegisterOption func(*Registration)

// WithCondition attaches a filter condition. The handler runs only when the
// condition evaluates true for the event; a panicking condition counts as
// false.
func WithCondition(c event.Condition) RegisterOption {
	return func(r *Registration) {
		r.condition = c
	}
}

// WithPriority sets the invocation priority (lower value runs first).
func WithPriority(p int) RegisterOption {
	return func(r *Registration) {
		r.priority = p
	}
}

// WithName overrides the handler name used in logs and stats.
func WithName(name string) RegisterOption {
	return func(r *Registration) {
		r.name = name
	}
}

// WithModule tags the registration with an explicit provenance tag for
// bulk unregistration via UnregisterModule.
func WithModule(tag string) RegisterOption {
	return func(r *Registration) {
		r.module = tag
	}
}

// Register inspects the handler function and stores a registration for the
// event type. A handler may register any number of times, including for the
// same event type; each matching registration fires once per event.
//
// Registration is expected to happen before Start, though later
// registration is tolerated.
func (b *Bus) Register(eventType string, handler any, opts ...RegisterOption) error {
	if eventType == "" {
		return fmt.Errorf("event type is required")
	}

	spec, err := di.Inspect(handler)
	if err != nil {
		return fmt.Errorf("register %q: %w", eventType, err)
	}
	if _, warning := di.Validate(handler); warning != "" && b.logger != nil {
		b.logger.Warn("handler registered with warning", "event_type", eventType, "warning", warning)
	}

	reg := &Registration{
		eventType: eventType,
		spec:      spec,
		priority:  DefaultPriority,
		name:      spec.Name,
	}
	for _, opt := range opts {
		opt(reg)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	regs := append(b.handlers[eventType], reg)
	// Stable sort keeps same-priority registrations in insertion order.
	sort.SliceStable(regs, func(i, j int) bool {
		return regs[i].priority < regs[j].priority
	})
	b.handlers[eventType] = regs

	if b.logger != nil {
		b.logger.Debug("handler registered",
			"event_type", eventType,
			"handler", reg.name,
			"priority", reg.priority,
			"style", spec.Style.String(),
			"dependencies", spec.DepCount(),
		)
	}
	return nil
}

// Unregister removes every registration of the given handler function for
// the event type. Handlers are matched by function identity.
func (b *Bus) Unregister(eventType string, handler any) {
	spec, err := di.Inspect(handler)
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.handlers[eventType][:0]
	for _, reg := range b.handlers[eventType] {
		if !reg.spec.SameFunc(spec) {
			kept = append(kept, reg)
		}
	}
	if len(kept) == 0 {
		delete(b.handlers, eventType)
		return
	}
	b.handlers[eventType] = kept
}

// UnregisterModule removes every registration carrying the given module tag,
// across all event types. Returns the number of registrations removed.
func (b *Bus) UnregisterModule(tag string) int {
	if tag == "" {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for eventType, regs := range b.handlers {
		kept := regs[:0]
		for _, reg := range regs {
			if reg.module == tag {
				removed++
				continue
			}
			kept = append(kept, reg)
		}
		if len(kept) == 0 {
			delete(b.handlers, eventType)
		} else {
			b.handlers[eventType] = kept
		}
	}
	return removed
}

// registrationsFor snapshots the sorted registration list for an event type.
func (b *Bus) registrationsFor(eventType string) []*Registration {
	b.mu.RLock()
	defer b.mu.RUnlock()

	regs := b.handlers[eventType]
	if len(regs) == 0 {
		return nil
	}
	snapshot := make([]*Registration, len(regs))
	copy(snapshot, regs)
	return snapshot
}
