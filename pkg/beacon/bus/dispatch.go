package bus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/tmorell/beacon/pkg/beacon/di"
	"github.com/tmorell/beacon/pkg/beacon/event"
	"github.com/tmorell/beacon/pkg/beacon/observability"
)

// dispatch runs the per-event pipeline: middleware, persistence hook,
// generic hooks, then condition-filtered handler fan-out.
func (b *Bus) dispatch(ctx context.Context, evt event.Event) {
	start := time.Now()

	b.hookMu.RLock()
	middleware := make([]Middleware, len(b.middleware))
	copy(middleware, b.middleware)
	hooks := make([]Hook, len(b.hooks))
	copy(hooks, b.hooks)
	b.hookMu.RUnlock()

	for _, mw := range middleware {
		rewritten, err := b.applyMiddleware(ctx, mw, evt)
		if err != nil || rewritten == nil {
			if err != nil && b.logger != nil {
				b.logger.Error("middleware failed, event dropped",
					"event_type", evt.Type(), "error", err)
			} else if b.logger != nil {
				b.logger.Debug("event vetoed by middleware", "event_type", evt.Type())
			}
			b.dropped.Add(1)
			b.metrics.RecordDispatch(ctx, evt.Type(), time.Since(start), true)
			return
		}
		evt = rewritten
	}

	b.logEventToStore(ctx, evt)

	for _, hook := range hooks {
		b.runHook(ctx, hook, evt)
	}

	regs := b.registrationsFor(evt.Type())
	handlers := 0

	// Registrations are sorted ascending by priority. Each equal-priority
	// tier fans out concurrently; the next tier starts only after the
	// previous one finishes, so distinct priorities get a strict
	// completion-order guarantee.
	for i := 0; i < len(regs); {
		j := i
		for j < len(regs) && regs[j].priority == regs[i].priority {
			j++
		}
		handlers += b.runTier(ctx, regs[i:j], evt)
		i = j
	}

	b.dispatched.Add(1)
	b.metrics.RecordDispatch(ctx, evt.Type(), time.Since(start), false)
	observability.LogDispatch(b.logger, evt.Type(), handlers, float64(time.Since(start).Microseconds())/1000.0)
}

// runTier filters and invokes one equal-priority group of registrations,
// waiting for all of them. Returns the number of handlers invoked.
func (b *Bus) runTier(ctx context.Context, tier []*Registration, evt event.Event) int {
	type job struct {
		reg  *Registration
		deps []any
	}

	jobs := make([]job, 0, len(tier))
	for _, reg := range tier {
		if !event.Eval(b.logger, reg.condition, evt) {
			if b.logger != nil {
				b.logger.Debug("handler filtered out by condition",
					"event_type", evt.Type(), "handler", reg.name)
			}
			continue
		}
		deps, err := b.resolveDeps(reg)
		if err != nil {
			// Resolution failure excludes only this handler.
			if b.logger != nil {
				b.logger.Warn("dependency resolution failed, handler skipped",
					"event_type", evt.Type(), "handler", reg.name, "error", err)
			}
			continue
		}
		jobs = append(jobs, job{reg: reg, deps: deps})
	}

	done := make(chan struct{}, len(jobs))
	for _, j := range jobs {
		go func(j job) {
			defer func() { done <- struct{}{} }()
			b.invoke(ctx, j.reg, evt, j.deps)
		}(j)
	}
	for range jobs {
		<-done
	}
	return len(jobs)
}

// invoke runs a single handler with panic and error isolation. A failing
// handler never affects its siblings; errors are logged and forwarded to
// registered error handlers best-effort.
func (b *Bus) invoke(ctx context.Context, reg *Registration, evt event.Event, deps []any) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = &event.EventError{
					Event:     evt,
					Handler:   reg.name,
					Message:   fmt.Sprintf("handler panic: %v", r),
					Timestamp: time.Now(),
				}
			}
		}()
		err = reg.spec.Invoke(ctx, evt, deps)
	}()

	if errors.Is(err, di.ErrEventMismatch) {
		if b.logger != nil {
			b.logger.Debug("event not assignable to handler's event type, skipped",
				"event_type", evt.Type(), "handler", reg.name)
		}
		return
	}

	b.metrics.RecordHandler(ctx, evt.Type(), reg.name, err)
	if err == nil {
		return
	}

	observability.LogHandlerError(b.logger, evt.Type(), reg.name, err)

	b.hookMu.RLock()
	errorHandlers := make([]ErrorHandler, len(b.errorHandlers))
	copy(errorHandlers, b.errorHandlers)
	b.hookMu.RUnlock()

	for _, eh := range errorHandlers {
		func() {
			defer func() {
				if r := recover(); r != nil && b.logger != nil {
					b.logger.Error("error handler panicked", "panic", fmt.Sprint(r))
				}
			}()
			eh(err, reg.name)
		}()
	}
}

// resolveDeps resolves a registration's declared dependency types from the
// container. Untyped (any) parameters resolve to nil.
func (b *Bus) resolveDeps(reg *Registration) ([]any, error) {
	types := reg.spec.Deps
	if len(types) == 0 {
		return nil, nil
	}
	deps := make([]any, len(types))
	for i, t := range types {
		if t == nil {
			continue
		}
		v, err := b.container.ResolveType(t)
		if err != nil {
			return nil, err
		}
		deps[i] = v
	}
	return deps, nil
}

// applyMiddleware runs one middleware with panic isolation; a panic vetoes
// the event like an error would.
func (b *Bus) applyMiddleware(ctx context.Context, mw Middleware, evt event.Event) (out event.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("middleware panic: %v", r)
		}
	}()
	return mw(ctx, evt)
}

// runHook invokes a generic hook with panic isolation.
func (b *Bus) runHook(ctx context.Context, hook Hook, evt event.Event) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error("event hook panicked",
				"event_type", evt.Type(), "panic", fmt.Sprint(r))
		}
	}()
	hook(ctx, evt)
}

// logEventToStore records the event through the EventLog collaborator when
// one is registered. Best-effort: absence and failure are swallowed.
func (b *Bus) logEventToStore(ctx context.Context, evt event.Event) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Debug("event log panicked", "panic", fmt.Sprint(r))
		}
	}()

	log, err := di.Resolve[EventLog](b.container)
	if err != nil {
		return
	}

	userID := ""
	if v, ok := event.Field(evt, "user_id"); ok {
		if s, ok := v.(string); ok {
			userID = s
		}
	}

	if _, err := log.LogEvent(ctx, evt.Type(), evt.DataBytes(), userID); err != nil && b.logger != nil {
		b.logger.Debug("failed to log event", "event_type", evt.Type(), "error", err)
	}
}

// funcPointer returns the code pointer of a function value, for identity
// matching.
func funcPointer(fn any) uintptr {
	return reflect.ValueOf(fn).Pointer()
}
