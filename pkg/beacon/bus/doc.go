// Package bus implements the typed publish/subscribe event router.
//
// # Overview
//
// The bus decouples event producers from handlers:
//
//   - Emit enqueues an event on an unbounded FIFO intake queue and never
//     blocks the caller
//   - A single consumer goroutine drains the queue in order and spawns one
//     dispatch goroutine per event
//   - Within a dispatch, handlers registered for the event's type are
//     filtered by their conditions, grouped into equal-priority tiers, and
//     each tier fans out concurrently
//   - A tier completes before the next one starts, so handlers at distinct
//     priorities get a strict completion-order guarantee
//
// # Registration
//
// Handlers are plain functions inspected at registration time:
//
//	b.Register("order.created", func(ctx context.Context, evt event.Event) error {
//	    ...
//	}, bus.WithPriority(1), bus.WithCondition(event.GreaterThan("amount", 100)))
//
// Parameters after the event are dependency declarations, resolved from the
// container on every dispatch:
//
//	b.Register("order.created", func(ctx context.Context, evt event.Event, n *Notifier) error {
//	    ...
//	})
//
// Registrations carry an optional module tag so a plugin's handlers can be
// removed together with UnregisterModule.
//
// # Error Isolation
//
// A handler returning an error or panicking never affects its siblings: the
// failure is logged, recorded in metrics, and forwarded to registered error
// handler callbacks. Middleware may rewrite or veto events before any
// handler sees them; hooks observe every event that passes middleware.
//
// # Persistence
//
// When an EventLog implementation is registered in the container, every
// dispatched event is appended to it best-effort before handlers run. Log
// failures never interfere with dispatch.
//
// # Lifecycle
//
//	b := bus.New(container, bus.Config{Logger: logger})
//	b.Start()
//	defer b.Stop(ctx)
//
// Stop rejects further Emit calls with ErrClosed, drops events still queued
// but undispatched, and waits for in-flight dispatches bounded by ctx.
package bus
