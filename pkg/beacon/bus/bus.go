package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tmorell/beacon/pkg/beacon/di"
	"github.com/tmorell/beacon/pkg/beacon/event"
	"github.com/tmorell/beacon/pkg/beacon/observability"
)

// ErrClosed is returned by Emit after the bus has been stopped.
var ErrClosed = errors.New("event bus is stopped")

// EventLog is the optional persistence collaborator. When an implementation
// is registered in the container, every dispatched event is recorded
// through it best-effort: absence or failure never affects delivery.
type EventLog interface {
	// LogEvent records an event, returning the stored record's id.
	LogEvent(ctx context.Context, eventType string, data []byte, userID string) (int64, error)
}

// Middleware receives each event before dispatch and may rewrite it.
// Returning a nil event (or an error) vetoes the event, short-circuiting
// dispatch entirely.
type Middleware func(ctx context.Context, evt event.Event) (event.Event, error)

// Hook observes every event regardless of type, for cross-cutting concerns.
type Hook func(ctx context.Context, evt event.Event)

// ErrorHandler is invoked best-effort with the handler error and the
// failing handler's name.
type ErrorHandler func(err error, handlerName string)

// Config configures a Bus.
type Config struct {
	// Logger for bus diagnostics. Nil disables logging.
	Logger *slog.Logger

	// Metrics recorder. Nil defaults to observability.Noop.
	Metrics observability.Metrics
}

// Bus routes events to registered handlers. Emit enqueues and returns;
// a single consumer goroutine dequeues in FIFO order and dispatches each
// event in its own goroutine.
type Bus struct {
	container *di.Container
	logger    *slog.Logger
	metrics   observability.Metrics

	mu       sync.RWMutex // guards handlers
	handlers map[string][]*Registration

	hookMu        sync.RWMutex // guards middleware, hooks, errorHandlers
	middleware    []Middleware
	hooks         []Hook
	errorHandlers []ErrorHandler

	queue      *intakeQueue
	running    atomic.Bool
	closed     atomic.Bool
	stopCh     chan struct{}
	consumerWG sync.WaitGroup
	dispatchWG sync.WaitGroup

	emitted    atomic.Int64
	dispatched atomic.Int64
	dropped    atomic.Int64
}

// New creates an event bus that resolves handler dependencies and the
// optional EventLog collaborator from the given container.
func New(container *di.Container, cfg Config) *Bus {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.Noop{}
	}
	return &Bus{
		container: container,
		logger:    cfg.Logger,
		metrics:   metrics,
		handlers:  make(map[string][]*Registration),
		queue:     newIntakeQueue(),
	}
}

// Emit enqueues an event and returns once it is queued, not processed.
// Emit never blocks on handler execution. Events emitted before Start are
// queued and dispatched once the bus starts. Returns ErrClosed after Stop.
func (b *Bus) Emit(evt event.Event) error {
	if b.closed.Load() {
		return ErrClosed
	}
	b.queue.push(evt)
	b.emitted.Add(1)
	b.metrics.RecordEmit(context.Background(), evt.Type())
	observability.LogEmit(b.logger, evt.Type(), evt.Source())
	return nil
}

// Start spawns the consumer loop. Starting a running bus is a no-op.
func (b *Bus) Start() {
	if !b.running.CompareAndSwap(false, true) {
		return
	}
	b.stopCh = make(chan struct{})
	b.consumerWG.Add(1)
	go b.consume()
	if b.logger != nil {
		b.logger.Info("event bus started")
	}
}

// Stop cancels the consumer loop and drains in-flight dispatches before
// returning. Events still sitting in the intake queue are not dispatched.
// The context bounds how long Stop waits for in-flight dispatches.
func (b *Bus) Stop(ctx context.Context) error {
	if !b.running.CompareAndSwap(true, false) {
		return nil
	}
	b.closed.Store(true)
	close(b.stopCh)
	b.consumerWG.Wait()

	done := make(chan struct{})
	go func() {
		b.dispatchWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if b.logger != nil {
		b.logger.Info("event bus stopped")
	}
	return nil
}

// Use appends a middleware to the dispatch pipeline.
func (b *Bus) Use(mw Middleware) {
	b.hookMu.Lock()
	defer b.hookMu.Unlock()
	b.middleware = append(b.middleware, mw)
}

// AddHook registers a hook observing every event.
func (b *Bus) AddHook(h Hook) {
	b.hookMu.Lock()
	defer b.hookMu.Unlock()
	b.hooks = append(b.hooks, h)
}

// RemoveHook removes a previously added hook, matched by function identity.
func (b *Bus) RemoveHook(h Hook) {
	b.hookMu.Lock()
	defer b.hookMu.Unlock()
	target := funcPointer(h)
	kept := b.hooks[:0]
	for _, existing := range b.hooks {
		if funcPointer(existing) != target {
			kept = append(kept, existing)
		}
	}
	b.hooks = kept
}

// AddErrorHandler registers a callback invoked whenever a handler fails.
func (b *Bus) AddErrorHandler(eh ErrorHandler) {
	b.hookMu.Lock()
	defer b.hookMu.Unlock()
	b.errorHandlers = append(b.errorHandlers, eh)
}

// Stats reports the bus's registration table and counters.
type Stats struct {
	Running         bool
	RegisteredTypes []string
	HandlerCounts   map[string]int
	Emitted         int64
	Dispatched      int64
	Dropped         int64
}

// Stats returns a snapshot of bus statistics.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	types := make([]string, 0, len(b.handlers))
	counts := make(map[string]int, len(b.handlers))
	for t, regs := range b.handlers {
		types = append(types, t)
		counts[t] = len(regs)
	}
	b.mu.RUnlock()

	return Stats{
		Running:         b.running.Load(),
		RegisteredTypes: types,
		HandlerCounts:   counts,
		Emitted:         b.emitted.Load(),
		Dispatched:      b.dispatched.Load(),
		Dropped:         b.dropped.Load(),
	}
}

// consume drains the intake queue in FIFO order, spawning one dispatch
// goroutine per event.
func (b *Bus) consume() {
	defer b.consumerWG.Done()
	for {
		evt, ok := b.queue.pop()
		if !ok {
			select {
			case <-b.stopCh:
				return
			case <-b.queue.wake:
				continue
			}
		}
		// A stop signal beats events still in the queue.
		select {
		case <-b.stopCh:
			return
		default:
		}

		b.dispatchWG.Add(1)
		go func() {
			defer b.dispatchWG.Done()
			b.dispatch(context.Background(), evt)
		}()
	}
}

// intakeQueue is an unbounded FIFO queue: push never blocks.
type intakeQueue struct {
	mu    sync.Mutex
	items []event.Event
	wake  chan struct{}
}

func newIntakeQueue() *intakeQueue {
	return &intakeQueue{wake: make(chan struct{}, 1)}
}

func (q *intakeQueue) push(evt event.Event) {
	q.mu.Lock()
	q.items = append(q.items, evt)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *intakeQueue) pop() (event.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	evt := q.items[0]
	q.items = q.items[1:]
	return evt, true
}
