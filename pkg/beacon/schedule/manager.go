package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tmorell/beacon/pkg/beacon/bus"
	"github.com/tmorell/beacon/pkg/beacon/di"
	"github.com/tmorell/beacon/pkg/beacon/event"
	"github.com/tmorell/beacon/pkg/beacon/observability"
)

// errBackoff is the pause after a failed loop iteration. A single failing
// schedule never terminates its loop or the manager.
const errBackoff = time.Second

// Querier is the collaborator that Watch schedules poll. Rows come back as
// plain structured records so they can be compared for change detection.
type Querier interface {
	ExecuteQuery(ctx context.Context, query string, params ...any) ([]map[string]any, error)
}

// Config configures a Manager.
type Config struct {
	// Logger for scheduler diagnostics. Nil disables logging.
	Logger *slog.Logger

	// Metrics recorder. Nil defaults to observability.Noop.
	Metrics observability.Metrics
}

// Manager owns one background loop per registered schedule. Each loop
// computes the delay to its next execution, sleeps cancellably, optionally
// evaluates a reactive watch condition, and on firing publishes a typed
// synthetic event through the bus.
type Manager struct {
	bus       *bus.Bus
	container *di.Container
	logger    *slog.Logger
	metrics   observability.Metrics

	mu      sync.Mutex
	tasks   []*task
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// task pairs an immutable schedule configuration with the mutable execution
// state owned exclusively by the task's own loop.
type task struct {
	kind string

	interval Interval
	cronCfg  Cron
	cronNext cron.Schedule
	watch    Watch

	executionCount  int64
	lastExecution   time.Time
	nextExecution   time.Time
	lastCheck       time.Time
	previousResults []map[string]any
	currentResults  []map[string]any
	hasChanges      bool
}

// NewManager creates a schedule manager publishing through the given bus
// and resolving the Querier collaborator from the container.
func NewManager(b *bus.Bus, container *di.Container, cfg Config) *Manager {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observability.Noop{}
	}
	return &Manager{
		bus:       b,
		container: container,
		logger:    cfg.Logger,
		metrics:   metrics,
	}
}

// AddInterval registers a handler for @interval events produced by the
// given interval schedule. The handler goes through the same registration
// machinery as any bus handler, so conditions, priorities, and dependency
// injection all apply.
func (m *Manager) AddInterval(handler any, iv Interval, opts ...bus.RegisterOption) error {
	if err := iv.validate(); err != nil {
		return err
	}
	if err := m.bus.Register(TypeInterval, handler, opts...); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, &task{kind: "interval", interval: iv})
	if m.logger != nil {
		m.logger.Debug("interval schedule added", "every", iv.Every)
	}
	return nil
}

// AddCron registers a handler for @cron events. The expression is parsed
// and validated up front.
func (m *Manager) AddCron(handler any, c Cron, opts ...bus.RegisterOption) error {
	sched, err := c.parse()
	if err != nil {
		return err
	}
	if err := m.bus.Register(TypeCron, handler, opts...); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, &task{
		kind:          "cron",
		cronCfg:       c,
		cronNext:      sched,
		nextExecution: sched.Next(time.Now()),
	})
	if m.logger != nil {
		m.logger.Debug("cron schedule added", "expression", c.Expression, "timezone", c.Timezone)
	}
	return nil
}

// AddWatch registers a handler for @watch events produced when the watch
// query's criteria are met.
func (m *Manager) AddWatch(handler any, w Watch, opts ...bus.RegisterOption) error {
	if err := w.validate(); err != nil {
		return err
	}
	if err := m.bus.Register(TypeWatch, handler, opts...); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, &task{kind: "watch", watch: w})
	if m.logger != nil {
		m.logger.Debug("watch schedule added", "query", w.Query, "check_interval", w.CheckInterval)
	}
	return nil
}

// Start spawns one background loop per registered schedule. Starting a
// running manager is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		if m.logger != nil {
			m.logger.Warn("schedule manager already running")
		}
		return
	}
	m.running = true

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	for _, t := range m.tasks {
		m.wg.Add(1)
		go func(t *task) {
			defer m.wg.Done()
			m.runTask(ctx, t)
		}(t)
	}
	if m.logger != nil {
		m.logger.Info("schedule manager started", "tasks", len(m.tasks))
	}
}

// Stop cancels all schedule loops and waits for them to finish. The context
// bounds the wait.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.cancel()
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if m.logger != nil {
		m.logger.Info("schedule manager stopped")
	}
	return nil
}

// runTask is one schedule's loop: sleep until the next execution, decide
// whether to fire, fire, update tracking state. Iteration errors log and
// back off briefly; only cancellation ends the loop.
func (m *Manager) runTask(ctx context.Context, t *task) {
	for {
		if err := m.runIteration(ctx, t); err != nil {
			if ctx.Err() != nil {
				return
			}
			observability.LogScheduleError(m.logger, t.kind, err)
			if !sleep(ctx, errBackoff) {
				return
			}
			continue
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// runIteration performs a single wait-check-fire cycle with panic
// isolation.
func (m *Manager) runIteration(ctx context.Context, t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("schedule panic: %v", r)
		}
	}()

	if !sleep(ctx, m.delayUntilNext(t, time.Now())) {
		return nil
	}

	fire := true
	if t.kind == "watch" {
		fire = m.checkWatch(ctx, t)
	}
	if !fire {
		return nil
	}

	m.fire(ctx, t)
	return nil
}

// delayUntilNext computes how long the task sleeps before its next
// execution decision.
func (m *Manager) delayUntilNext(t *task, now time.Time) time.Duration {
	switch t.kind {
	case "interval":
		if t.executionCount == 0 {
			if t.interval.StartImmediately {
				return 0
			}
			if t.interval.AlignToMinute {
				return now.Truncate(time.Minute).Add(time.Minute).Sub(now)
			}
		}
		if !t.lastExecution.IsZero() {
			remaining := t.interval.Every - now.Sub(t.lastExecution)
			return max(remaining, 0)
		}
		return t.interval.Every

	case "cron":
		return max(t.nextExecution.Sub(now), 0)

	case "watch":
		if !t.lastCheck.IsZero() {
			remaining := t.watch.CheckInterval - now.Sub(t.lastCheck)
			return max(remaining, 0)
		}
		return t.watch.CheckInterval
	}
	return time.Minute
}

// checkWatch polls the watch query and decides whether to fire. A missing
// Querier or a failed query never fires and never kills the loop.
func (m *Manager) checkWatch(ctx context.Context, t *task) bool {
	t.lastCheck = time.Now()

	q, err := di.Resolve[Querier](m.container)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("querier not available for watch", "query", t.watch.Query)
		}
		return false
	}

	results, err := q.ExecuteQuery(ctx, t.watch.Query, t.watch.Params...)
	if err != nil {
		if m.logger != nil {
			m.logger.Error("watch query failed", "query", t.watch.Query, "error", err)
		}
		return false
	}

	t.hasChanges = !reflect.DeepEqual(results, t.currentResults)
	t.previousResults = t.currentResults
	t.currentResults = results

	if t.watch.DetectChanges && !t.hasChanges {
		return false
	}
	return len(results) > 0
}

// fire builds the typed synthetic event, publishes it, and updates the
// task's execution tracking state.
func (m *Manager) fire(ctx context.Context, t *task) {
	now := time.Now()
	t.executionCount++

	var evt event.Event
	switch t.kind {
	case "interval":
		evt = event.New(TypeInterval, Source, Tick{
			ExecutionTime:    now,
			ExecutionCount:   t.executionCount,
			Every:            t.interval.Every,
			StartImmediately: t.interval.StartImmediately,
			AlignToMinute:    t.interval.AlignToMinute,
		})
		t.lastExecution = now

	case "cron":
		evt = event.New(TypeCron, Source, CronTick{
			ExecutionTime:  now,
			ExecutionCount: t.executionCount,
			Expression:     t.cronCfg.Expression,
			Timezone:       t.cronCfg.Timezone,
			ScheduledTime:  t.nextExecution,
		})
		t.nextExecution = t.cronNext.Next(now)

	case "watch":
		evt = event.New(TypeWatch, Source, WatchResult{
			ExecutionTime:   now,
			ExecutionCount:  t.executionCount,
			Query:           t.watch.Query,
			Params:          t.watch.Params,
			CheckInterval:   t.watch.CheckInterval,
			DetectChanges:   t.watch.DetectChanges,
			Results:         t.currentResults,
			PreviousResults: t.previousResults,
			HasChanges:      t.hasChanges,
			ResultsCount:    len(t.currentResults),
		})
	}

	if err := m.bus.Emit(evt); err != nil {
		observability.LogScheduleError(m.logger, t.kind, err)
		return
	}

	m.metrics.RecordScheduleFire(ctx, t.kind)
	observability.LogScheduleFire(m.logger, t.kind, t.executionCount, t.nextExecution)
}

// sleep waits for d, returning false if the context was cancelled first.
// A non-positive d returns immediately.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
