package observability

import (
	"context"
	"time"
)

// Noop is a Metrics implementation that does nothing.
// Use when metrics are disabled to avoid overhead.
type Noop struct{}

// Compile-time interface check.
var _ Metrics = Noop{}

// RecordEmit does nothing.
func (Noop) RecordEmit(_ context.Context, _ string) {}

// RecordDispatch does nothing.
func (Noop) RecordDispatch(_ context.Context, _ string, _ time.Duration, _ bool) {}

// RecordHandler does nothing.
func (Noop) RecordHandler(_ context.Context, _, _ string, _ error) {}

// RecordScheduleFire does nothing.
func (Noop) RecordScheduleFire(_ context.Context, _ string) {}
