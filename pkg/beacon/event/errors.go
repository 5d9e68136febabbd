package event

import (
	"fmt"
	"time"
)

// EventError represents an error during event processing.
type EventError struct {
	Event     Event     // The event that failed
	Handler   string    // Handler that failed (if known)
	Message   string    // Error message
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
}

// Error implements error interface.
func (e *EventError) Error() string {
	switch {
	case e.Err != nil && e.Handler != "":
		return fmt.Sprintf("event %s: handler %s: %s: %v", e.Event.ID(), e.Handler, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("event %s: %s: %v", e.Event.ID(), e.Message, e.Err)
	case e.Handler != "":
		return fmt.Sprintf("event %s: handler %s: %s", e.Event.ID(), e.Handler, e.Message)
	default:
		return fmt.Sprintf("event %s: %s", e.Event.ID(), e.Message)
	}
}

// Unwrap returns the underlying error.
func (e *EventError) Unwrap() error {
	return e.Err
}
