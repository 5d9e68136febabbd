package di

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/tmorell/beacon/pkg/beacon/event"
)

// Style classifies a handler function's parameter form.
type Style int

const (
	// StyleBare is the two-parameter form: func(ctx, evt) error.
	StyleBare Style = iota

	// StyleExplicit declares typed dependency parameters after the event,
	// each resolved from the container at dispatch time:
	// func(ctx, evt, store *store.SQLiteStore, log *slog.Logger) error.
	StyleExplicit
)

// String returns the style name.
func (s Style) String() string {
	switch s {
	case StyleBare:
		return "bare"
	case StyleExplicit:
		return "explicit"
	default:
		return "unknown"
	}
}

var (
	ctxType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	eventType = reflect.TypeOf((*event.Event)(nil)).Elem()
	errType   = reflect.TypeOf((*error)(nil)).Elem()
	anyType   = reflect.TypeOf((*any)(nil)).Elem()
)

// ErrEventMismatch is returned by Invoke when a handler declares a concrete
// event parameter type and the dispatched event is not assignable to it.
// The dispatcher treats it as "skip this handler", not as a failure.
var ErrEventMismatch = fmt.Errorf("event not assignable to handler's declared event type")

// HandlerSpec is the inspected form of a handler function: its style, the
// ordered dependency types to resolve from the container, and an invoker.
type HandlerSpec struct {
	// Name is the function's name, for logs and unregistration.
	Name string

	// Style is the classified parameter form.
	Style Style

	// Deps lists the dependency types declared after the event parameter,
	// in order. A nil entry marks an untyped (any) parameter that receives
	// its zero value instead of a container resolution.
	Deps []reflect.Type

	fn        reflect.Value
	evtParam  reflect.Type
	hasErrRet bool
}

// Inspect classifies a handler function and extracts its dependency types.
//
// Accepted shapes (the error return is recommended but optional):
//
//	func(ctx context.Context, evt event.Event) error            // bare
//	func(ctx context.Context, evt *event.BaseEvent[T], d1 D1, ...) error // explicit
//
// The event parameter may be the event.Event interface or any type
// implementing it. Anything that cannot be invoked at all (not a function,
// fewer than two parameters, missing context or event prefix) is an error;
// signature oddities that can still be invoked degrade gracefully.
func Inspect(fn any) (*HandlerSpec, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler must be a function, got %T", fn)
	}

	t := v.Type()
	if t.IsVariadic() {
		return nil, fmt.Errorf("variadic handlers are not supported: %s", funcName(v))
	}
	if t.NumIn() < 2 {
		return nil, fmt.Errorf("handler %s must accept (context.Context, event) at minimum", funcName(v))
	}
	if !t.In(0).Implements(ctxType) && t.In(0) != ctxType {
		return nil, fmt.Errorf("handler %s: first parameter must be context.Context", funcName(v))
	}

	evtParam := t.In(1)
	if evtParam != eventType && !evtParam.Implements(eventType) {
		return nil, fmt.Errorf("handler %s: second parameter must implement event.Event", funcName(v))
	}

	spec := &HandlerSpec{
		Name:     funcName(v),
		fn:       v,
		evtParam: evtParam,
	}

	if t.NumIn() == 2 {
		spec.Style = StyleBare
	} else {
		spec.Style = StyleExplicit
		spec.Deps = make([]reflect.Type, 0, t.NumIn()-2)
		for i := 2; i < t.NumIn(); i++ {
			p := t.In(i)
			if p == anyType {
				// Untyped parameter: no resolution, zero value injected.
				spec.Deps = append(spec.Deps, nil)
				continue
			}
			spec.Deps = append(spec.Deps, p)
		}
	}

	if t.NumOut() > 0 && t.Out(t.NumOut()-1) == errType {
		spec.hasErrRet = true
	}

	return spec, nil
}

// Validate checks whether fn is usable as a handler. It returns a validity
// flag plus a human-readable warning for usable-but-flagged shapes
// (currently: a handler with no error return, which leaves failures
// invisible to the bus's error handlers).
func Validate(fn any) (bool, string) {
	spec, err := Inspect(fn)
	if err != nil {
		return false, err.Error()
	}
	if !spec.hasErrRet {
		return true, fmt.Sprintf("handler %s has no error return; failures will not reach error handlers", spec.Name)
	}
	return true, ""
}

// SameFunc reports whether two specs wrap the same function. Closures built
// from the same function literal compare equal.
func (s *HandlerSpec) SameFunc(other *HandlerSpec) bool {
	return s.fn.Pointer() == other.fn.Pointer()
}

// DepCount returns the number of container-resolved dependencies.
func (s *HandlerSpec) DepCount() int {
	n := 0
	for _, d := range s.Deps {
		if d != nil {
			n++
		}
	}
	return n
}

// Invoke calls the handler with the event and the pre-resolved dependency
// values. deps must align with Deps; entries for nil Deps slots are ignored.
// Returns ErrEventMismatch when the event is not assignable to the declared
// event parameter.
func (s *HandlerSpec) Invoke(ctx context.Context, evt event.Event, deps []any) error {
	ev := reflect.ValueOf(evt)
	if !ev.Type().AssignableTo(s.evtParam) {
		return ErrEventMismatch
	}

	args := make([]reflect.Value, 0, 2+len(s.Deps))
	args = append(args, reflect.ValueOf(ctx), ev)
	for i, dt := range s.Deps {
		if dt == nil || deps[i] == nil {
			args = append(args, reflect.Zero(s.fn.Type().In(2+i)))
			continue
		}
		args = append(args, reflect.ValueOf(deps[i]))
	}

	out := s.fn.Call(args)
	if s.hasErrRet {
		if errVal := out[len(out)-1]; !errVal.IsNil() {
			return errVal.Interface().(error)
		}
	}
	return nil
}

// funcName extracts a short function name for logs.
func funcName(v reflect.Value) string {
	pc := v.Pointer()
	f := runtime.FuncForPC(pc)
	if f == nil {
		return "anonymous"
	}
	name := f.Name()
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}
