// Package di provides a minimal type-keyed service container and the
// handler inspection used to resolve handler dependencies from it.
//
// The container is a read-mostly structure: register everything during
// composition, resolve many times during dispatch. It performs no lifecycle
// management beyond registration and Clear.
package di

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrNotRegistered is returned when a type has neither a singleton nor a
// factory registered. Use errors.Is to detect it.
var ErrNotRegistered = errors.New("service type not registered")

// Container maps service types to singleton instances or zero-argument
// factories. A singleton registered for a type always takes precedence over
// a factory registered for the same type.
//
// Container is not safe for concurrent writers. The intended usage is
// "register everything, then resolve many times"; concurrent registration
// during active dispatch is unsupported.
type Container struct {
	singletons map[reflect.Type]any
	factories  map[reflect.Type]func() any
}

// NewContainer creates an empty service container.
func NewContainer() *Container {
	return &Container{
		singletons: make(map[reflect.Type]any),
		factories:  make(map[reflect.Type]func() any),
	}
}

// Register registers a singleton instance under type T.
//
// T may be an interface type, letting handlers depend on the interface while
// the composition root supplies a concrete implementation:
//
//	di.Register[bus.EventLog](c, store)
func Register[T any](c *Container, instance T) {
	c.singletons[typeOf[T]()] = instance
}

// RegisterFactory registers a zero-argument factory under type T. The
// factory is invoked on every resolve.
func RegisterFactory[T any](c *Container, factory func() T) {
	c.factories[typeOf[T]()] = func() any { return factory() }
}

// Resolve returns the service registered under type T.
func Resolve[T any](c *Container) (T, error) {
	v, err := c.ResolveType(typeOf[T]())
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// ResolveType returns the service registered under the given type.
// Singletons win over factories. Returns ErrNotRegistered (wrapped with the
// type name) when nothing is registered for the type.
func (c *Container) ResolveType(t reflect.Type) (any, error) {
	if instance, ok := c.singletons[t]; ok {
		return instance, nil
	}
	if factory, ok := c.factories[t]; ok {
		return factory(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotRegistered, t)
}

// IsRegistered reports whether a singleton or factory exists for the type.
func (c *Container) IsRegistered(t reflect.Type) bool {
	if _, ok := c.singletons[t]; ok {
		return true
	}
	_, ok := c.factories[t]
	return ok
}

// RegisteredTypes returns every type with a singleton or factory registered.
func (c *Container) RegisteredTypes() []reflect.Type {
	seen := make(map[reflect.Type]struct{}, len(c.singletons)+len(c.factories))
	types := make([]reflect.Type, 0, len(c.singletons)+len(c.factories))
	for t := range c.singletons {
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			types = append(types, t)
		}
	}
	for t := range c.factories {
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			types = append(types, t)
		}
	}
	return types
}

// Clear removes all registrations.
func (c *Container) Clear() {
	c.singletons = make(map[reflect.Type]any)
	c.factories = make(map[reflect.Type]func() any)
}

// typeOf returns the reflect.Type of T, preserving interface types.
// reflect.TypeOf on an interface value would yield the dynamic type, so the
// pointer-Elem trick is required.
func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
