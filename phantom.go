package systems

import (
	"reflect"
)

// InGroup is a phantom type that places the system in group G.
// It carries no data and is never injected.
//
// Usage:
//
//	type Physics struct {
//	    _ systems.InGroup[Simulation]
//	}
type InGroup[G any] struct{}

// Before is a phantom type that orders the system before T within their group.
//
// Usage:
//
//	type Integrate struct {
//	    _ systems.Before[Render]
//	}
type Before[T any] struct{}

// After is a phantom type that orders the system after T within their group.
type After[T any] struct{}

// Options is a phantom type whose struct tag carries the remaining metadata.
//
//	_ systems.Options `partition:"-1" parallel:"true" setup:"false" update:"false"`
//
// partition also accepts "early", "default" and "late".
type Options struct{}

// MarkerKind tells which relation a phantom marker declares.
type MarkerKind int

const (
	MarkerGroup MarkerKind = iota
	MarkerBefore
	MarkerAfter
)

// String returns the string representation of the marker kind.
func (k MarkerKind) String() string {
	switch k {
	case MarkerGroup:
		return "Group"
	case MarkerBefore:
		return "Before"
	case MarkerAfter:
		return "After"
	default:
		return "Unknown"
	}
}

// Marker provides the target type of a phantom marker.
type Marker interface {
	Target() reflect.Type
	MarkerKind() MarkerKind
}

// Target implements Marker for InGroup[G].
func (InGroup[G]) Target() reflect.Type {
	return reflect.TypeFor[G]()
}

// MarkerKind implements Marker for InGroup[G].
func (InGroup[G]) MarkerKind() MarkerKind {
	return MarkerGroup
}

// Target implements Marker for Before[T].
func (Before[T]) Target() reflect.Type {
	return reflect.TypeFor[T]()
}

// MarkerKind implements Marker for Before[T].
func (Before[T]) MarkerKind() MarkerKind {
	return MarkerBefore
}

// Target implements Marker for After[T].
func (After[T]) Target() reflect.Type {
	return reflect.TypeFor[T]()
}

// MarkerKind implements Marker for After[T].
func (After[T]) MarkerKind() MarkerKind {
	return MarkerAfter
}

var (
	markerType  = reflect.TypeFor[Marker]()
	optionsType = reflect.TypeFor[Options]()
)

// getMarkerInfo extracts the target and kind from a phantom marker type.
func getMarkerInfo(t reflect.Type) (target reflect.Type, kind MarkerKind, ok bool) {
	if !t.Implements(markerType) {
		return nil, 0, false
	}
	m := reflect.New(t).Elem().Interface().(Marker)
	target = m.Target()
	// Markers name the struct, not a pointer to it.
	for target.Kind() == reflect.Pointer {
		target = target.Elem()
	}
	return target, m.MarkerKind(), true
}
