package systems

import (
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
)

var (
	// ErrUnsupportedOperation is returned when mutable access is requested
	// through a read-only reference.
	ErrUnsupportedOperation = errors.New("systems: unsupported operation")

	// ErrUnsupportedRequest is returned by a provider that cannot resolve
	// the requested type.
	ErrUnsupportedRequest = errors.New("systems: unsupported request")

	// ErrNullRef is returned when writing through a reference with no backing storage.
	ErrNullRef = errors.New("systems: null reference")

	// ErrIndexOutOfRange is returned when an element reference points past
	// the end of its array or list.
	ErrIndexOutOfRange = errors.New("systems: index out of range")

	// ErrTypeMismatch is returned when an untyped reference is converted to
	// the wrong element type.
	ErrTypeMismatch = errors.New("systems: type mismatch")

	// ErrNotSystem is returned when registering a type that is not a struct.
	ErrNotSystem = errors.New("systems: not a system type")

	// ErrAlreadyRegistered is returned by Register for a type that already
	// has a node, including groups created implicitly by their members.
	ErrAlreadyRegistered = errors.New("systems: already registered")

	// ErrDisposed is returned when registering on a disposed scheduler.
	ErrDisposed = errors.New("systems: scheduler disposed")
)

// Phase identifies the node lifecycle step a failure happened in.
type Phase int

const (
	PhaseCreate Phase = iota
	PhaseSetup
	PhaseUpdate
	PhaseDispose
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseCreate:
		return "create"
	case PhaseSetup:
		return "setup"
	case PhaseUpdate:
		return "update"
	case PhaseDispose:
		return "dispose"
	default:
		return "unknown"
	}
}

// SystemError wraps a failure raised by user code while the scheduler was
// driving a system. It is what the unhandled handler receives.
type SystemError struct {
	System reflect.Type
	Phase  Phase
	Err    error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("systems: %s %v: %v", e.Phase, e.System, e.Err)
}

func (e *SystemError) Unwrap() error {
	return e.Err
}

// PanicError is a recovered panic with the stack of the goroutine that raised it.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v\n%s", e.Value, e.Stack)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// guard runs fn and converts a panic into a *PanicError.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}
