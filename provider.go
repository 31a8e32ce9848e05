package systems

import (
	"fmt"
	"reflect"
	"sync/atomic"
)

// ProviderData carries provider specific settings taken from an injection tag.
//
//	Score Ref[Score] `systems:"provider=remote,key=scores"`
//
// resolves through the provider named "remote" with ProviderData{"key": "scores"}.
type ProviderData map[string]string

// Request describes who is asking a provider for a reference.
type Request struct {
	// System is the type of the system being constructed, or nil.
	System reflect.Type

	// Scheduler is the scheduler the request originates from.
	Scheduler *Scheduler
}

// Provider resolves references for requested types.
type Provider interface {
	// Name returns a unique identifier used by provider= tags and in logs.
	Name() string

	// Resolve returns a reference to a value of type t. Providers return
	// ErrUnsupportedRequest for types they cannot resolve.
	Resolve(t reflect.Type, data ProviderData, req Request) (UntypedRef, error)

	// Clear drops everything the provider owns.
	Clear()
}

// Resolve is the typed form of Provider.Resolve.
func Resolve[T any](p Provider, data ProviderData, req Request) (Ref[T], error) {
	u, err := p.Resolve(reflect.TypeFor[T](), data, req)
	if err != nil {
		return Ref[T]{}, err
	}
	return RefAs[T](u)
}

// DefaultProvider resolves every type to a slot in a private ResourceContainer.
type DefaultProvider struct {
	container atomic.Pointer[ResourceContainer]
}

// NewDefaultProvider creates a provider backed by an empty container.
func NewDefaultProvider() *DefaultProvider {
	p := &DefaultProvider{}
	p.container.Store(NewResourceContainer())
	return p
}

// Name implements Provider.
func (p *DefaultProvider) Name() string {
	return "default"
}

// Container returns the container currently backing the provider.
func (p *DefaultProvider) Container() *ResourceContainer {
	return p.container.Load()
}

// Resolve implements Provider.
func (p *DefaultProvider) Resolve(t reflect.Type, _ ProviderData, _ Request) (UntypedRef, error) {
	if t == nil {
		return UntypedRef{}, ErrUnsupportedRequest
	}
	return p.container.Load().GetOrAddType(t), nil
}

// Clear replaces the backing container with an empty one.
func (p *DefaultProvider) Clear() {
	p.container.Store(NewResourceContainer())
}

// SystemRefProvider resolves references to system instances owned by the
// requesting scheduler. The slot is returned even before the target system
// has been constructed.
type SystemRefProvider struct{}

// Name implements Provider.
func (SystemRefProvider) Name() string {
	return "system"
}

// Resolve implements Provider. With data["self"] set the requested type must
// be the requesting system.
func (SystemRefProvider) Resolve(t reflect.Type, data ProviderData, req Request) (UntypedRef, error) {
	if req.Scheduler == nil {
		return UntypedRef{}, fmt.Errorf("%w: %v requested without a scheduler", ErrUnsupportedRequest, t)
	}
	if _, self := data["self"]; self {
		if req.System == nil {
			return UntypedRef{}, fmt.Errorf("%w: self reference to %v outside of a system", ErrUnsupportedRequest, t)
		}
		if req.System != t {
			return UntypedRef{}, fmt.Errorf("%w: self reference of %v declared as %v", ErrTypeMismatch, req.System, t)
		}
	}
	if t.Kind() != reflect.Struct {
		return UntypedRef{}, fmt.Errorf("%w: %v is not a system", ErrUnsupportedRequest, t)
	}
	return req.Scheduler.instances.GetOrAddType(t), nil
}

// Clear implements Provider. System instances are owned by the scheduler.
func (SystemRefProvider) Clear() {}
