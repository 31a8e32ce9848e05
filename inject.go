package systems

import (
	"fmt"
	"reflect"
	"unsafe"
)

// Factory constructs a system in place at handle. The default factory
// injects tagged fields through the scheduler's providers.
type Factory func(ctx InjectContext, handle SystemHandle) error

// SystemHandle is the slot a system instance is constructed into.
type SystemHandle struct {
	typ  reflect.Type
	slot UntypedRef
}

// Type returns the system type the handle holds.
func (h SystemHandle) Type() reflect.Type {
	return h.typ
}

// Pointer returns the *T of the system instance.
func (h SystemHandle) Pointer() (any, error) {
	return h.slot.Pointer()
}

// HandleAs returns the system instance at h as *T.
func HandleAs[T any](h SystemHandle) (*T, error) {
	r, err := RefAs[T](h.slot)
	if err != nil {
		return nil, err
	}
	return r.GetMut()
}

// InjectContext gives factories access to the scheduler's providers.
type InjectContext struct {
	s      *Scheduler
	system reflect.Type
}

// Scheduler returns the scheduler constructing the system.
func (c InjectContext) Scheduler() *Scheduler {
	return c.s
}

// System returns the type of the system being constructed, or nil.
func (c InjectContext) System() reflect.Type {
	return c.system
}

// Resolve resolves t through the named provider, or through the default
// provider when name is empty.
func (c InjectContext) Resolve(t reflect.Type, name string, data ProviderData) (UntypedRef, error) {
	p := c.s.DefaultProvider()
	if name != "" {
		var ok bool
		if p, ok = c.s.ProviderByName(name); !ok {
			return UntypedRef{}, fmt.Errorf("%w: no provider named %q", ErrUnsupportedRequest, name)
		}
	}
	return p.Resolve(t, data, Request{System: c.system, Scheduler: c.s})
}

// Inject returns a mutable reference to the default resource of type T.
func Inject[T any](ctx InjectContext) (Ref[T], error) {
	u, err := ctx.Resolve(reflect.TypeFor[T](), "", nil)
	if err != nil {
		return Ref[T]{}, err
	}
	return RefAs[T](u)
}

// reflectFactory returns the default factory for a system type.
func reflectFactory(info *systemInfo) Factory {
	return func(ctx InjectContext, h SystemHandle) error {
		p, err := h.Pointer()
		if err != nil {
			return err
		}
		if err := injectSystem(p, info, ctx); err != nil {
			return err
		}
		if in, ok := p.(Initializer); ok {
			return in.Init(ctx)
		}
		return nil
	}
}

// injectSystem injects dependencies into a system instance.
// system must be a *T for info.Type.
func injectSystem(system any, info *systemInfo, ctx InjectContext) error {
	base := reflect.ValueOf(system).UnsafePointer()

	for i := range info.Fields {
		field := &info.Fields[i]
		if !field.injectable() {
			continue
		}

		u, err := ctx.Resolve(field.ElemType, field.Tag.Provider, field.Tag.Data)
		if err == nil && u.IsNull() && !field.Tag.Optional {
			err = ErrNullRef
		}
		if err != nil {
			if field.Tag.Optional {
				continue
			}
			return fmt.Errorf("inject %s.%s: %w", info.Name, field.Name, err)
		}

		dst := reflect.NewAt(field.FieldType, unsafe.Add(base, field.Offset)).Elem()

		switch field.Kind {
		case FieldRef:
			r, err := field.ref.adopt(u, !field.Tag.Mutable)
			if err != nil {
				return fmt.Errorf("inject %s.%s: %w", info.Name, field.Name, err)
			}
			dst.Set(reflect.ValueOf(r))

		case FieldPointer:
			if u.IsNull() {
				continue
			}
			ptr, err := u.Pointer()
			if err != nil {
				if field.Tag.Optional {
					continue
				}
				return fmt.Errorf("inject %s.%s: %w", info.Name, field.Name, err)
			}
			dst.Set(reflect.ValueOf(ptr))
		}
	}

	return nil
}
