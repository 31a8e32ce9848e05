package systems

import (
	"fmt"
	"reflect"
)

// Bundle groups related systems, resources and providers together.
// Bundles are registered with the Builder and keep a feature's pieces in
// one place.
type Bundle struct {
	name string

	// systems holds system registrations
	systems []systemRegistration

	// resources holds bundle-level resources (stored in the default provider)
	resources []any

	// providers holds bundle-level providers
	providers []Provider

	postInitHooks []func(*Scheduler)
}

// systemRegistration holds a system registration.
type systemRegistration struct {
	typ     reflect.Type
	meta    *SystemMeta
	factory Factory
}

// NewBundle creates a new bundle with the given name.
func NewBundle(name string) *Bundle {
	return &Bundle{
		name: name,
	}
}

// Name returns the bundle name.
func (b *Bundle) Name() string {
	return b.name
}

// System registers a system by example value, e.g. &Physics{} or Physics{}.
func (b *Bundle) System(sys any) *Bundle {
	b.systems = append(b.systems, systemRegistration{typ: reflect.TypeOf(sys)})
	return b
}

// SystemWith registers a system type with explicit metadata and factory.
func (b *Bundle) SystemWith(t reflect.Type, meta SystemMeta, factory Factory) *Bundle {
	b.systems = append(b.systems, systemRegistration{typ: t, meta: &meta, factory: factory})
	return b
}

// Resource registers a bundle-level resource, stored under its dynamic type.
func (b *Bundle) Resource(res any) *Bundle {
	b.resources = append(b.resources, res)
	return b
}

// Provider registers a provider for this bundle's systems.
func (b *Bundle) Provider(p Provider) *Bundle {
	b.providers = append(b.providers, p)
	return b
}

// PostInit registers a hook that runs once the scheduler is built.
func (b *Bundle) PostInit(hook func(*Scheduler)) *Bundle {
	b.postInitHooks = append(b.postInitHooks, hook)
	return b
}

// build registers the bundle's contents with s.
func (b *Bundle) build(s *Scheduler) error {
	for _, p := range b.providers {
		s.SetProvider(p)
	}

	for _, res := range b.resources {
		if err := s.setResourceValue(res); err != nil {
			return fmt.Errorf("bundle %s: resource %T: %w", b.name, res, err)
		}
	}

	for _, reg := range b.systems {
		var err error
		if reg.meta != nil {
			err = s.Register(reg.typ, *reg.meta, reg.factory)
		} else {
			err = s.AddType(reg.typ)
		}
		if err != nil {
			return fmt.Errorf("bundle %s: %w", b.name, err)
		}
	}

	return nil
}
