package systems

import (
	"fmt"
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Builder configures a Scheduler before it starts ticking.
// Use NewBuilder() to create a builder and chain configuration methods.
type Builder struct {
	cfg          *Config
	log          *zap.Logger
	reg          prometheus.Registerer
	bundles      []*Bundle
	resources    []any
	providers    []Provider
	defaultGroup reflect.Type
	unhandled    []func(error)
}

// NewBuilder creates a new scheduler builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Config sets the configuration. Without it DefaultConfig is used.
func (b *Builder) Config(cfg *Config) *Builder {
	b.cfg = cfg
	return b
}

// Logger sets the logger, overriding the logging section of the config.
func (b *Builder) Logger(l *zap.Logger) *Builder {
	b.log = l
	return b
}

// Registerer sets where metrics are registered. With metrics enabled in the
// config and no registerer, the prometheus default registerer is used.
func (b *Builder) Registerer(reg prometheus.Registerer) *Builder {
	b.reg = reg
	return b
}

// Bundle adds a bundle to the builder.
func (b *Builder) Bundle(bundle *Bundle) *Builder {
	b.bundles = append(b.bundles, bundle)
	return b
}

// Resource adds a resource, stored under its dynamic type.
func (b *Builder) Resource(res any) *Builder {
	b.resources = append(b.resources, res)
	return b
}

// Provider installs a provider.
func (b *Builder) Provider(p Provider) *Builder {
	b.providers = append(b.providers, p)
	return b
}

// DefaultGroup sets the group of systems that declare none.
func (b *Builder) DefaultGroup(t reflect.Type) *Builder {
	b.defaultGroup = t
	return b
}

// OnUnhandled adds a failure handler, see Scheduler.OnUnhandled.
func (b *Builder) OnUnhandled(fn func(error)) *Builder {
	b.unhandled = append(b.unhandled, fn)
	return b
}

// Init builds the scheduler. Systems join the graph on the first Update.
func (b *Builder) Init() (*Scheduler, error) {
	cfg := b.cfg
	if cfg == nil {
		cfg = DefaultConfig()
	}

	log := b.log
	if log == nil {
		var err error
		if log, err = NewLogger(cfg.Logging); err != nil {
			return nil, fmt.Errorf("systems: build logger: %w", err)
		}
	}

	reg := b.reg
	if reg == nil && cfg.Metrics.Enabled {
		reg = prometheus.DefaultRegisterer
	}

	s := NewScheduler(
		WithLogger(log),
		WithRegisterer(reg, cfg.Metrics.Namespace),
		WithWorkers(cfg.Scheduler.Workers),
	)

	for _, fn := range b.unhandled {
		s.OnUnhandled(fn)
	}

	if b.defaultGroup != nil {
		if err := s.SetDefaultGroupType(b.defaultGroup); err != nil {
			return nil, err
		}
	}

	for _, p := range b.providers {
		s.SetProvider(p)
	}

	for _, res := range b.resources {
		if err := s.setResourceValue(res); err != nil {
			return nil, fmt.Errorf("systems: resource %T: %w", res, err)
		}
	}

	var hooks []func(*Scheduler)
	for _, bundle := range b.bundles {
		if err := bundle.build(s); err != nil {
			return nil, fmt.Errorf("systems: %w", err)
		}
		hooks = append(hooks, bundle.postInitHooks...)
	}

	for _, hook := range hooks {
		hook(s)
	}

	s.log.Info("scheduler initialized",
		zap.Int("bundles", len(b.bundles)),
		zap.Int("workers", s.workers),
		zap.Stringer("default_group", s.DefaultGroup()))

	return s, nil
}
