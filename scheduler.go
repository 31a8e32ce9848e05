package systems

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Scheduler owns a graph of systems and runs it one tick at a time.
//
// Registration is cheap and safe from any goroutine; new systems join the
// graph at the start of the next tick. Ticks never overlap.
type Scheduler struct {
	id      uuid.UUID
	log     *zap.Logger
	metrics *metrics
	workers int

	// Providers
	providerMu      sync.RWMutex
	providers       map[reflect.Type]Provider
	defaultProvider Provider

	// instances holds one slot per system type.
	instances *ResourceContainer

	// pending holds registrations not yet admitted (reflect.Type -> *node).
	// Registrations take pendingMu for reading; admission takes it for
	// writing, which also guards nodes.
	pendingMu sync.RWMutex
	pending   sync.Map
	nodes     map[reflect.Type]*node
	seq       atomic.Int64

	defaultGroup atomic.Value // reflect.Type

	// Execution state
	execMu      sync.Mutex
	root        *node
	traversalID uint64
	started     atomic.Bool
	disposed    atomic.Bool

	unhandledMu sync.RWMutex
	unhandled   []func(error)
}

// Option configures a Scheduler.
type Option func(*schedulerOptions)

type schedulerOptions struct {
	log       *zap.Logger
	reg       prometheus.Registerer
	namespace string
	workers   int
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *schedulerOptions) {
		o.log = l
	}
}

// WithRegisterer registers the scheduler's metrics on reg under namespace.
// Without it the metrics live on a private registry.
func WithRegisterer(reg prometheus.Registerer, namespace string) Option {
	return func(o *schedulerOptions) {
		o.reg = reg
		o.namespace = namespace
	}
}

// WithWorkers limits how many children of a parallel group run at once.
// Values below 1 mean GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *schedulerOptions) {
		o.workers = n
	}
}

// NewScheduler creates a scheduler holding only the root group.
func NewScheduler(opts ...Option) *Scheduler {
	o := schedulerOptions{namespace: "systems"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.workers < 1 {
		o.workers = max(runtime.GOMAXPROCS(0), 1)
	}

	id := uuid.New()
	s := &Scheduler{
		id:              id,
		log:             o.log.With(zap.String("scheduler", id.String())),
		metrics:         newMetrics(o.reg, o.namespace, id.String()),
		workers:         o.workers,
		providers:       make(map[reflect.Type]Provider),
		defaultProvider: NewDefaultProvider(),
		instances:       NewResourceContainer(),
		nodes:           make(map[reflect.Type]*node),
	}
	s.defaultGroup.Store(rootGroupType)
	s.SetProvider(SystemRefProvider{})

	info, err := analyzeSystem(rootGroupType)
	if err != nil {
		panic("systems: " + err.Error())
	}
	s.root = newNode(s, info, info.Meta, nil)
	s.root.linked = true
	s.nodes[rootGroupType] = s.root
	s.metrics.nodes.Set(1)

	return s
}

// ID returns the unique id of the scheduler, also attached to its logs and metrics.
func (s *Scheduler) ID() uuid.UUID {
	return s.id
}

// Logger returns the scheduler's logger.
func (s *Scheduler) Logger() *zap.Logger {
	return s.log
}

// Add registers system type T. It is a no-op if T is already known.
func Add[T any](s *Scheduler) error {
	return s.AddType(reflect.TypeFor[T]())
}

// AddType registers a system type. Pointer types are dereferenced.
func (s *Scheduler) AddType(t reflect.Type) error {
	info, err := analyzeSystem(t)
	if err != nil {
		return err
	}
	return s.register(info, info.Meta, nil, false)
}

// Register registers a system type with explicit metadata and factory. A
// nil factory injects tagged fields like AddType does. Unlike AddType it
// fails with ErrAlreadyRegistered when the type is pending or already has a
// node, including a group created implicitly by one of its members.
func (s *Scheduler) Register(t reflect.Type, meta SystemMeta, factory Factory) error {
	info, err := analyzeSystem(t)
	if err != nil {
		return err
	}
	return s.register(info, meta, factory, true)
}

func (s *Scheduler) register(info *systemInfo, meta SystemMeta, factory Factory, explicit bool) error {
	if s.disposed.Load() {
		return ErrDisposed
	}
	s.pendingMu.RLock()
	defer s.pendingMu.RUnlock()
	if _, ok := s.nodes[info.Type]; ok {
		if explicit {
			return fmt.Errorf("%w: %v", ErrAlreadyRegistered, info.Type)
		}
		return nil
	}
	n := newNode(s, info, meta, factory)
	if _, loaded := s.pending.LoadOrStore(info.Type, n); loaded && explicit {
		return fmt.Errorf("%w: %v", ErrAlreadyRegistered, info.Type)
	}
	n.seq = s.seq.Add(1)
	return nil
}

// SetDefaultGroup makes G the group of systems that declare none.
func SetDefaultGroup[G any](s *Scheduler) error {
	return s.SetDefaultGroupType(reflect.TypeFor[G]())
}

// SetDefaultGroupType makes t the group of systems that declare none.
// Systems already admitted keep their group.
func (s *Scheduler) SetDefaultGroupType(t reflect.Type) error {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || !reflect.PointerTo(t).Implements(groupType) {
		return fmt.Errorf("%w: %v does not implement Group", ErrNotSystem, t)
	}
	if s.started.Load() {
		s.log.Warn("changing the default group after the first tick does not move systems that were already loaded",
			zap.Stringer("group", t))
	}
	s.defaultGroup.Store(t)
	return nil
}

// DefaultGroup returns the group of systems that declare none.
func (s *Scheduler) DefaultGroup() reflect.Type {
	return s.defaultGroup.Load().(reflect.Type)
}

// Update runs one tick: pending systems are admitted and sorted, then the
// graph runs depth first from the root group.
func (s *Scheduler) Update() {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	if s.disposed.Load() {
		return
	}
	s.started.Store(true)

	start := time.Now()
	s.loadNewSystems()
	s.root.update()

	s.metrics.ticks.Inc()
	s.metrics.tickDuration.Observe(time.Since(start).Seconds())
}

// Run calls Update every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("systems: tick interval must be positive, got %v", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Update()
		}
	}
}

// Dispose tears down every system, groups before their children. Failures
// are reported through OnUnhandled. The scheduler cannot be used afterwards.
func (s *Scheduler) Dispose() {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	if s.disposed.Swap(true) {
		return
	}
	s.root.dispose()

	// Systems stranded outside the tree (group cycles, non-group parents).
	s.pendingMu.RLock()
	stranded := make([]*node, 0, len(s.nodes))
	for _, n := range s.nodes {
		stranded = append(stranded, n)
	}
	s.pendingMu.RUnlock()
	slices.SortFunc(stranded, func(a, b *node) int { return cmp.Compare(a.seq, b.seq) })
	for _, n := range stranded {
		n.dispose()
	}
}

// OnUnhandled adds a handler for failures raised by systems during
// construction, setup, update or disposal. Each failure is delivered once,
// as a *SystemError. Without handlers failures are logged.
func (s *Scheduler) OnUnhandled(fn func(error)) {
	s.unhandledMu.Lock()
	s.unhandled = append(s.unhandled, fn)
	s.unhandledMu.Unlock()
}

func (s *Scheduler) emit(err error) {
	phase := "unknown"
	var se *SystemError
	if errors.As(err, &se) {
		phase = se.Phase.String()
	}
	s.metrics.failures.WithLabelValues(phase).Inc()

	s.unhandledMu.RLock()
	handlers := s.unhandled
	s.unhandledMu.RUnlock()
	if len(handlers) == 0 {
		s.log.Error("unhandled system failure", zap.String("phase", phase), zap.Error(err))
		return
	}
	for _, h := range handlers {
		h(err)
	}
}

// SetProvider installs p, replacing any provider of the same type.
func (s *Scheduler) SetProvider(p Provider) {
	s.providerMu.Lock()
	s.providers[reflect.TypeOf(p)] = p
	s.providerMu.Unlock()
}

// ProviderOf returns the installed provider of type P.
func ProviderOf[P Provider](s *Scheduler) (P, bool) {
	s.providerMu.RLock()
	defer s.providerMu.RUnlock()
	p, ok := s.providers[reflect.TypeFor[P]()]
	if !ok {
		var zero P
		return zero, false
	}
	return p.(P), true
}

// MustProviderOf is ProviderOf that panics when P is not installed.
func MustProviderOf[P Provider](s *Scheduler) P {
	p, ok := ProviderOf[P](s)
	if !ok {
		panic(fmt.Sprintf("systems: provider %v is not set", reflect.TypeFor[P]()))
	}
	return p
}

// ProviderByName returns the provider whose Name is name, including the
// default provider.
func (s *Scheduler) ProviderByName(name string) (Provider, bool) {
	s.providerMu.RLock()
	defer s.providerMu.RUnlock()
	if s.defaultProvider.Name() == name {
		return s.defaultProvider, true
	}
	for _, p := range s.providers {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// DefaultProvider returns the provider used for untagged fields and resources.
func (s *Scheduler) DefaultProvider() Provider {
	s.providerMu.RLock()
	defer s.providerMu.RUnlock()
	return s.defaultProvider
}

// SetDefaultProvider replaces the default provider.
func (s *Scheduler) SetDefaultProvider(p Provider) {
	s.providerMu.Lock()
	s.defaultProvider = p
	s.providerMu.Unlock()
}

// ClearResources clears the default provider and every installed provider.
func (s *Scheduler) ClearResources() {
	s.providerMu.RLock()
	ps := []Provider{s.defaultProvider}
	for _, p := range s.providers {
		ps = append(ps, p)
	}
	s.providerMu.RUnlock()
	for _, p := range ps {
		p.Clear()
	}
}

// ResourceRef returns a mutable reference to the default resource of type T.
func ResourceRef[T any](s *Scheduler) (Ref[T], error) {
	return Resolve[T](s.DefaultProvider(), nil, Request{Scheduler: s})
}

// SetResource stores v as the default resource of type T.
func SetResource[T any](s *Scheduler, v T) error {
	r, err := ResourceRef[T](s)
	if err != nil {
		return err
	}
	return r.Set(v)
}

// GetResource returns a copy of the default resource of type T, or its zero
// value if the default provider cannot resolve T.
func GetResource[T any](s *Scheduler) T {
	r, err := ResourceRef[T](s)
	if err != nil {
		var zero T
		return zero
	}
	return r.Get()
}

// setResourceValue stores v under its dynamic type.
func (s *Scheduler) setResourceValue(v any) error {
	t := reflect.TypeOf(v)
	if t == nil {
		return fmt.Errorf("%w: nil resource", ErrUnsupportedRequest)
	}
	u, err := s.DefaultProvider().Resolve(t, nil, Request{Scheduler: s})
	if err != nil {
		return err
	}
	p, err := u.Pointer()
	if err != nil {
		return err
	}
	reflect.ValueOf(p).Elem().Set(reflect.ValueOf(v))
	return nil
}

// Order returns the execution order of the children of group, as of the
// last tick. It must not be called from inside a system.
func (s *Scheduler) Order(group reflect.Type) []reflect.Type {
	s.execMu.Lock()
	defer s.execMu.Unlock()
	n, ok := s.nodes[group]
	if !ok {
		return nil
	}
	order := make([]reflect.Type, len(n.sorted))
	for i, c := range n.sorted {
		order[i] = c.typ
	}
	return order
}

// Systems returns every admitted system and group type, sorted by name.
func (s *Scheduler) Systems() []reflect.Type {
	s.pendingMu.RLock()
	types := make([]reflect.Type, 0, len(s.nodes))
	for t := range s.nodes {
		types = append(types, t)
	}
	s.pendingMu.RUnlock()
	slices.SortFunc(types, func(a, b reflect.Type) int { return strings.Compare(a.String(), b.String()) })
	return types
}

// Failed reports whether the system of type t failed to construct and is
// disabled.
func (s *Scheduler) Failed(t reflect.Type) bool {
	s.pendingMu.RLock()
	n, ok := s.nodes[t]
	s.pendingMu.RUnlock()
	return ok && n.failed()
}
