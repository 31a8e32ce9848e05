package systems

import (
	"reflect"
	"sync/atomic"

	"go.uber.org/zap"
)

// Creation states of a node instance.
const (
	createNotStarted uint32 = iota
	createInProgress
	createDone
	createFailed
)

// node is one system or group in the scheduler graph.
type node struct {
	s       *Scheduler
	typ     reflect.Type
	info    *systemInfo
	meta    SystemMeta
	factory Factory
	isGroup bool

	// seq is the admission sequence, used to keep sorting stable.
	seq int64

	// Group membership. children keeps insertion order; linked is set once
	// the node was added to its own parent.
	linked   bool
	children []*node
	childSet map[*node]struct{}
	sorted   []*node
	batches  [][]*node

	// Per-sort graph state, reset before every sort of the parent group.
	toLinks     []*node
	toSet       map[*node]struct{}
	fromLinks   int
	order       uint64
	traversalID uint64
	sortInc     int

	state    atomic.Uint32
	disposed atomic.Bool
	instance UntypedRef
}

func newNode(s *Scheduler, info *systemInfo, meta SystemMeta, factory Factory) *node {
	if factory == nil {
		factory = reflectFactory(info)
	}
	return &node{
		s:       s,
		typ:     info.Type,
		info:    info,
		meta:    meta,
		factory: factory,
		isGroup: info.IsGroup,
	}
}

func (n *node) String() string {
	return n.typ.String()
}

// addChild adds c to the group and reports whether it was new.
func (n *node) addChild(c *node) bool {
	if n.childSet == nil {
		n.childSet = make(map[*node]struct{})
	}
	if _, ok := n.childSet[c]; ok {
		return false
	}
	n.childSet[c] = struct{}{}
	n.children = append(n.children, c)
	return true
}

func (n *node) hasChild(c *node) bool {
	_, ok := n.childSet[c]
	return ok
}

// link adds the edge n -> to.
func (n *node) link(to *node) {
	if n.toSet == nil {
		n.toSet = make(map[*node]struct{})
	}
	if _, ok := n.toSet[to]; ok {
		return
	}
	n.toSet[to] = struct{}{}
	n.toLinks = append(n.toLinks, to)
	to.fromLinks++
}

func (n *node) graphReset() {
	n.order = 0
	n.sortInc = 0
	n.toLinks = n.toLinks[:0]
	clear(n.toSet)
	n.fromLinks = 0
}

// ensureCreated constructs the instance exactly once. Callers that lose the
// race spin until the winner is done.
func (n *node) ensureCreated() bool {
	for spins := 0; ; spins++ {
		switch n.state.Load() {
		case createDone:
			return true
		case createFailed:
			return false
		case createNotStarted:
			if !n.state.CompareAndSwap(createNotStarted, createInProgress) {
				break
			}
			if n.disposed.Load() {
				n.state.Store(createFailed)
				return false
			}
			if err := n.create(); err != nil {
				n.state.Store(createFailed)
				n.s.log.Error("system setup failed, this system will not be updated",
					zap.Stringer("system", n.typ), zap.Error(err))
				n.s.emit(err)
				return false
			}
			n.state.Store(createDone)
			return true
		}
		backoff(spins)
	}
}

func (n *node) create() error {
	slot := n.s.instances.GetOrAddType(n.typ)
	n.instance = slot
	h := SystemHandle{typ: n.typ, slot: slot}
	ctx := InjectContext{s: n.s, system: n.typ}

	if err := guard(func() error { return n.factory(ctx, h) }); err != nil {
		return &SystemError{System: n.typ, Phase: PhaseCreate, Err: err}
	}
	if !n.meta.Setup {
		return nil
	}
	if su, ok := n.object().(Setuper); ok {
		if err := guard(su.Setup); err != nil {
			return &SystemError{System: n.typ, Phase: PhaseSetup, Err: err}
		}
	}
	return nil
}

// object returns the *T of the instance.
func (n *node) object() any {
	if n.instance.IsNull() {
		return nil
	}
	return n.instance.raw()
}

// update runs one tick of the node and, for groups, of its children.
func (n *node) update() {
	if n.disposed.Load() || !n.ensureCreated() {
		return
	}
	obj := n.object()
	err := guard(func() error {
		if n.meta.Update {
			if u, ok := obj.(Updater); ok {
				u.Update()
			}
		}
		if n.isGroup {
			if g, ok := obj.(Group); ok {
				g.UpdateChildren(GroupContext{n: n})
			}
		}
		return nil
	})
	if err != nil {
		n.s.emit(&SystemError{System: n.typ, Phase: PhaseUpdate, Err: err})
	}
}

// dispose tears down the node and every node below it. Failures are
// reported and do not stop the walk.
func (n *node) dispose() {
	if n.disposed.Swap(true) {
		return
	}
	if n.state.Load() == createDone {
		if d, ok := n.object().(Disposer); ok {
			if err := guard(d.Dispose); err != nil {
				n.s.emit(&SystemError{System: n.typ, Phase: PhaseDispose, Err: err})
			}
		}
	}
	for _, c := range n.children {
		c.dispose()
	}
}

// failed reports whether construction failed.
func (n *node) failed() bool {
	return n.state.Load() == createFailed
}
