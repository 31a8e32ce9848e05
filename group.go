package systems

import (
	"reflect"

	"golang.org/x/sync/errgroup"
)

// RootGroup is the top of every scheduler's graph. It runs its children in order.
type RootGroup struct {
	_ Options `setup:"false" update:"false"`
}

// UpdateChildren implements Group.
func (RootGroup) UpdateChildren(ctx GroupContext) {
	ctx.Update()
}

var rootGroupType = reflect.TypeFor[RootGroup]()

// GroupContext lets a group drive its sorted children. It is only valid
// during the UpdateChildren call that received it and must not be used
// from more than one goroutine.
type GroupContext struct {
	n *node
}

// Len returns the number of children.
func (c GroupContext) Len() int {
	return len(c.n.sorted)
}

// Child returns the i-th child in execution order.
func (c GroupContext) Child(i int) Child {
	return Child{n: c.n.sorted[i]}
}

// Update runs every child, in parallel batches if the group is marked
// parallel and sequentially otherwise.
func (c GroupContext) Update() {
	if c.n.meta.Parallel {
		c.UpdateParallel()
		return
	}
	c.UpdateSequential()
}

// UpdateSequential runs every child in order on the calling goroutine.
func (c GroupContext) UpdateSequential() {
	for _, child := range c.n.sorted {
		child.update()
	}
}

// UpdateParallel runs the children in batches. Children of one batch have
// the same order and partition, so no Before/After edge connects them and
// they run concurrently; batches run one after another.
func (c GroupContext) UpdateParallel() {
	for _, batch := range c.n.batches {
		if len(batch) == 1 {
			batch[0].update()
			continue
		}
		var g errgroup.Group
		g.SetLimit(c.n.s.workers)
		for _, child := range batch {
			g.Go(func() error {
				child.update()
				return nil
			})
		}
		_ = g.Wait()
	}
}

// Child is one child of a group.
type Child struct {
	n *node
}

// Type returns the system type of the child.
func (c Child) Type() reflect.Type {
	return c.n.typ
}

// Meta returns the scheduling metadata of the child.
func (c Child) Meta() SystemMeta {
	return c.n.meta
}

// Update runs the child once: construction on first use, then Update and,
// for groups, its children.
func (c Child) Update() {
	c.n.update()
}
