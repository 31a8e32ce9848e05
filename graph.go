package systems

import (
	"cmp"
	"reflect"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// traversal records the path of one graph walk. Nodes on the path carry the
// walk's stamp; popping a node steps its stamp back so a later branch of the
// same walk may visit it again.
type traversal struct {
	stack []*node
	id    uint64
}

// record pushes n and reports whether n is already on the path.
func (t *traversal) record(n *node) bool {
	t.stack = append(t.stack, n)
	if n.traversalID >= t.id {
		return true
	}
	n.traversalID = t.id
	return false
}

func (t *traversal) pop(n *node) {
	last := len(t.stack) - 1
	if last < 0 || t.stack[last] != n {
		panic("systems: traversal stack out of balance")
	}
	t.stack = t.stack[:last]
	n.traversalID--
}

// drop removes the repeated entry pushed by a record that found a cycle.
func (t *traversal) drop() {
	t.stack = t.stack[:len(t.stack)-1]
}

// cycle returns the path from the first occurrence of the repeated node.
func (t *traversal) cycle() []*node {
	last := t.stack[len(t.stack)-1]
	for i, n := range t.stack[:len(t.stack)-1] {
		if n == last {
			return t.stack[i:]
		}
	}
	return t.stack
}

func (t *traversal) reset(id uint64) {
	t.stack = t.stack[:0]
	t.id = id
}

func (s *Scheduler) nextTraversal() uint64 {
	s.traversalID++
	return s.traversalID
}

// loadNewSystems admits pending registrations, links them into their groups
// and re-sorts every group whose children changed. Callers hold execMu.
func (s *Scheduler) loadNewSystems() {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	var pending []*node
	s.pending.Range(func(_, v any) bool {
		pending = append(pending, v.(*node))
		return true
	})
	if len(pending) == 0 {
		return
	}
	s.pending.Clear()
	slices.SortFunc(pending, func(a, b *node) int { return cmp.Compare(a.seq, b.seq) })

	changed := make(map[*node]struct{})
	var dirty []*node
	markDirty := func(g *node) {
		if _, ok := changed[g]; !ok {
			changed[g] = struct{}{}
			dirty = append(dirty, g)
		}
	}

	for _, n := range pending {
		s.nodes[n.typ] = n
	}

	def := s.groupNode(s.DefaultGroup())
	if def.meta.Group != nil && def.meta.Group != rootGroupType {
		s.log.Error("a default group cannot have a parent group", zap.Stringer("group", def.typ))
	}

	t := &traversal{id: s.nextTraversal()}
	for _, n := range pending {
		s.ensureGroups(t, n, markDirty)
		t.reset(s.nextTraversal())
	}

	for _, g := range dirty {
		s.sortGroup(g)
	}

	s.metrics.nodes.Set(float64(len(s.nodes)))
	s.log.Debug("admitted systems", zap.Int("count", len(pending)), zap.Int("dirty_groups", len(dirty)))
}

// ensureGroups walks from n up to the root, adding each node to its parent
// group. The walk stops at the root, at a node that was already linked, or
// at a group cycle.
func (s *Scheduler) ensureGroups(t *traversal, n *node, markDirty func(*node)) {
	for {
		if n.typ == rootGroupType {
			return
		}
		if t.record(n) {
			s.logCycle(t.stack, true)
			return
		}
		if n.linked {
			return
		}
		g := s.groupNode(s.parentOf(n))
		if g.addChild(n) {
			if !g.isGroup {
				s.log.Warn("group does not implement Group, its members will not run",
					zap.Stringer("group", g.typ), zap.Stringer("system", n.typ))
			}
			markDirty(g)
			s.log.Debug("system added to group",
				zap.Stringer("system", n.typ),
				zap.Stringer("group", g.typ),
				zap.String("partition", partitionName(n.meta.Partition)))
		}
		n.linked = true
		n = g
	}
}

// parentOf returns the declared group of n or the default group.
func (s *Scheduler) parentOf(n *node) reflect.Type {
	if n.meta.Group != nil {
		return n.meta.Group
	}
	def := s.DefaultGroup()
	if n.typ == def {
		return rootGroupType
	}
	return def
}

// groupNode returns the node for t, creating it implicitly if needed.
func (s *Scheduler) groupNode(t reflect.Type) *node {
	if g, ok := s.nodes[t]; ok {
		return g
	}
	s.log.Debug("implicitly added group", zap.Stringer("group", t))
	g := s.implicitNode(t)
	s.nodes[t] = g
	return g
}

// implicitNode builds a node for a type only referenced as a group.
func (s *Scheduler) implicitNode(t reflect.Type) *node {
	info, err := analyzeSystem(t)
	if err != nil {
		s.log.Error("implicit group is not a system", zap.Stringer("group", t), zap.Error(err))
		info = &systemInfo{Type: t, Name: t.String(), Meta: DefaultMeta()}
		n := newNode(s, info, info.Meta, func(InjectContext, SystemHandle) error { return err })
		n.seq = s.seq.Add(1)
		return n
	}
	n := newNode(s, info, info.Meta, nil)
	n.seq = s.seq.Add(1)
	return n
}

// sortGroup orders the children of g. Before/After edges are only honoured
// between children of g; anything else is reported and dropped.
func (s *Scheduler) sortGroup(g *node) {
	if len(g.children) == 0 {
		g.sorted = nil
		g.batches = nil
		return
	}

	for _, n := range g.children {
		n.graphReset()
	}

	for _, n := range g.children {
		for _, after := range n.meta.After {
			if src, ok := s.sibling(g, n, after, "after"); ok {
				src.link(n)
			}
		}
		for _, before := range n.meta.Before {
			if dst, ok := s.sibling(g, n, before, "before"); ok {
				n.link(dst)
			}
		}
	}

	reported := make(map[*node]struct{})
	t := &traversal{id: s.nextTraversal()}
	// Roots first, so chains are labelled from their start.
	for _, n := range g.children {
		if n.fromLinks != 0 || len(n.toLinks) == 0 || n.sortInc > 0 {
			continue
		}
		s.sortGraph(t, n, 0, reported)
		t.reset(s.nextTraversal())
	}
	// Whatever is left unlabelled sits on a cycle with no way in.
	for _, n := range g.children {
		if len(n.toLinks) == 0 || n.sortInc > 0 {
			continue
		}
		s.sortGraph(t, n, 0, reported)
		t.reset(s.nextTraversal())
	}

	sorted := slices.Clone(g.children)
	slices.SortStableFunc(sorted, func(a, b *node) int {
		if c := cmp.Compare(a.order, b.order); c != 0 {
			return c
		}
		if c := cmp.Compare(a.meta.Partition, b.meta.Partition); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	g.sorted = sorted
	g.batches = batchSorted(sorted)

	if s.log.Core().Enabled(zap.DebugLevel) {
		s.log.Debug("sorted group", zap.Stringer("group", g.typ), zap.Stringers("order", sorted))
	}
}

// sibling resolves a Before/After target of n within g.
func (s *Scheduler) sibling(g, n *node, target reflect.Type, rel string) (*node, bool) {
	other, ok := s.nodes[target]
	if !ok {
		s.log.Warn("system was not added, but was found in the "+rel+" of another system",
			zap.Stringer("target", target), zap.Stringer("system", n.typ))
		return nil, false
	}
	if !g.hasChild(other) {
		s.log.Warn("system not in the group, but was found in the "+rel+" of another system, systems can only be sorted within the same group",
			zap.Stringer("target", target), zap.Stringer("group", g.typ), zap.Stringer("system", n.typ))
		return nil, false
	}
	return other, true
}

// sortGraph labels n and everything reachable from it with a depth order.
func (s *Scheduler) sortGraph(t *traversal, n *node, base uint64, reported map[*node]struct{}) {
	// Already labelled at least this deep: the subtree below is too.
	if n.sortInc > 0 && base <= n.order && n.traversalID < t.id {
		return
	}
	if t.record(n) {
		s.reportCycle(t, reported)
		t.drop()
		return
	}
	n.order = max(base, n.order)
	next := n.order + 1
	for _, to := range n.toLinks {
		s.sortGraph(t, to, next, reported)
	}
	t.pop(n)
	n.sortInc++
}

// reportCycle logs the cycle at the top of t unless every node on it was
// already reported during this sort.
func (s *Scheduler) reportCycle(t *traversal, reported map[*node]struct{}) {
	cycle := t.cycle()
	fresh := false
	for _, n := range cycle {
		if _, ok := reported[n]; !ok {
			fresh = true
			reported[n] = struct{}{}
		}
	}
	if fresh {
		s.logCycle(cycle, false)
	}
}

func (s *Scheduler) logCycle(path []*node, group bool) {
	var sb strings.Builder
	sep := " -> "
	msg := "system circular dependencies"
	if group {
		sep = " <- "
		msg = "system group circular dependencies"
	}
	for i, n := range path {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString("[" + n.typ.String() + "]")
	}
	s.log.Error(msg, zap.String("path", sb.String()))
	s.metrics.cycles.Inc()
}

// batchSorted splits sorted children into runs of equal order and
// partition. No edge connects two nodes of the same run.
func batchSorted(sorted []*node) [][]*node {
	var batches [][]*node
	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) && sorted[i].order == sorted[start].order &&
			sorted[i].meta.Partition == sorted[start].meta.Partition {
			continue
		}
		batches = append(batches, sorted[start:i:i])
		start = i
	}
	return batches
}
