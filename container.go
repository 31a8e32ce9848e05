package systems

import (
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"
)

const (
	chunkShift = 9
	// ChunkSize is the number of slots in one storage chunk.
	ChunkSize = 1 << chunkShift
	chunkMask = ChunkSize - 1

	initialChunks = 4
)

// Slot states.
const (
	slotAbsent uint32 = iota
	slotInitializing
	slotReady
)

// slot holds one resource. value is a *T written once while the state is
// slotInitializing and published by the transition to slotReady.
type slot struct {
	state atomic.Uint32
	typ   reflect.Type
	value any
}

type chunk [ChunkSize]slot

// pendingChunk marks a chunk table entry whose chunk is being allocated.
var pendingChunk = new(chunk)

// ResourceContainer stores one value per type. Slots are addressed by a
// per-type index and live in fixed-size chunks that are never moved, so
// references handed out stay valid while the table of chunks grows.
type ResourceContainer struct {
	// index maps reflect.Type to its slot index (int).
	index sync.Map

	// next is the next never-used slot index.
	next atomic.Int64

	// free holds indices released by TryRemove.
	freeMu sync.Mutex
	free   []int

	// table is the chunk table. It is replaced, never mutated in length, when
	// growing; growMu is held for writing while replacing it and for reading
	// while a chunk is being installed.
	table  atomic.Pointer[[]atomic.Pointer[chunk]]
	growMu sync.RWMutex
}

// NewResourceContainer creates an empty container.
func NewResourceContainer() *ResourceContainer {
	c := &ResourceContainer{}
	c.reset()
	return c
}

func (c *ResourceContainer) reset() {
	tbl := make([]atomic.Pointer[chunk], initialChunks)
	c.table.Store(&tbl)
	c.next.Store(0)
	c.free = nil
}

// GetOrAdd returns a reference to the value of type T in c, creating a
// zero value on first use.
func GetOrAdd[T any](c *ResourceContainer) Ref[T] {
	t := reflect.TypeFor[T]()
	v := c.slotValue(c.indexOf(t), t, func() any { return new(T) })
	return NewRef(v.(*T))
}

// GetOrAddType is GetOrAdd for a type only known at runtime.
func (c *ResourceContainer) GetOrAddType(t reflect.Type) UntypedRef {
	v := c.slotValue(c.indexOf(t), t, func() any { return reflect.New(t).Interface() })
	return UntypedPointer(v)
}

// Contains reports whether a slot for t exists.
func (c *ResourceContainer) Contains(t reflect.Type) bool {
	_, ok := c.index.Load(t)
	return ok
}

// TryRemove detaches the slot for T and recycles its index. It must not
// race with GetOrAdd for the same type.
func TryRemove[T any](c *ResourceContainer) bool {
	return c.TryRemoveType(reflect.TypeFor[T]())
}

// TryRemoveType is TryRemove for a type only known at runtime.
func (c *ResourceContainer) TryRemoveType(t reflect.Type) bool {
	v, ok := c.index.LoadAndDelete(t)
	if !ok {
		return false
	}
	idx := v.(int)
	s := c.slotAt(idx)
	// Wait for a concurrent first touch to finish before clearing.
	for spins := 0; s.state.Load() == slotInitializing; spins++ {
		backoff(spins)
	}
	s.value = nil
	s.typ = nil
	s.state.Store(slotAbsent)
	c.release(idx)
	return true
}

// Clear drops every slot. It is not safe for concurrent use with any other
// method.
func (c *ResourceContainer) Clear() {
	c.index.Clear()
	c.reset()
}

// Len returns the number of types with a slot.
func (c *ResourceContainer) Len() int {
	n := 0
	c.index.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Range calls fn for every type with a slot until fn returns false.
func (c *ResourceContainer) Range(fn func(t reflect.Type, ref UntypedRef) bool) {
	c.index.Range(func(k, _ any) bool {
		t := k.(reflect.Type)
		return fn(t, c.GetOrAddType(t))
	})
}

// indexOf returns the slot index of t, allocating one if needed. When two
// callers race, the loser's index goes back to the free list.
func (c *ResourceContainer) indexOf(t reflect.Type) int {
	if v, ok := c.index.Load(t); ok {
		return v.(int)
	}
	idx := c.alloc()
	actual, loaded := c.index.LoadOrStore(t, idx)
	if loaded {
		c.release(idx)
		return actual.(int)
	}
	return idx
}

func (c *ResourceContainer) alloc() int {
	c.freeMu.Lock()
	if n := len(c.free); n > 0 {
		idx := c.free[n-1]
		c.free = c.free[:n-1]
		c.freeMu.Unlock()
		return idx
	}
	c.freeMu.Unlock()
	return int(c.next.Add(1) - 1)
}

func (c *ResourceContainer) release(idx int) {
	c.freeMu.Lock()
	c.free = append(c.free, idx)
	c.freeMu.Unlock()
}

// slotValue returns the *T stored at idx, materialising it with mk exactly once.
func (c *ResourceContainer) slotValue(idx int, t reflect.Type, mk func() any) any {
	s := c.slotAt(idx)
	for spins := 0; ; spins++ {
		switch s.state.Load() {
		case slotReady:
			if debugChecks && s.typ != t {
				panic(fmt.Errorf("%w: slot %d holds %v, requested %v", ErrTypeMismatch, idx, s.typ, t))
			}
			return s.value
		case slotAbsent:
			if s.state.CompareAndSwap(slotAbsent, slotInitializing) {
				s.typ = t
				s.value = mk()
				s.state.Store(slotReady)
				return s.value
			}
		}
		backoff(spins)
	}
}

func (c *ResourceContainer) slotAt(idx int) *slot {
	ch := c.chunkAt(idx >> chunkShift)
	return &ch[idx&chunkMask]
}

// chunkAt returns chunk ci, growing the table and installing the chunk as needed.
func (c *ResourceContainer) chunkAt(ci int) *chunk {
	for spins := 0; ; spins++ {
		tbl := *c.table.Load()
		if ci >= len(tbl) {
			c.grow(ci)
			continue
		}
		ch := tbl[ci].Load()
		if ch != nil && ch != pendingChunk {
			return ch
		}
		if ch == nil {
			if ch = c.install(ci); ch != nil {
				return ch
			}
		}
		backoff(spins)
	}
}

// install allocates chunk ci if no other caller got there first. It returns
// nil when another caller owns the allocation.
func (c *ResourceContainer) install(ci int) *chunk {
	c.growMu.RLock()
	defer c.growMu.RUnlock()
	tbl := *c.table.Load()
	if !tbl[ci].CompareAndSwap(nil, pendingChunk) {
		return nil
	}
	ch := new(chunk)
	tbl[ci].Store(ch)
	return ch
}

// grow doubles the chunk table until it holds index ci.
func (c *ResourceContainer) grow(ci int) {
	if !c.growMu.TryLock() {
		runtime.Gosched()
		return
	}
	defer c.growMu.Unlock()
	old := *c.table.Load()
	if ci < len(old) {
		return
	}
	n := len(old) * 2
	for n <= ci {
		n *= 2
	}
	next := make([]atomic.Pointer[chunk], n)
	for i := range old {
		next[i].Store(old[i].Load())
	}
	c.table.Store(&next)
}

// backoff spins briefly before yielding the processor.
func backoff(spins int) {
	if spins < 16 {
		return
	}
	runtime.Gosched()
}
