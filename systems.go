// Package systems provides a dependency ordered, resource injecting tick scheduler.
//
// A Scheduler holds systems: plain Go structs that run once per tick. Systems
// declare where they run with phantom fields and receive shared resources
// through tagged fields:
//   - Grouping and ordering via InGroup, Before and After markers
//   - Partition hints for loose early/late ordering
//   - Typed references to singleton-per-type resources
//   - Pluggable providers for resources owned elsewhere
//   - Parallel groups whose independent children run concurrently
//
// # Quick Start
//
//	type Counter struct{ N int }
//
//	type Increment struct {
//	    Counter systems.Ref[Counter] `systems:"mut"`
//	}
//
//	func (s *Increment) Update() {
//	    c, _ := s.Counter.GetMut()
//	    c.N++
//	}
//
//	sched, err := systems.NewBuilder().
//	    Bundle(systems.NewBundle("game").System(&Increment{})).
//	    Init()
//	if err != nil {
//	    return err
//	}
//	defer sched.Dispose()
//	sched.Update()
//
// # Groups
//
// Every system belongs to a group; systems that name none go to the default
// group, which is RootGroup unless changed. A group is any system that
// implements Group. Before and After only order systems of the same group.
//
//	type Simulation struct {
//	    _ systems.Options `parallel:"true"`
//	}
//
//	func (Simulation) UpdateChildren(ctx systems.GroupContext) { ctx.Update() }
//
//	type Integrate struct {
//	    _ systems.InGroup[Simulation]
//	    _ systems.After[ApplyForces]
//	}
//
// # Tag Reference
//
//	(none)                    Ref[T] read-only reference from the default provider
//	systems:"mut"             Mutable reference
//	systems:"opt"             Leave zero if the provider cannot resolve
//	systems:"self"            The system's own instance
//	systems:"system"          Another system's instance
//	systems:"provider=name"   Resolve through the named provider
//	systems:"key=value"       Extra data passed to the provider
//	systems:"-"               Never inject
//
// *T fields are only injected when they carry a systems tag, and that tag
// must include mut. A read-only reference fails construction with
// ErrUnsupportedOperation.
package systems

// Version is the systems version.
const Version = "1.0.0"

