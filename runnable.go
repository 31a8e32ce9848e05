package systems

import "reflect"

// Updater is implemented by systems that do work every tick.
// Update is called once per tick while the system is enabled.
type Updater interface {
	Update()
}

// Setuper is implemented by systems that need one-time setup.
// Setup runs once, right after construction and before the first Update.
// An error disables the system for the scheduler's lifetime.
type Setuper interface {
	Setup() error
}

// Initializer is implemented by systems that resolve extra dependencies by
// hand after their tagged fields were injected.
type Initializer interface {
	Init(ctx InjectContext) error
}

// Disposer is implemented by systems that hold resources to release when
// the scheduler is disposed.
type Disposer interface {
	Dispose() error
}

// Group is implemented by systems that own child systems. UpdateChildren runs
// after the group's own Update and decides whether and how its children run.
type Group interface {
	UpdateChildren(ctx GroupContext)
}

var (
	updaterType = reflect.TypeFor[Updater]()
	setuperType = reflect.TypeFor[Setuper]()
	groupType   = reflect.TypeFor[Group]()
)
