package main

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/systems"
	"go.uber.org/zap"
)

// Body is the state of the simulated projectile.
type Body struct {
	Position mgl64.Vec3
	Velocity mgl64.Vec3
	Mass     float64
}

// World holds the environment the body moves in.
type World struct {
	Gravity mgl64.Vec3
	Drag    float64
	Ground  float64
}

// Clock advances once per tick.
type Clock struct {
	Tick  uint64
	Delta float64 // seconds per tick
}

// Stats collects what happened during the run.
type Stats struct {
	Bounces  int
	MaxSpeed float64
}

// Simulation runs the physics step. Its force systems write separate
// resources and run concurrently.
type Simulation struct {
	_ systems.Options `parallel:"true"`
}

func (Simulation) UpdateChildren(ctx systems.GroupContext) { ctx.Update() }

// AdvanceClock moves time forward before anything else runs.
type AdvanceClock struct {
	_     systems.Options     `partition:"early"`
	Clock systems.Ref[Clock] `systems:"mut"`
}

func (s *AdvanceClock) Update() {
	c, err := s.Clock.GetMut()
	if err != nil {
		return
	}
	c.Tick++
}

// Impulse is the velocity change gathered from forces this tick.
type Impulse struct {
	Delta mgl64.Vec3
}

// Damping is the velocity scale gathered from resistances this tick.
type Damping struct {
	Factor float64
}

// ApplyGravity accelerates the body towards the ground.
type ApplyGravity struct {
	_       systems.InGroup[Simulation]
	_       systems.Before[Integrate]
	Impulse systems.Ref[Impulse] `systems:"mut"`
	World   systems.Ref[World]
	Clock   systems.Ref[Clock]
}

func (s *ApplyGravity) Update() {
	_ = s.Impulse.Set(Impulse{Delta: s.World.Get().Gravity.Mul(s.Clock.Get().Delta)})
}

// ApplyDrag slows the body down in proportion to its mass.
type ApplyDrag struct {
	_       systems.InGroup[Simulation]
	_       systems.Before[Integrate]
	Damping systems.Ref[Damping] `systems:"mut"`
	Body    systems.Ref[Body]
	World   systems.Ref[World]
	Clock   systems.Ref[Clock]
}

func (s *ApplyDrag) Update() {
	factor := 1.0
	if mass := s.Body.Get().Mass; mass > 0 {
		factor = max(1-s.World.Get().Drag*s.Clock.Get().Delta/mass, 0)
	}
	_ = s.Damping.Set(Damping{Factor: factor})
}

// Integrate moves the body and bounces it off the ground.
type Integrate struct {
	_       systems.InGroup[Simulation]
	Body    *Body `systems:"mut"`
	Impulse systems.Ref[Impulse]
	Damping systems.Ref[Damping]
	World   systems.Ref[World]
	Clock   systems.Ref[Clock]
	Stats   systems.Ref[Stats] `systems:"mut"`
}

func (s *Integrate) Update() {
	stats, err := s.Stats.GetMut()
	if err != nil {
		return
	}
	b, ground := s.Body, s.World.Get().Ground

	b.Velocity = b.Velocity.Add(s.Impulse.Get().Delta).Mul(s.Damping.Get().Factor)
	b.Position = b.Position.Add(b.Velocity.Mul(s.Clock.Get().Delta))
	if b.Position.Y() < ground {
		b.Position[1] = ground
		b.Velocity[1] = -b.Velocity.Y()
		stats.Bounces++
	}
	stats.MaxSpeed = max(stats.MaxSpeed, b.Velocity.Len())
}

// Report logs the body every second of simulated time.
type Report struct {
	_     systems.After[Simulation]
	_     systems.Options `partition:"late"`
	Body  systems.Ref[Body]
	Clock systems.Ref[Clock]
	log   *zap.Logger
}

func (s *Report) Init(ctx systems.InjectContext) error {
	s.log = ctx.Scheduler().Logger().Named("report")
	return nil
}

func (s *Report) Update() {
	c := s.Clock.Get()
	if c.Delta <= 0 || c.Tick%uint64(max(1/c.Delta, 1)) != 0 {
		return
	}
	b := s.Body.Get()
	s.log.Info("body",
		zap.Uint64("tick", c.Tick),
		zap.Float64s("position", b.Position[:]),
		zap.Float64("speed", b.Velocity.Len()))
}

// demoBundle wires the projectile simulation.
func demoBundle(delta float64) *systems.Bundle {
	return systems.NewBundle("projectile").
		Resource(Body{
			Position: mgl64.Vec3{0, 10, 0},
			Velocity: mgl64.Vec3{4, 6, 0},
			Mass:     1,
		}).
		Resource(World{
			Gravity: mgl64.Vec3{0, -9.81, 0},
			Drag:    0.1,
		}).
		Resource(Clock{Delta: delta}).
		System(&AdvanceClock{}).
		System(&Simulation{}).
		System(&ApplyGravity{}).
		System(&ApplyDrag{}).
		System(&Integrate{}).
		System(&Report{})
}
