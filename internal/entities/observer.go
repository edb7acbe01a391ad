package entities

import (
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"chunkloader/internal/loader"
)

// Observer is anything that needs the world resident around it: a player,
// a camera, a simulated wanderer.
type Observer struct {
	mu sync.RWMutex

	ID            loader.ID
	Name          string
	Position      mgl64.Vec2
	Velocity      mgl64.Vec2
	Radius        int
	UnloadRadius  int
	PreloadRadius int

	LastTick time.Time
}

// Snapshot returns a copy of the observer's state.
func (o *Observer) Snapshot() Observer {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Observer{
		ID:            o.ID,
		Name:          o.Name,
		Position:      o.Position,
		Velocity:      o.Velocity,
		Radius:        o.Radius,
		UnloadRadius:  o.UnloadRadius,
		PreloadRadius: o.PreloadRadius,
		LastTick:      o.LastTick,
	}
}

// Loader converts the observer into the tracker's input record.
func (o *Observer) Loader() loader.Loader {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return loader.Loader{
		ID:            o.ID,
		Position:      o.Position,
		Radius:        o.Radius,
		UnloadRadius:  o.UnloadRadius,
		PreloadRadius: o.PreloadRadius,
	}
}

func (o *Observer) Advance(delta time.Duration) {
	o.mu.Lock()
	o.Position = o.Position.Add(o.Velocity.Mul(delta.Seconds()))
	o.LastTick = time.Now()
	o.mu.Unlock()
}

func (o *Observer) SetPosition(pos mgl64.Vec2) {
	o.mu.Lock()
	o.Position = pos
	o.mu.Unlock()
}

func (o *Observer) SetVelocity(vel mgl64.Vec2) {
	o.mu.Lock()
	o.Velocity = vel
	o.mu.Unlock()
}

func (o *Observer) SetRadii(radius, unload, preload int) {
	o.mu.Lock()
	o.Radius = radius
	o.UnloadRadius = unload
	o.PreloadRadius = preload
	o.mu.Unlock()
}

// bounce keeps the observer inside [-half, half] on both axes by reflecting
// its velocity off the arena walls.
func (o *Observer) bounce(half float64) {
	if half <= 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for axis := 0; axis < 2; axis++ {
		switch {
		case o.Position[axis] > half:
			o.Position[axis] = 2*half - o.Position[axis]
			if o.Velocity[axis] > 0 {
				o.Velocity[axis] = -o.Velocity[axis]
			}
		case o.Position[axis] < -half:
			o.Position[axis] = -2*half - o.Position[axis]
			if o.Velocity[axis] < 0 {
				o.Velocity[axis] = -o.Velocity[axis]
			}
		}
		if o.Position[axis] > half {
			o.Position[axis] = half
		} else if o.Position[axis] < -half {
			o.Position[axis] = -half
		}
	}
}
