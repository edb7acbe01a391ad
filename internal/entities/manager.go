package entities

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"chunkloader/internal/config"
	"chunkloader/internal/loader"
	"chunkloader/internal/world"
)

// Manager owns the set of observers that drive chunk tracking.
type Manager struct {
	mu        sync.RWMutex
	observers map[loader.ID]*Observer
	tracking  config.TrackingConfig
	arena     float64
	rng       *rand.Rand
}

// NewManager creates an empty manager. New observers get the tracking radii
// from tracking; arenaChunks bounds wandering observers to a square of that
// many chunks per side centred on the origin (zero disables the bound).
func NewManager(tracking config.TrackingConfig, arenaChunks int, seed int64) *Manager {
	return &Manager{
		observers: make(map[loader.ID]*Observer),
		tracking:  tracking,
		arena:     float64(arenaChunks) * world.ChunkSize / 2,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Spawn registers a new observer with a generated id at pos.
func (m *Manager) Spawn(name string, pos mgl64.Vec2) *Observer {
	obs := &Observer{
		ID:            loader.ID(uuid.NewString()),
		Name:          name,
		Position:      pos,
		Radius:        m.tracking.Radius,
		UnloadRadius:  m.tracking.UnloadRadius,
		PreloadRadius: m.tracking.PreloadRadius,
	}
	m.mu.Lock()
	m.observers[obs.ID] = obs
	m.mu.Unlock()
	return obs
}

// SpawnWanderer spawns an observer at a random arena position heading in a
// random direction at speed world units per second.
func (m *Manager) SpawnWanderer(name string, speed float64) *Observer {
	m.mu.Lock()
	half := m.arena
	if half <= 0 {
		half = world.ChunkSize
	}
	pos := mgl64.Vec2{(m.rng.Float64()*2 - 1) * half, (m.rng.Float64()*2 - 1) * half}
	angle := m.rng.Float64() * 2 * math.Pi
	m.mu.Unlock()

	obs := m.Spawn(name, pos)
	obs.SetVelocity(mgl64.Vec2{math.Cos(angle), math.Sin(angle)}.Mul(speed))
	return obs
}

func (m *Manager) Add(obs *Observer) error {
	if obs == nil {
		return fmt.Errorf("nil observer")
	}
	if obs.ID == "" {
		return fmt.Errorf("observer missing id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.observers[obs.ID]; exists {
		return fmt.Errorf("observer %s already registered", obs.ID)
	}
	m.observers[obs.ID] = obs
	return nil
}

func (m *Manager) Remove(id loader.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.observers[id]; !ok {
		return false
	}
	delete(m.observers, id)
	return true
}

func (m *Manager) Observer(id loader.ID) (*Observer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obs, ok := m.observers[id]
	return obs, ok
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.observers)
}

// Move shifts an observer by delta world units.
func (m *Manager) Move(id loader.ID, delta mgl64.Vec2) error {
	obs, ok := m.Observer(id)
	if !ok {
		return fmt.Errorf("observer %s not found", id)
	}
	obs.mu.Lock()
	obs.Position = obs.Position.Add(delta)
	obs.mu.Unlock()
	return nil
}

// Teleport places an observer at pos regardless of distance.
func (m *Manager) Teleport(id loader.ID, pos mgl64.Vec2) error {
	obs, ok := m.Observer(id)
	if !ok {
		return fmt.Errorf("observer %s not found", id)
	}
	obs.SetPosition(pos)
	return nil
}

func (m *Manager) SetRadii(id loader.ID, radius, unload, preload int) error {
	obs, ok := m.Observer(id)
	if !ok {
		return fmt.Errorf("observer %s not found", id)
	}
	obs.SetRadii(radius, unload, preload)
	return nil
}

// Advance moves every observer along its velocity and keeps it in the arena.
func (m *Manager) Advance(delta time.Duration) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, obs := range m.observers {
		obs.Advance(delta)
		obs.bounce(m.arena)
	}
}

// Loaders returns this frame's tracker input, ordered by id.
func (m *Manager) Loaders() []loader.Loader {
	m.mu.RLock()
	out := make([]loader.Loader, 0, len(m.observers))
	for _, obs := range m.observers {
		out = append(out, obs.Loader())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshots returns copies of every observer, ordered by id.
func (m *Manager) Snapshots() []Observer {
	m.mu.RLock()
	out := make([]Observer, 0, len(m.observers))
	for _, obs := range m.observers {
		out = append(out, obs.Snapshot())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
