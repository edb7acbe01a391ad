package entities

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"chunkloader/internal/config"
	"chunkloader/internal/loader"
)

func testTracking() config.TrackingConfig {
	return config.TrackingConfig{Radius: 2, UnloadRadius: 4, PreloadRadius: 3}
}

func TestSpawnAssignsUniqueIDsAndTrackingRadii(t *testing.T) {
	m := NewManager(testTracking(), 10, 1)
	a := m.Spawn("a", mgl64.Vec2{})
	b := m.Spawn("b", mgl64.Vec2{})
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct ids, got %q and %q", a.ID, b.ID)
	}
	if a.Radius != 2 || a.UnloadRadius != 4 || a.PreloadRadius != 3 {
		t.Fatalf("expected tracking radii, got %d/%d/%d", a.Radius, a.UnloadRadius, a.PreloadRadius)
	}
	if m.Len() != 2 {
		t.Fatalf("expected 2 observers, got %d", m.Len())
	}
}

func TestAddRejectsDuplicatesAndMissingIDs(t *testing.T) {
	m := NewManager(testTracking(), 0, 1)
	if err := m.Add(nil); err == nil {
		t.Fatalf("expected error for nil observer")
	}
	if err := m.Add(&Observer{}); err == nil {
		t.Fatalf("expected error for missing id")
	}
	if err := m.Add(&Observer{ID: "cam"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.Add(&Observer{ID: "cam"}); err == nil {
		t.Fatalf("expected duplicate id to be rejected")
	}
	if !m.Remove("cam") {
		t.Fatalf("expected remove to report success")
	}
	if m.Remove("cam") {
		t.Fatalf("expected second remove to report missing observer")
	}
}

func TestMoveTeleportAndSetRadiiFeedLoaders(t *testing.T) {
	m := NewManager(testTracking(), 0, 1)
	if err := m.Add(&Observer{ID: "b", Radius: 1}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.Add(&Observer{ID: "a", Radius: 1}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := m.Move("a", mgl64.Vec2{10, -4}); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if err := m.Teleport("b", mgl64.Vec2{1000, 1000}); err != nil {
		t.Fatalf("Teleport: %v", err)
	}
	if err := m.SetRadii("b", 0, 6, 5); err != nil {
		t.Fatalf("SetRadii: %v", err)
	}
	if err := m.Move("missing", mgl64.Vec2{}); err == nil {
		t.Fatalf("expected error for unknown observer")
	}

	loaders := m.Loaders()
	if len(loaders) != 2 || loaders[0].ID != "a" || loaders[1].ID != "b" {
		t.Fatalf("expected loaders ordered by id, got %+v", loaders)
	}
	if loaders[0].Position != (mgl64.Vec2{10, -4}) {
		t.Fatalf("unexpected position for a: %v", loaders[0].Position)
	}
	want := loader.Loader{ID: "b", Position: mgl64.Vec2{1000, 1000}, Radius: 0, UnloadRadius: 6, PreloadRadius: 5}
	if loaders[1] != want {
		t.Fatalf("unexpected loader for b: %+v", loaders[1])
	}
}

func TestAdvanceMovesAlongVelocity(t *testing.T) {
	m := NewManager(testTracking(), 0, 1)
	obs := m.Spawn("runner", mgl64.Vec2{})
	obs.SetVelocity(mgl64.Vec2{10, -5})

	m.Advance(500 * time.Millisecond)

	snap := obs.Snapshot()
	if !snap.Position.ApproxEqual(mgl64.Vec2{5, -2.5}) {
		t.Fatalf("unexpected position %v", snap.Position)
	}
}

func TestAdvanceBouncesOffArenaWalls(t *testing.T) {
	m := NewManager(testTracking(), 2, 1)
	obs := m.Spawn("runner", mgl64.Vec2{30, 0})
	obs.SetVelocity(mgl64.Vec2{10, 0})

	m.Advance(time.Second)

	snap := obs.Snapshot()
	if snap.Position.X() > 32 || snap.Position.X() < -32 {
		t.Fatalf("observer escaped the arena: %v", snap.Position)
	}
	if !snap.Position.ApproxEqual(mgl64.Vec2{24, 0}) {
		t.Fatalf("expected reflection to 24, got %v", snap.Position)
	}
	if snap.Velocity.X() >= 0 {
		t.Fatalf("expected velocity to flip, got %v", snap.Velocity)
	}
}

func TestSpawnWandererStaysInsideArena(t *testing.T) {
	m := NewManager(testTracking(), 4, 7)
	for i := 0; i < 20; i++ {
		m.SpawnWanderer("w", 200)
	}
	for step := 0; step < 100; step++ {
		m.Advance(100 * time.Millisecond)
	}
	snaps := m.Snapshots()
	for i := range snaps {
		pos := snaps[i].Position
		if pos.X() > 64 || pos.X() < -64 || pos.Y() > 64 || pos.Y() < -64 {
			t.Fatalf("wanderer %s left the arena: %v", snaps[i].ID, pos)
		}
	}
}
