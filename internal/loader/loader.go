package loader

import (
	"github.com/go-gl/mathgl/mgl64"

	"chunkloader/internal/world"
)

// ID identifies a tracked observer. Any stable string works; the entity
// manager hands out UUIDs.
type ID string

// Loader is one observer's request for resident chunks around its position.
//
// Radius is the critical square half-width in chunks. PreloadRadius extends a
// lower priority ring around it; a value equal to Radius means no ring.
// UnloadRadius is where claims are finally released, so a loader moving back
// and forth across a boundary does not thrash.
type Loader struct {
	ID            ID
	Position      mgl64.Vec2
	Radius        int
	UnloadRadius  int
	PreloadRadius int
}

// Normalize clamps the radii into a consistent shape:
// 0 <= Radius <= PreloadRadius <= UnloadRadius.
func (l Loader) Normalize() Loader {
	if l.Radius < 0 {
		l.Radius = 0
	}
	if l.PreloadRadius < l.Radius {
		l.PreloadRadius = l.Radius
	}
	if l.UnloadRadius < l.PreloadRadius {
		l.UnloadRadius = l.PreloadRadius
	}
	return l
}

// Chunk returns the chunk the loader currently stands in.
func (l Loader) Chunk() world.ChunkCoord {
	return world.ToChunk(l.Position)
}

// Record captures the normalised loader state in chunk space.
func (l Loader) Record() Record {
	n := l.Normalize()
	return Record{
		Chunk:         n.Chunk(),
		Radius:        n.Radius,
		UnloadRadius:  n.UnloadRadius,
		PreloadRadius: n.PreloadRadius,
	}
}

// Record is the cached per-loader state used to diff one frame against the
// next. Two equal records mean the loader's claims are unchanged.
type Record struct {
	Chunk         world.ChunkCoord
	Radius        int
	UnloadRadius  int
	PreloadRadius int
}

// SameRadii reports whether only the position can differ between r and other.
func (r Record) SameRadii(other Record) bool {
	return r.Radius == other.Radius &&
		r.UnloadRadius == other.UnloadRadius &&
		r.PreloadRadius == other.PreloadRadius
}

// HasPreload reports whether the record defines a preload ring.
func (r Record) HasPreload() bool {
	return r.PreloadRadius > r.Radius
}

// Critical is the square of chunks that must be loaded.
func (r Record) Critical() Square {
	return Square{Center: r.Chunk, Radius: r.Radius}
}

// Footprint is the critical square plus the preload ring.
func (r Record) Footprint() Square {
	return Square{Center: r.Chunk, Radius: r.PreloadRadius}
}

// Retained is the square outside of which held chunks are released.
func (r Record) Retained() Square {
	return Square{Center: r.Chunk, Radius: r.UnloadRadius}
}
