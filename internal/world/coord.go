package world

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ChunkSize is the edge length of a chunk in world units. Every subsystem
// shares it; there is no per-subsystem granularity.
const ChunkSize = 32.0

// ChunkCoord identifies a chunk in global chunk space. X and Z index the
// horizontal grid; the world's vertical axis is not chunked.
type ChunkCoord struct {
	X int `json:"x"`
	Z int `json:"z"`
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Z)
}

// Offset returns the coordinate shifted by dx, dz chunks.
func (c ChunkCoord) Offset(dx, dz int) ChunkCoord {
	return ChunkCoord{X: c.X + dx, Z: c.Z + dz}
}

// Less orders coordinates by X, then Z.
func (c ChunkCoord) Less(other ChunkCoord) bool {
	if c.X != other.X {
		return c.X < other.X
	}
	return c.Z < other.Z
}

// ToChunk maps a world-space position (x, z) to the chunk containing it.
func ToChunk(pos mgl64.Vec2) ChunkCoord {
	return ChunkCoord{
		X: floorDiv(pos.X(), ChunkSize),
		Z: floorDiv(pos.Y(), ChunkSize),
	}
}

// ToWorldCenter returns the world-space centre of the chunk.
func ToWorldCenter(c ChunkCoord) mgl64.Vec2 {
	return mgl64.Vec2{
		(float64(c.X) + 0.5) * ChunkSize,
		(float64(c.Z) + 0.5) * ChunkSize,
	}
}

// ToWorldMin returns the world-space corner with the smallest coordinates.
func ToWorldMin(c ChunkCoord) mgl64.Vec2 {
	return mgl64.Vec2{float64(c.X) * ChunkSize, float64(c.Z) * ChunkSize}
}

// Chebyshev returns the chessboard distance between two chunk coordinates.
func Chebyshev(a, b ChunkCoord) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dz := a.Z - b.Z
	if dz < 0 {
		dz = -dz
	}
	if dx > dz {
		return dx
	}
	return dz
}

func floorDiv(value, size float64) int {
	if size <= 0 {
		return 0
	}
	return int(math.Floor(value / size))
}
