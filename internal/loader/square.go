package loader

import "chunkloader/internal/world"

// Square is the set of chunks within Chebyshev distance Radius of Center.
type Square struct {
	Center world.ChunkCoord
	Radius int
}

func (s Square) Contains(c world.ChunkCoord) bool {
	return world.Chebyshev(s.Center, c) <= s.Radius
}

// Len returns the number of chunks in the square.
func (s Square) Len() int {
	if s.Radius < 0 {
		return 0
	}
	side := 2*s.Radius + 1
	return side * side
}

// Each calls fn for every chunk in the square, row by row.
func (s Square) Each(fn func(world.ChunkCoord)) {
	for dx := -s.Radius; dx <= s.Radius; dx++ {
		for dz := -s.Radius; dz <= s.Radius; dz++ {
			fn(s.Center.Offset(dx, dz))
		}
	}
}
