package terrain

import "chunkloader/internal/world"

// Chunk is the terrain system's materialised content for one chunk: a square
// grid of surface heights sampled across the chunk.
type Chunk struct {
	Coord   world.ChunkCoord
	Samples int
	Heights []int16
}

func NewChunk(coord world.ChunkCoord, samples int) *Chunk {
	if samples <= 0 {
		samples = 1
	}
	return &Chunk{
		Coord:   coord,
		Samples: samples,
		Heights: make([]int16, samples*samples),
	}
}

// Height returns the sample at local grid position (x, z).
func (c *Chunk) Height(x, z int) (int16, bool) {
	if x < 0 || z < 0 || x >= c.Samples || z >= c.Samples {
		return 0, false
	}
	return c.Heights[z*c.Samples+x], true
}

func (c *Chunk) setHeight(x, z int, h int16) {
	c.Heights[z*c.Samples+x] = h
}

// Range returns the lowest and highest sample.
func (c *Chunk) Range() (lo, hi int16) {
	if len(c.Heights) == 0 {
		return 0, 0
	}
	lo, hi = c.Heights[0], c.Heights[0]
	for _, h := range c.Heights[1:] {
		if h < lo {
			lo = h
		}
		if h > hi {
			hi = h
		}
	}
	return lo, hi
}
