package terrain

import (
	"context"
	"math"

	"chunkloader/internal/config"
	"chunkloader/internal/world"
)

// Generator produces terrain content for a chunk. Implementations must stop
// early and return ctx.Err() once ctx is cancelled.
type Generator interface {
	Generate(ctx context.Context, coord world.ChunkCoord) (*Chunk, error)
}

// NoiseGenerator creates repeatable height fields using hashed value noise.
type NoiseGenerator struct {
	cfg  config.TerrainConfig
	seed int64
}

func NewNoiseGenerator(cfg config.TerrainConfig) *NoiseGenerator {
	if cfg.Samples <= 0 {
		cfg.Samples = 16
	}
	if cfg.Octaves <= 0 {
		cfg.Octaves = 1
	}
	return &NoiseGenerator{cfg: cfg, seed: cfg.Seed}
}

func (g *NoiseGenerator) Generate(ctx context.Context, coord world.ChunkCoord) (*Chunk, error) {
	chunk := NewChunk(coord, g.cfg.Samples)
	origin := world.ToWorldMin(coord)
	step := world.ChunkSize / float64(g.cfg.Samples)

	for z := 0; z < chunk.Samples; z++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := 0; x < chunk.Samples; x++ {
			wx := origin.X() + float64(x)*step
			wz := origin.Y() + float64(z)*step
			h := g.fractalNoise(wx, wz) * g.cfg.Amplitude
			chunk.setHeight(x, z, int16(clampInt(int(math.Round(h)), math.MinInt16, math.MaxInt16)))
		}
	}
	return chunk, nil
}

func (g *NoiseGenerator) fractalNoise(x, y float64) float64 {
	frequency := g.cfg.Frequency
	amplitude := 1.0
	noiseSum := 0.0
	maxAmplitude := 0.0

	for i := 0; i < g.cfg.Octaves; i++ {
		noise := g.valueNoise(x*frequency, y*frequency)
		noiseSum += noise * amplitude
		maxAmplitude += amplitude
		amplitude *= g.cfg.Persistence
		frequency *= g.cfg.Lacunarity
	}

	if maxAmplitude == 0 {
		return 0
	}
	return noiseSum / maxAmplitude
}

func (g *NoiseGenerator) valueNoise(x, y float64) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1 := x0 + 1
	y1 := y0 + 1

	sx := smooth(x - float64(x0))
	sy := smooth(y - float64(y0))

	ix0 := lerp(random2D(x0, y0, g.seed), random2D(x1, y0, g.seed), sx)
	ix1 := lerp(random2D(x0, y1, g.seed), random2D(x1, y1, g.seed), sx)
	return lerp(ix0, ix1, sy)
}

func smooth(t float64) float64 {
	return t * t * (3 - 2*t)
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

func random2D(x, y int, seed int64) float64 {
	return float64(hash3(x, y, int(seed))&0xFFFF)/0x8000 - 1.0
}

func hash3(x, y, z int) uint32 {
	h := uint32(x*374761393 + y*668265263 + z*2147483647)
	h = (h ^ (h >> 13)) * 1274126177
	return h ^ (h >> 16)
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
