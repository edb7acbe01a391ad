package terrain

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"chunkloader/internal/config"
	"chunkloader/internal/events"
	"chunkloader/internal/world"
)

type blockingGenerator struct {
	mu      sync.Mutex
	waiters map[world.ChunkCoord]chan struct{}
	notify  chan world.ChunkCoord
}

func newBlockingGenerator() *blockingGenerator {
	return &blockingGenerator{
		waiters: make(map[world.ChunkCoord]chan struct{}),
		notify:  make(chan world.ChunkCoord, 8),
	}
}

func (g *blockingGenerator) Generate(ctx context.Context, coord world.ChunkCoord) (*Chunk, error) {
	ch := make(chan struct{})
	g.mu.Lock()
	g.waiters[coord] = ch
	g.mu.Unlock()

	select {
	case g.notify <- coord:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return NewChunk(coord, 2), nil
}

func (g *blockingGenerator) release(coord world.ChunkCoord) {
	g.mu.Lock()
	ch, ok := g.waiters[coord]
	if ok {
		delete(g.waiters, coord)
	}
	g.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (g *blockingGenerator) waitForCall(t *testing.T) world.ChunkCoord {
	t.Helper()
	select {
	case coord := <-g.notify:
		return coord
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for generation call")
	}
	return world.ChunkCoord{}
}

func (g *blockingGenerator) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case coord := <-g.notify:
		t.Fatalf("unexpected generation call for %v", coord)
	case <-time.After(50 * time.Millisecond):
	}
}

type failingGenerator struct{}

func (failingGenerator) Generate(ctx context.Context, coord world.ChunkCoord) (*Chunk, error) {
	return nil, errors.New("boom")
}

type harness struct {
	ch       *events.Channel
	streamer *Streamer
	store    Store
	seq      uint64
}

func newHarness(t *testing.T, cfg config.TerrainConfig, gen Generator) *harness {
	t.Helper()
	h := &harness{ch: events.NewChannel(), store: NewMemoryStore()}
	h.streamer = NewStreamer(cfg, gen, h.store, h.ch, log.New(io.Discard, "", 0))
	t.Cleanup(func() { h.streamer.Close() })
	return h
}

func (h *harness) frame(loads, preloads, unloads []world.ChunkCoord) {
	h.seq++
	f := events.Frame{Seq: h.seq}
	for _, c := range loads {
		f.Loads = append(f.Loads, events.LoadChunk{Pos: c, WorldPos: world.ToWorldCenter(c)})
	}
	for _, c := range preloads {
		f.Preloads = append(f.Preloads, events.PreloadChunk{Pos: c, WorldPos: world.ToWorldCenter(c)})
	}
	for _, c := range unloads {
		f.Unloads = append(f.Unloads, events.UnloadChunk{Pos: c, WorldPos: world.ToWorldCenter(c)})
	}
	h.ch.Publish(f)
	h.streamer.Poll(context.Background())
}

func (h *harness) pollUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		h.streamer.Poll(context.Background())
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not reached before deadline, stats %+v", h.streamer.Stats())
}

func coords(cs ...world.ChunkCoord) []world.ChunkCoord {
	return cs
}

func TestStreamerLoadMaterialisesChunk(t *testing.T) {
	gen := newBlockingGenerator()
	h := newHarness(t, config.TerrainConfig{Workers: 1}, gen)
	c := world.ChunkCoord{X: 1, Z: 2}

	h.frame(coords(c), nil, nil)
	if state := h.streamer.State(c); state != StateLoading {
		t.Fatalf("expected loading, got %v", state)
	}
	if got := gen.waitForCall(t); got != c {
		t.Fatalf("expected generation for %v, got %v", c, got)
	}

	gen.release(c)
	h.pollUntil(t, func() bool { return h.streamer.State(c) == StateLoaded })

	chunk, ok := h.streamer.Chunk(c)
	if !ok || chunk.Coord != c {
		t.Fatalf("expected chunk %v to be available", c)
	}
	if stats := h.streamer.Stats(); stats.Generated != 1 || stats.Loaded != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestStreamerUnloadCancelsInFlightGeneration(t *testing.T) {
	gen := newBlockingGenerator()
	h := newHarness(t, config.TerrainConfig{Workers: 1}, gen)
	c := world.ChunkCoord{X: -3, Z: 4}

	h.frame(coords(c), nil, nil)
	gen.waitForCall(t)

	h.frame(nil, nil, coords(c))
	if state := h.streamer.State(c); state != StateNone {
		t.Fatalf("expected chunk to be dropped, got %v", state)
	}

	h.pollUntil(t, func() bool { return h.streamer.Stats().Discarded == 1 })
	stats := h.streamer.Stats()
	if stats.Cancelled != 1 || stats.Loaded != 0 || stats.Failed != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if _, ok := h.streamer.Chunk(c); ok {
		t.Fatalf("cancelled chunk must not materialise")
	}
}

func TestStreamerUnloadWinsOverJustFinishedResult(t *testing.T) {
	gen := newBlockingGenerator()
	h := newHarness(t, config.TerrainConfig{Workers: 1}, gen)
	c := world.ChunkCoord{X: 7, Z: 7}

	h.frame(coords(c), nil, nil)
	gen.waitForCall(t)
	gen.release(c)

	deadline := time.Now().Add(time.Second)
	for len(h.streamer.results) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for generation result")
		}
		time.Sleep(time.Millisecond)
	}

	h.frame(nil, nil, coords(c))
	if state := h.streamer.State(c); state != StateNone {
		t.Fatalf("expected finished result to be discarded, got %v", state)
	}
	stats := h.streamer.Stats()
	if stats.Discarded != 1 || stats.Generated != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestStreamerUnloadOfUnknownChunkIsIgnored(t *testing.T) {
	gen := newBlockingGenerator()
	h := newHarness(t, config.TerrainConfig{Workers: 1}, gen)

	h.frame(nil, nil, coords(world.ChunkCoord{X: 100}))
	gen.expectNoCall(t)
	if stats := h.streamer.Stats(); stats.Ignored != 1 || stats.Cancelled != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestStreamerThrottlesPreloadsButNotLoads(t *testing.T) {
	gen := newBlockingGenerator()
	h := newHarness(t, config.TerrainConfig{Workers: 4, PreloadPerSecond: 0.001, PreloadBurst: 1}, gen)
	a := world.ChunkCoord{X: 0}
	b := world.ChunkCoord{X: 1}
	c := world.ChunkCoord{X: 2}

	h.frame(nil, coords(a, b, c), nil)
	if got := gen.waitForCall(t); got != a {
		t.Fatalf("expected first preload %v to dispatch, got %v", a, got)
	}
	gen.expectNoCall(t)
	if state := h.streamer.State(b); state != StateQueued {
		t.Fatalf("expected %v to stay queued, got %v", b, state)
	}

	h.frame(coords(b), nil, nil)
	if got := gen.waitForCall(t); got != b {
		t.Fatalf("expected promoted load %v to dispatch, got %v", b, got)
	}
	if state := h.streamer.State(c); state != StateQueued {
		t.Fatalf("expected %v to stay queued, got %v", c, state)
	}
	stats := h.streamer.Stats()
	if stats.InFlight != 2 || stats.Queued != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	h.frame(nil, nil, coords(c))
	if state := h.streamer.State(c); state != StateNone {
		t.Fatalf("expected queued preload to be cancelled, got %v", state)
	}
}

func TestStreamerReloadServedFromStore(t *testing.T) {
	gen := newBlockingGenerator()
	h := newHarness(t, config.TerrainConfig{Workers: 1}, gen)
	c := world.ChunkCoord{X: 5, Z: -5}

	h.frame(coords(c), nil, nil)
	gen.waitForCall(t)
	gen.release(c)
	h.pollUntil(t, func() bool { return h.streamer.State(c) == StateLoaded })

	h.frame(nil, nil, coords(c))
	if state := h.streamer.State(c); state != StateNone {
		t.Fatalf("expected chunk to be torn down, got %v", state)
	}
	if n, _ := h.store.Len(context.Background()); n != 1 {
		t.Fatalf("expected torn down chunk in store, got %d", n)
	}

	h.frame(coords(c), nil, nil)
	h.pollUntil(t, func() bool { return h.streamer.State(c) == StateLoaded })
	gen.expectNoCall(t)
	if stats := h.streamer.Stats(); stats.Cached != 1 || stats.TornDown != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestStreamerCountsGenerationFailures(t *testing.T) {
	h := newHarness(t, config.TerrainConfig{Workers: 2}, failingGenerator{})
	c := world.ChunkCoord{X: 9, Z: 9}

	h.frame(coords(c), nil, nil)
	h.pollUntil(t, func() bool { return h.streamer.Stats().Failed == 1 })
	if state := h.streamer.State(c); state != StateNone {
		t.Fatalf("failed chunk should not be tracked, got %v", state)
	}
}

func TestStreamerCloseFlushesLoadedChunks(t *testing.T) {
	gen := newBlockingGenerator()
	h := newHarness(t, config.TerrainConfig{Workers: 1}, gen)
	c := world.ChunkCoord{X: -1, Z: -1}

	h.frame(coords(c), nil, nil)
	gen.waitForCall(t)
	gen.release(c)
	h.pollUntil(t, func() bool { return h.streamer.State(c) == StateLoaded })

	if err := h.streamer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok, _ := h.store.Load(context.Background(), c); !ok {
		t.Fatalf("expected loaded chunk to be flushed on close")
	}
}
