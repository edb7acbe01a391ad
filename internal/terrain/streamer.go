package terrain

import (
	"context"
	"log"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"chunkloader/internal/config"
	"chunkloader/internal/events"
	"chunkloader/internal/world"
)

// State is where a chunk sits in the streamer's lifecycle.
type State int

const (
	StateNone State = iota
	StateQueued
	StateLoading
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return "none"
	}
}

// Priority orders queued work. Critical work always dispatches first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityBackground
)

type task struct {
	coord    world.ChunkCoord
	token    uint64
	priority Priority
	cancel   context.CancelFunc // nil until dispatched
}

type job struct {
	ctx   context.Context
	coord world.ChunkCoord
	token uint64
}

type result struct {
	coord  world.ChunkCoord
	token  uint64
	chunk  *Chunk
	cached bool
	err    error
}

// StreamerStats are cumulative counters.
type StreamerStats struct {
	Requested  uint64
	Generated  uint64
	Cached     uint64
	Cancelled  uint64
	Discarded  uint64
	Failed     uint64
	TornDown   uint64
	Ignored    uint64
	Loaded     int
	InFlight   int
	Queued     int
	MissedSeqs uint64
}

// Streamer is the terrain system's consumer of chunk events. It keeps its own
// Loading/Loaded bookkeeping per coordinate and runs generation on a worker
// pool. Poll must be called once per frame from the frame loop; it never
// blocks on generation.
type Streamer struct {
	gen     Generator
	store   Store
	reader  *events.Reader
	limiter *rate.Limiter
	logger  *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed sync.Once

	jobs    chan job
	results chan result
	workers int
	running int

	nextToken  uint64
	inFlight   map[world.ChunkCoord]*task
	critical   requestQueue
	background requestQueue

	mu     sync.RWMutex
	loaded map[world.ChunkCoord]*Chunk
	stats  StreamerStats
}

// NewStreamer subscribes to ch and starts the worker pool.
func NewStreamer(cfg config.TerrainConfig, gen Generator, store Store, ch *events.Channel, logger *log.Logger) *Streamer {
	if logger == nil {
		logger = log.Default()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	limit := rate.Inf
	if cfg.PreloadPerSecond > 0 {
		limit = rate.Limit(cfg.PreloadPerSecond)
	}
	burst := cfg.PreloadBurst
	if burst <= 0 {
		burst = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Streamer{
		gen:      gen,
		store:    store,
		reader:   ch.Subscribe("terrain"),
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(chan job, workers),
		results:  make(chan result, workers),
		workers:  workers,
		inFlight: make(map[world.ChunkCoord]*task),
		loaded:   make(map[world.ChunkCoord]*Chunk),
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.work()
	}
	return s
}

func (s *Streamer) work() {
	defer s.wg.Done()
	for j := range s.jobs {
		res := s.run(j)
		select {
		case s.results <- res:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Streamer) run(j job) result {
	res := result{coord: j.coord, token: j.token}
	if err := j.ctx.Err(); err != nil {
		res.err = err
		return res
	}
	if chunk, ok, err := s.store.Load(j.ctx, j.coord); err != nil {
		s.logger.Printf("terrain: cache lookup for %v failed, regenerating: %v", j.coord, err)
	} else if ok {
		res.chunk = chunk
		res.cached = true
		return res
	}
	res.chunk, res.err = s.gen.Generate(j.ctx, j.coord)
	return res
}

// Poll advances the streamer by one frame. Completed work is collected before
// the frame's events are applied so an unload arriving in the same frame
// discards the result instead of materialising it.
func (s *Streamer) Poll(ctx context.Context) {
	finished := s.drainResults()

	if frame, ok := s.reader.Read(); ok {
		for _, ev := range frame.Loads {
			s.request(ev.Pos, PriorityCritical)
		}
		for _, ev := range frame.Preloads {
			s.request(ev.Pos, PriorityBackground)
		}
		for _, ev := range frame.Unloads {
			s.drop(ctx, ev.Pos)
		}
	}

	for _, res := range finished {
		s.finish(res)
	}
	s.dispatch()

	var waiting int
	for _, t := range s.inFlight {
		if t.cancel == nil {
			waiting++
		}
	}
	s.mu.Lock()
	s.stats.InFlight = len(s.inFlight) - waiting
	s.stats.Queued = waiting
	s.stats.MissedSeqs = s.reader.Missed()
	s.mu.Unlock()
}

func (s *Streamer) drainResults() []result {
	var finished []result
	for {
		select {
		case res := <-s.results:
			s.running--
			finished = append(finished, res)
		default:
			return finished
		}
	}
}

func (s *Streamer) request(coord world.ChunkCoord, priority Priority) {
	s.mu.Lock()
	_, loaded := s.loaded[coord]
	s.mu.Unlock()
	if loaded {
		s.countIgnored()
		return
	}
	if t, ok := s.inFlight[coord]; ok {
		if priority < t.priority && t.cancel == nil {
			t.priority = priority
			s.critical.Enqueue(queued{coord: coord, token: t.token, priority: priority})
		}
		return
	}

	s.nextToken++
	t := &task{coord: coord, token: s.nextToken, priority: priority}
	s.inFlight[coord] = t
	entry := queued{coord: coord, token: t.token, priority: priority}
	if priority == PriorityCritical {
		s.critical.Enqueue(entry)
	} else {
		s.background.Enqueue(entry)
	}
	s.mu.Lock()
	s.stats.Requested++
	s.mu.Unlock()
}

// drop handles an unload: in-flight work is cancelled, materialised content
// is torn down, anything else is ignored.
func (s *Streamer) drop(ctx context.Context, coord world.ChunkCoord) {
	if t, ok := s.inFlight[coord]; ok {
		if t.cancel != nil {
			t.cancel()
		}
		delete(s.inFlight, coord)
		s.mu.Lock()
		s.stats.Cancelled++
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	chunk, ok := s.loaded[coord]
	if ok {
		delete(s.loaded, coord)
		s.stats.TornDown++
	} else {
		s.stats.Ignored++
	}
	s.mu.Unlock()
	if ok {
		if err := s.store.Save(ctx, chunk); err != nil {
			s.logger.Printf("terrain: cache chunk %v: %v", coord, err)
		}
	}
}

func (s *Streamer) finish(res result) {
	t, ok := s.inFlight[res.coord]
	if !ok || t.token != res.token {
		s.mu.Lock()
		s.stats.Discarded++
		s.mu.Unlock()
		return
	}
	delete(s.inFlight, res.coord)
	t.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if res.err != nil {
		s.stats.Failed++
		s.logger.Printf("terrain: generate chunk %v: %v", res.coord, res.err)
		return
	}
	if res.cached {
		s.stats.Cached++
	} else {
		s.stats.Generated++
	}
	s.loaded[res.coord] = res.chunk
}

func (s *Streamer) dispatch() {
	for s.running < s.workers {
		entry, ok := s.next()
		if !ok {
			return
		}
		t := s.inFlight[entry.coord]
		ctx, cancel := context.WithCancel(s.ctx)
		t.cancel = cancel
		s.running++
		s.jobs <- job{ctx: ctx, coord: entry.coord, token: entry.token}
	}
}

// next pops the next live queue entry, preferring critical work. Background
// work is additionally gated by the rate limiter.
func (s *Streamer) next() (queued, bool) {
	for {
		entry, ok := s.critical.Pop()
		if !ok {
			break
		}
		if s.live(entry) {
			return entry, true
		}
	}
	for {
		entry, ok := s.background.Peek()
		if !ok {
			return queued{}, false
		}
		if !s.live(entry) {
			s.background.Pop()
			continue
		}
		if !s.limiter.Allow() {
			return queued{}, false
		}
		s.background.Pop()
		return entry, true
	}
}

func (s *Streamer) live(entry queued) bool {
	t, ok := s.inFlight[entry.coord]
	return ok && t.token == entry.token && t.priority == entry.priority && t.cancel == nil
}

func (s *Streamer) countIgnored() {
	s.mu.Lock()
	s.stats.Ignored++
	s.mu.Unlock()
}

// State reports the streamer's view of coord. Only the frame loop may call
// it while Poll can run.
func (s *Streamer) State(coord world.ChunkCoord) State {
	if t, ok := s.inFlight[coord]; ok {
		if t.cancel == nil {
			return StateQueued
		}
		return StateLoading
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.loaded[coord]; ok {
		return StateLoaded
	}
	return StateNone
}

// Chunk returns materialised content for coord.
func (s *Streamer) Chunk(coord world.ChunkCoord) (*Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunk, ok := s.loaded[coord]
	return chunk, ok
}

// Loaded returns the coordinates of every materialised chunk.
func (s *Streamer) Loaded() []world.ChunkCoord {
	s.mu.RLock()
	coords := make([]world.ChunkCoord, 0, len(s.loaded))
	for c := range s.loaded {
		coords = append(coords, c)
	}
	s.mu.RUnlock()
	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })
	return coords
}

// Stats is safe to call from any goroutine.
func (s *Streamer) Stats() StreamerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.stats
	st.Loaded = len(s.loaded)
	return st
}

// Close stops the workers and writes every materialised chunk to the store.
func (s *Streamer) Close() error {
	s.closed.Do(func() {
		s.cancel()
		close(s.jobs)
	})
	s.wg.Wait()
	s.critical.Drain(0)
	s.background.Drain(0)

	s.mu.Lock()
	chunks := make([]*Chunk, 0, len(s.loaded))
	for _, chunk := range s.loaded {
		chunks = append(chunks, chunk)
	}
	s.mu.Unlock()

	var firstErr error
	for _, chunk := range chunks {
		if err := s.store.Save(context.Background(), chunk); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
