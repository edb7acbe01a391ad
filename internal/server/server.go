package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"chunkloader/internal/config"
	"chunkloader/internal/entities"
	"chunkloader/internal/events"
	"chunkloader/internal/registry"
	"chunkloader/internal/terrain"
)

// Server owns the frame loop: observers move, the registry diffs their
// footprints, the frame is published and every consumer polls it.
type Server struct {
	cfg    *config.Config
	logger *log.Logger

	registry  *registry.Registry
	channel   *events.Channel
	observers *entities.Manager
	terrain   *terrain.Streamer
	store     terrain.Store
	stream    *streamHub

	stepMu    sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func New(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	logger := log.New(log.Writer(), "chunkloader ", log.LstdFlags|log.Lmicroseconds)

	store, err := openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	channel := events.NewChannel()
	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		registry:  registry.New(),
		channel:   channel,
		observers: entities.NewManager(cfg.Tracking, cfg.Simulation.ArenaChunks, cfg.Simulation.Seed),
		terrain:   terrain.NewStreamer(cfg.Terrain, terrain.NewNoiseGenerator(cfg.Terrain), store, channel, logger),
		store:     store,
	}
	srv.stream = newStreamHub(channel, srv.registry)
	return srv, nil
}

func openStore(cfg config.StorageConfig) (terrain.Store, error) {
	switch cfg.Driver {
	case "", config.StorageMemory:
		return terrain.NewMemoryStore(), nil
	case config.StorageSQLite:
		store, err := terrain.OpenSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open terrain cache: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

func (s *Server) Registry() *registry.Registry {
	return s.registry
}

func (s *Server) Channel() *events.Channel {
	return s.channel
}

func (s *Server) Observers() *entities.Manager {
	return s.observers
}

func (s *Server) Terrain() *terrain.Streamer {
	return s.terrain
}

// SpawnSimulated adds the configured number of wandering observers.
func (s *Server) SpawnSimulated() {
	for i := 0; i < s.cfg.Simulation.Observers; i++ {
		obs := s.observers.SpawnWanderer(fmt.Sprintf("wanderer-%d", i), s.cfg.Simulation.Speed)
		s.logger.Printf("spawned observer %s (%s) at %v", obs.ID, obs.Name, obs.Snapshot().Position)
	}
}

// Run drives frames until ctx is cancelled, then shuts the terrain system
// down and flushes its cache.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var httpSrv *http.Server
	if addr := s.cfg.Debug.Listen; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("debug listen: %w", err)
		}
		httpSrv = &http.Server{Handler: s.DebugHandler(), ReadHeaderTimeout: 5 * time.Second}
		s.logger.Printf("debug endpoint listening on %s", ln.Addr())
		go func() {
			if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Printf("debug server stopped: %v", err)
				cancel()
			}
		}()
	}

	engine := newFrameEngine(s, time.Duration(s.cfg.Server.TickRate))
	engine.Start(ctx)

	var statsC <-chan time.Time
	if interval := time.Duration(s.cfg.Server.StatsInterval); interval > 0 {
		statsTicker := time.NewTicker(interval)
		defer statsTicker.Stop()
		statsC = statsTicker.C
	}

	s.logger.Printf("server %s running at %v per frame", s.cfg.Server.ID, time.Duration(s.cfg.Server.TickRate))
	for {
		select {
		case <-ctx.Done():
			engine.Wait()
			if httpSrv != nil {
				shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
				_ = httpSrv.Shutdown(shutdownCtx)
				done()
			}
			s.stream.close()
			if err := s.Close(); err != nil {
				s.logger.Printf("shutdown: %v", err)
			}
			return ctx.Err()
		case <-statsC:
			s.logStats()
		}
	}
}

func (s *Server) tickFrame(delta time.Duration) {
	s.Step(delta)
}

// Step runs one frame synchronously and returns the events it published.
func (s *Server) Step(delta time.Duration) events.Frame {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	s.observers.Advance(delta)
	frame := s.registry.Step(s.observers.Loaders())
	s.channel.Publish(frame)
	s.terrain.Poll(context.Background())
	s.stream.poll()
	return frame
}

func (s *Server) logStats() {
	reg := s.registry.Stats()
	ter := s.terrain.Stats()
	s.logger.Printf("frame %d: loaders=%d active=%d critical=%d preload=%d loads=%d preloads=%d unloads=%d",
		reg.Seq, reg.Loaders, reg.ActiveChunks, reg.Critical, reg.PreloadOnly,
		reg.Totals.Loads, reg.Totals.Preloads, reg.Totals.Unloads)
	s.logger.Printf("terrain: loaded=%d inflight=%d queued=%d generated=%d cached=%d cancelled=%d failed=%d missed=%d",
		ter.Loaded, ter.InFlight, ter.Queued, ter.Generated, ter.Cached, ter.Cancelled, ter.Failed, ter.MissedSeqs)
}

// Close stops the terrain workers and releases the chunk cache.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.terrain.Close()
		if err := s.store.Close(); s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}
