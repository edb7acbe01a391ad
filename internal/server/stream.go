package server

import (
	"encoding/json"
	"sync"

	"chunkloader/internal/events"
	"chunkloader/internal/registry"
	"chunkloader/internal/world"
)

// frameSummary is what /debug/stream pushes for every frame that carried
// events.
type frameSummary struct {
	Seq      uint64             `json:"seq"`
	Loads    []world.ChunkCoord `json:"loads"`
	Preloads []world.ChunkCoord `json:"preloads"`
	Unloads  []world.ChunkCoord `json:"unloads"`
	Active   int                `json:"active"`
}

func summarize(frame events.Frame, active int) frameSummary {
	out := frameSummary{
		Seq:      frame.Seq,
		Loads:    make([]world.ChunkCoord, 0, len(frame.Loads)),
		Preloads: make([]world.ChunkCoord, 0, len(frame.Preloads)),
		Unloads:  make([]world.ChunkCoord, 0, len(frame.Unloads)),
		Active:   active,
	}
	frame.Each(func(kind events.Kind, pos world.ChunkCoord) {
		switch kind {
		case events.KindLoad:
			out.Loads = append(out.Loads, pos)
		case events.KindPreload:
			out.Preloads = append(out.Preloads, pos)
		case events.KindUnload:
			out.Unloads = append(out.Unloads, pos)
		}
	})
	return out
}

// streamHub is a channel consumer that fans frame summaries out to websocket
// clients. Slow clients drop frames rather than stall the frame loop.
type streamHub struct {
	reader   *events.Reader
	registry *registry.Registry

	mu      sync.Mutex
	clients map[chan []byte]struct{}
	closed  bool
	dropped uint64
}

func newStreamHub(ch *events.Channel, reg *registry.Registry) *streamHub {
	return &streamHub{
		reader:   ch.Subscribe("debug-stream"),
		registry: reg,
		clients:  make(map[chan []byte]struct{}),
	}
}

func (h *streamHub) subscribe() (chan []byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	out := make(chan []byte, 64)
	h.clients[out] = struct{}{}
	return out, true
}

func (h *streamHub) unsubscribe(out chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[out]; ok {
		delete(h.clients, out)
		close(out)
	}
}

// poll runs on the frame loop after the frame is published.
func (h *streamHub) poll() {
	frame, ok := h.reader.Read()
	if !ok || frame.Empty() {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return
	}
	payload, err := json.Marshal(summarize(frame, h.registry.Stats().ActiveChunks))
	if err != nil {
		return
	}
	for out := range h.clients {
		select {
		case out <- payload:
		default:
			h.dropped++
		}
	}
}

func (h *streamHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *streamHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for out := range h.clients {
		delete(h.clients, out)
		close(out)
	}
}
