package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"chunkloader/internal/loader"
	"chunkloader/internal/registry"
	"chunkloader/internal/terrain"
	"chunkloader/internal/world"
)

type chunksResponse struct {
	Seq    uint64               `json:"seq"`
	Chunks []registry.ChunkRefs `json:"chunks"`
}

type statsResponse struct {
	Registry registry.Stats        `json:"registry"`
	Terrain  terrain.StreamerStats `json:"terrain"`
	Readers  []string              `json:"readers"`
	Clients  int                   `json:"streamClients"`
}

type observerView struct {
	ID            loader.ID        `json:"id"`
	Name          string           `json:"name"`
	Position      [2]float64       `json:"position"`
	Chunk         world.ChunkCoord `json:"chunk"`
	Radius        int              `json:"radius"`
	UnloadRadius  int              `json:"unloadRadius"`
	PreloadRadius int              `json:"preloadRadius"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// DebugHandler serves read-only introspection of the registry and a
// websocket feed of per-frame events.
func (s *Server) DebugHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/chunks", getOnly(s.handleChunks))
	mux.HandleFunc("/debug/stats", getOnly(s.handleStats))
	mux.HandleFunc("/debug/observers", getOnly(s.handleObservers))
	mux.HandleFunc("/debug/stream", s.handleStream)
	return mux
}

func getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		next(rw, r)
	}
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}

func (s *Server) handleChunks(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, chunksResponse{
		Seq:    s.registry.Stats().Seq,
		Chunks: s.registry.Snapshot(),
	})
}

func (s *Server) handleStats(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, statsResponse{
		Registry: s.registry.Stats(),
		Terrain:  s.terrain.Stats(),
		Readers:  s.channel.Readers(),
		Clients:  s.stream.clientCount(),
	})
}

func (s *Server) handleObservers(rw http.ResponseWriter, r *http.Request) {
	loaders := s.observers.Loaders()
	views := make([]observerView, 0, len(loaders))
	names := make(map[loader.ID]string, len(loaders))
	snaps := s.observers.Snapshots()
	for i := range snaps {
		names[snaps[i].ID] = snaps[i].Name
	}
	for _, l := range loaders {
		views = append(views, observerView{
			ID:            l.ID,
			Name:          names[l.ID],
			Position:      [2]float64{l.Position.X(), l.Position.Y()},
			Chunk:         l.Chunk(),
			Radius:        l.Radius,
			UnloadRadius:  l.UnloadRadius,
			PreloadRadius: l.PreloadRadius,
		})
	}
	writeJSON(rw, views)
}

func (s *Server) handleStream(rw http.ResponseWriter, r *http.Request) {
	out, ok := s.stream.subscribe()
	if !ok {
		http.Error(rw, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		s.stream.unsubscribe(out)
		return
	}
	defer conn.Close()
	defer s.stream.unsubscribe(out)

	// Reader: the stream is push-only; reads only detect the client leaving.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case payload, ok := <-out:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
