package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"
)

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestDebugChunksReportsRefCounts(t *testing.T) {
	srv := newTestServer(t, testConfig())
	addObserver(t, srv, "a", mgl64.Vec2{16, 16}, 1)
	addObserver(t, srv, "b", mgl64.Vec2{48, 16}, 1)
	srv.Step(0)

	ts := httptest.NewServer(srv.DebugHandler())
	defer ts.Close()

	var chunks chunksResponse
	getJSON(t, ts.URL+"/debug/chunks", &chunks)
	if chunks.Seq != 1 || len(chunks.Chunks) != 12 {
		t.Fatalf("expected 12 chunks at seq 1, got %d at seq %d", len(chunks.Chunks), chunks.Seq)
	}
	shared := 0
	for _, c := range chunks.Chunks {
		if c.RefCount == 2 {
			shared++
			if len(c.Holders) != 2 || c.Holders[0] != "a" || c.Holders[1] != "b" {
				t.Fatalf("unexpected holders for %v: %v", c.Pos, c.Holders)
			}
		}
	}
	if shared != 6 {
		t.Fatalf("expected 6 shared chunks, got %d", shared)
	}

	var stats statsResponse
	getJSON(t, ts.URL+"/debug/stats", &stats)
	if stats.Registry.Loaders != 2 || stats.Registry.ActiveChunks != 12 || stats.Registry.Critical != 12 {
		t.Fatalf("unexpected registry stats %+v", stats.Registry)
	}
	if len(stats.Readers) != 2 {
		t.Fatalf("expected terrain and stream readers, got %v", stats.Readers)
	}

	var observers []observerView
	getJSON(t, ts.URL+"/debug/observers", &observers)
	if len(observers) != 2 || observers[1].Chunk.X != 1 {
		t.Fatalf("unexpected observers %+v", observers)
	}

	resp, err := http.Post(ts.URL+"/debug/chunks", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestDebugStreamPushesFrameSummaries(t *testing.T) {
	srv := newTestServer(t, testConfig())
	addObserver(t, srv, "cam", mgl64.Vec2{16, 16}, 1)

	ts := httptest.NewServer(srv.DebugHandler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/debug/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if n := srv.stream.clientCount(); n != 1 {
		t.Fatalf("expected 1 stream client, got %d", n)
	}

	srv.Step(0)
	srv.Step(0) // idle frames are not pushed
	if err := srv.Observers().Teleport("cam", mgl64.Vec2{16 + 10*32, 16}); err != nil {
		t.Fatalf("Teleport: %v", err)
	}
	srv.Step(0)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first, second frameSummary
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first frame: %v", err)
	}
	if first.Seq != 1 || len(first.Loads) != 9 || first.Active != 9 {
		t.Fatalf("unexpected first summary %+v", first)
	}
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read second frame: %v", err)
	}
	if second.Seq != 3 || len(second.Loads) != 9 || len(second.Unloads) != 9 {
		t.Fatalf("unexpected second summary %+v", second)
	}
}

func TestDebugStreamClosesOnShutdown(t *testing.T) {
	srv := newTestServer(t, testConfig())
	ts := httptest.NewServer(srv.DebugHandler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/debug/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	srv.stream.close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}

	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatalf("expected dial to fail after shutdown")
	}
}
