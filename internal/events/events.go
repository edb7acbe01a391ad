package events

import (
	"github.com/go-gl/mathgl/mgl64"

	"chunkloader/internal/loader"
	"chunkloader/internal/world"
)

// Kind enumerates the three notifications a frame can carry.
type Kind string

const (
	KindLoad    Kind = "load"
	KindPreload Kind = "preload"
	KindUnload  Kind = "unload"
)

// LoadChunk announces that a chunk became critical for at least one loader.
type LoadChunk struct {
	Pos       world.ChunkCoord
	WorldPos  mgl64.Vec2
	LoadedFor []loader.ID
}

// PreloadChunk announces that a chunk became wanted at background priority.
type PreloadChunk struct {
	Pos       world.ChunkCoord
	WorldPos  mgl64.Vec2
	LoadedFor []loader.ID
}

// UnloadChunk announces that the last claim on a chunk was released.
type UnloadChunk struct {
	Pos      world.ChunkCoord
	WorldPos mgl64.Vec2
}

// Frame is the batch emitted by one tracking step. Consumers must handle
// Loads, then Preloads, then Unloads.
type Frame struct {
	Seq      uint64
	Loads    []LoadChunk
	Preloads []PreloadChunk
	Unloads  []UnloadChunk
}

// Len returns the number of events in the frame.
func (f Frame) Len() int {
	return len(f.Loads) + len(f.Preloads) + len(f.Unloads)
}

// Empty reports whether the frame carries no events.
func (f Frame) Empty() bool {
	return f.Len() == 0
}

// Each walks the frame in publication order.
func (f Frame) Each(fn func(kind Kind, pos world.ChunkCoord)) {
	for _, ev := range f.Loads {
		fn(KindLoad, ev.Pos)
	}
	for _, ev := range f.Preloads {
		fn(KindPreload, ev.Pos)
	}
	for _, ev := range f.Unloads {
		fn(KindUnload, ev.Pos)
	}
}

// Clone deep-copies the frame so the caller may keep or modify it.
func (f Frame) Clone() Frame {
	out := Frame{Seq: f.Seq}
	if len(f.Loads) > 0 {
		out.Loads = make([]LoadChunk, len(f.Loads))
		for i, ev := range f.Loads {
			ev.LoadedFor = append([]loader.ID(nil), ev.LoadedFor...)
			out.Loads[i] = ev
		}
	}
	if len(f.Preloads) > 0 {
		out.Preloads = make([]PreloadChunk, len(f.Preloads))
		for i, ev := range f.Preloads {
			ev.LoadedFor = append([]loader.ID(nil), ev.LoadedFor...)
			out.Preloads[i] = ev
		}
	}
	if len(f.Unloads) > 0 {
		out.Unloads = append([]UnloadChunk(nil), f.Unloads...)
	}
	return out
}
