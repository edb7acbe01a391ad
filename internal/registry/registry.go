package registry

import (
	"sort"
	"sync"

	"golang.org/x/exp/maps"

	"chunkloader/internal/loader"
	"chunkloader/internal/world"
)

type claimKind uint8

const (
	claimPreload claimKind = iota + 1
	claimCritical
)

// claims is the set of loaders holding one chunk.
type claims struct {
	holders  map[loader.ID]claimKind
	critical int
	// loaded is set once a LoadChunk went out for the chunk and stays set
	// until the chunk unloads.
	loaded bool
}

func newClaims() *claims {
	return &claims{holders: make(map[loader.ID]claimKind, 1)}
}

func (c *claims) total() int {
	return len(c.holders)
}

func (c *claims) ids() []loader.ID {
	ids := maps.Keys(c.holders)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// frameStart is a chunk's occupancy before the current step touched it.
type frameStart struct {
	total    int
	critical int
}

// Registry is the authoritative record of which loaders hold which chunks.
// Step is its only write path; everything else is a read-only view.
type Registry struct {
	mu sync.RWMutex

	active   map[world.ChunkCoord]*claims
	previous map[loader.ID]loader.Record

	seq     uint64
	touched map[world.ChunkCoord]frameStart
	totals  Totals
}

func New() *Registry {
	return &Registry{
		active:   make(map[world.ChunkCoord]*claims),
		previous: make(map[loader.ID]loader.Record),
		touched:  make(map[world.ChunkCoord]frameStart),
	}
}

// Totals are cumulative counters since the registry was created.
type Totals struct {
	Frames    uint64
	Loads     uint64
	Preloads  uint64
	Unloads   uint64
	Mutations uint64
}

// Stats is a point-in-time summary for logging and debug tooling.
type Stats struct {
	Seq          uint64
	Loaders      int
	ActiveChunks int
	Critical     int
	PreloadOnly  int
	Totals       Totals
}

// ChunkRefs describes one active chunk for introspection.
type ChunkRefs struct {
	Pos      world.ChunkCoord `json:"pos"`
	RefCount int              `json:"refCount"`
	Critical int              `json:"critical"`
	Loaded   bool             `json:"loaded"`
	Holders  []loader.ID      `json:"holders"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{
		Seq:          r.seq,
		Loaders:      len(r.previous),
		ActiveChunks: len(r.active),
		Totals:       r.totals,
	}
	for _, entry := range r.active {
		if entry.critical > 0 {
			s.Critical++
		} else {
			s.PreloadOnly++
		}
	}
	return s
}

// Snapshot returns every active chunk with its reference counts, ordered by
// coordinate.
func (r *Registry) Snapshot() []ChunkRefs {
	r.mu.RLock()
	defer r.mu.RUnlock()
	coords := maps.Keys(r.active)
	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })
	out := make([]ChunkRefs, 0, len(coords))
	for _, c := range coords {
		entry := r.active[c]
		out = append(out, ChunkRefs{
			Pos:      c,
			RefCount: entry.total(),
			Critical: entry.critical,
			Loaded:   entry.loaded,
			Holders:  entry.ids(),
		})
	}
	return out
}

// RefCount returns how many loaders currently hold c.
func (r *Registry) RefCount(c world.ChunkCoord) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.active[c]; ok {
		return entry.total()
	}
	return 0
}

// Holders returns the loaders currently holding c.
func (r *Registry) Holders(c world.ChunkCoord) []loader.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.active[c]; ok {
		return entry.ids()
	}
	return nil
}

// Active reports whether any loader holds c.
func (r *Registry) Active(c world.ChunkCoord) bool {
	return r.RefCount(c) > 0
}

// Record returns the cached state of a loader as of the last step.
func (r *Registry) Record(id loader.ID) (loader.Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.previous[id]
	return rec, ok
}

func (r *Registry) touch(c world.ChunkCoord, entry *claims) {
	if _, ok := r.touched[c]; ok {
		return
	}
	var start frameStart
	if entry != nil {
		start = frameStart{total: entry.total(), critical: entry.critical}
	}
	r.touched[c] = start
}

// claim adds id to c, upgrading a preload claim to critical but never the
// reverse.
func (r *Registry) claim(c world.ChunkCoord, id loader.ID, kind claimKind) {
	entry := r.active[c]
	if entry == nil {
		r.touch(c, nil)
		entry = newClaims()
		r.active[c] = entry
	}
	current, held := entry.holders[id]
	if held && (current == kind || current == claimCritical) {
		return
	}
	r.touch(c, entry)
	r.totals.Mutations++
	entry.holders[id] = kind
	if kind == claimCritical {
		entry.critical++
	}
}

// set forces id's claim on c to kind.
func (r *Registry) set(c world.ChunkCoord, id loader.ID, kind claimKind) {
	if entry := r.active[c]; entry != nil {
		if current, held := entry.holders[id]; held && current == claimCritical && kind == claimPreload {
			r.touch(c, entry)
			r.totals.Mutations++
			entry.holders[id] = claimPreload
			entry.critical--
			return
		}
	}
	r.claim(c, id, kind)
}

// release drops id's claim on c. Emptied entries stay in the map until the
// step classifies them so a same-frame reclaim keeps its history.
func (r *Registry) release(c world.ChunkCoord, id loader.ID) {
	entry := r.active[c]
	if entry == nil {
		return
	}
	kind, held := entry.holders[id]
	if !held {
		return
	}
	r.touch(c, entry)
	r.totals.Mutations++
	delete(entry.holders, id)
	if kind == claimCritical {
		entry.critical--
	}
}

func kindFor(rec loader.Record, c world.ChunkCoord) claimKind {
	if rec.Critical().Contains(c) {
		return claimCritical
	}
	return claimPreload
}
