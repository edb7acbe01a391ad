package registry

import (
	"sort"

	"chunkloader/internal/events"
	"chunkloader/internal/loader"
	"chunkloader/internal/world"
)

// Step diffs the current loader set against the previous frame, updates the
// claims and returns the frame's events. A loader missing from loaders is
// treated as despawned. When an ID appears more than once the last entry
// wins.
//
// Events are derived from each chunk's net change over the whole step, so a
// chunk released by one loader and claimed by another in the same frame
// produces nothing.
func (r *Registry) Step(loaders []loader.Loader) events.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.totals.Frames++
	for c := range r.touched {
		delete(r.touched, c)
	}

	current := make(map[loader.ID]loader.Record, len(loaders))
	for _, l := range loaders {
		current[l.ID] = l.Record()
	}

	for id, prev := range r.previous {
		if _, ok := current[id]; ok {
			continue
		}
		r.despawn(id, prev)
	}

	for id, rec := range current {
		prev, ok := r.previous[id]
		switch {
		case !ok:
			r.spawn(id, rec)
		case prev == rec:
		case prev.SameRadii(rec):
			r.move(id, prev, rec)
		default:
			r.reconfigure(id, prev, rec)
		}
	}

	frame := r.classify()
	r.previous = current
	return frame
}

func (r *Registry) spawn(id loader.ID, rec loader.Record) {
	rec.Footprint().Each(func(c world.ChunkCoord) {
		r.claim(c, id, kindFor(rec, c))
	})
}

// despawn releases every chunk the loader could still hold. Held chunks never
// lie outside the retained square of the last record.
func (r *Registry) despawn(id loader.ID, prev loader.Record) {
	prev.Retained().Each(func(c world.ChunkCoord) {
		r.release(c, id)
	})
}

// move keeps claims that are still inside the unload radius and adds the new
// footprint on top.
func (r *Registry) move(id loader.ID, prev, rec loader.Record) {
	retained := rec.Retained()
	prev.Retained().Each(func(c world.ChunkCoord) {
		if !retained.Contains(c) {
			r.release(c, id)
		}
	})
	rec.Footprint().Each(func(c world.ChunkCoord) {
		r.claim(c, id, kindFor(rec, c))
	})
}

// reconfigure applies a radius change without hysteresis: afterwards the
// loader holds exactly its new footprint.
func (r *Registry) reconfigure(id loader.ID, prev, rec loader.Record) {
	footprint := rec.Footprint()
	prev.Retained().Each(func(c world.ChunkCoord) {
		if !footprint.Contains(c) {
			r.release(c, id)
		}
	})
	footprint.Each(func(c world.ChunkCoord) {
		r.set(c, id, kindFor(rec, c))
	})
}

func (r *Registry) classify() events.Frame {
	frame := events.Frame{Seq: r.seq}
	for c, start := range r.touched {
		entry := r.active[c]
		switch {
		case entry.total() == 0:
			delete(r.active, c)
			if start.total > 0 {
				frame.Unloads = append(frame.Unloads, events.UnloadChunk{
					Pos:      c,
					WorldPos: world.ToWorldCenter(c),
				})
			}
		case entry.critical > 0 && !entry.loaded:
			entry.loaded = true
			frame.Loads = append(frame.Loads, events.LoadChunk{
				Pos:       c,
				WorldPos:  world.ToWorldCenter(c),
				LoadedFor: entry.ids(),
			})
		case start.total == 0:
			frame.Preloads = append(frame.Preloads, events.PreloadChunk{
				Pos:       c,
				WorldPos:  world.ToWorldCenter(c),
				LoadedFor: entry.ids(),
			})
		}
	}

	sort.Slice(frame.Loads, func(i, j int) bool { return frame.Loads[i].Pos.Less(frame.Loads[j].Pos) })
	sort.Slice(frame.Preloads, func(i, j int) bool { return frame.Preloads[i].Pos.Less(frame.Preloads[j].Pos) })
	sort.Slice(frame.Unloads, func(i, j int) bool { return frame.Unloads[i].Pos.Less(frame.Unloads[j].Pos) })

	r.totals.Loads += uint64(len(frame.Loads))
	r.totals.Preloads += uint64(len(frame.Preloads))
	r.totals.Unloads += uint64(len(frame.Unloads))
	return frame
}
