package terrain

import "chunkloader/internal/world"

type queued struct {
	coord    world.ChunkCoord
	token    uint64
	priority Priority
}

// requestQueue is a FIFO of generation requests. Entries may go stale when a
// chunk is cancelled or promoted; the streamer skips those on the way out.
type requestQueue struct {
	pending []queued
}

func (q *requestQueue) Enqueue(entry queued) {
	q.pending = append(q.pending, entry)
}

// Peek returns the head without removing it.
func (q *requestQueue) Peek() (queued, bool) {
	if len(q.pending) == 0 {
		return queued{}, false
	}
	return q.pending[0], true
}

func (q *requestQueue) Pop() (queued, bool) {
	if len(q.pending) == 0 {
		return queued{}, false
	}
	entry := q.pending[0]
	if len(q.pending) == 1 {
		q.pending = nil
	} else {
		q.pending = q.pending[1:]
	}
	return entry, true
}

// Drain removes up to max entries; max <= 0 drains everything.
func (q *requestQueue) Drain(max int) []queued {
	if len(q.pending) == 0 {
		return nil
	}
	if max <= 0 || max >= len(q.pending) {
		batch := q.pending
		q.pending = nil
		return batch
	}
	batch := append([]queued(nil), q.pending[:max]...)
	q.pending = q.pending[max:]
	return batch
}

func (q *requestQueue) Len() int {
	return len(q.pending)
}
