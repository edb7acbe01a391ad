package terrain

import (
	"testing"

	"chunkloader/internal/world"
)

func sampleEntry(x int) queued {
	return queued{coord: world.ChunkCoord{X: x}, token: uint64(x + 1)}
}

func TestRequestQueueDrainReleasesReferences(t *testing.T) {
	var q requestQueue
	for i := 0; i < 4; i++ {
		q.Enqueue(sampleEntry(i))
	}

	batch := q.Drain(0)
	if len(batch) != 4 {
		t.Fatalf("expected 4 entries in batch, got %d", len(batch))
	}
	if q.pending != nil {
		t.Fatalf("expected queue storage to be reset, got len=%d cap=%d", len(q.pending), cap(q.pending))
	}

	q.Enqueue(sampleEntry(10))
	q.Enqueue(sampleEntry(11))
	q.Enqueue(sampleEntry(12))
	partial := q.Drain(2)
	if len(partial) != 2 || partial[0].coord.X != 10 || partial[1].coord.X != 11 {
		t.Fatalf("unexpected partial drain %+v", partial)
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 entry left, got %d", q.Len())
	}
}

func TestRequestQueuePeekAndPopAreFIFO(t *testing.T) {
	var q requestQueue
	if _, ok := q.Pop(); ok {
		t.Fatalf("expected empty queue")
	}
	q.Enqueue(sampleEntry(1))
	q.Enqueue(sampleEntry(2))

	head, ok := q.Peek()
	if !ok || head.coord.X != 1 || q.Len() != 2 {
		t.Fatalf("peek must not remove the head, got %+v len %d", head, q.Len())
	}
	first, _ := q.Pop()
	second, _ := q.Pop()
	if first.coord.X != 1 || second.coord.X != 2 {
		t.Fatalf("expected FIFO order, got %v then %v", first.coord, second.coord)
	}
	if q.pending != nil {
		t.Fatalf("expected storage to be released once empty")
	}
}
