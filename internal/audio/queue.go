package audio

import (
	"sync"
	"time"
)

// Chunk is one opaque piece of encoded audio from a capture source.
type Chunk struct {
	Channel    string
	Data       []byte
	ReceivedAt time.Time
}

// ChunkQueue is a bounded FIFO of audio chunks. When full, Push evicts the
// oldest chunk instead of blocking the producer.
type ChunkQueue struct {
	chunks []Chunk
	size   int
	read   int
	count  int
	ready  chan struct{}
	closed bool
	mu     sync.Mutex
}

// NewChunkQueue creates a queue holding at most size chunks.
func NewChunkQueue(size int) *ChunkQueue {
	if size < 1 {
		size = 1
	}
	return &ChunkQueue{
		chunks: make([]Chunk, size),
		size:   size,
		ready:  make(chan struct{}, 1),
	}
}

// Push appends a chunk. It returns false when the queue is closed and the
// chunk was discarded. evicted is true when the oldest chunk was dropped to
// make room.
func (q *ChunkQueue) Push(c Chunk) (accepted, evicted bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false, false
	}

	if q.count == q.size {
		q.chunks[q.read] = Chunk{}
		q.read = (q.read + 1) % q.size
		q.count--
		evicted = true
	}

	write := (q.read + q.count) % q.size
	q.chunks[write] = c
	q.count++
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true, evicted
}

// Pop removes the oldest chunk. ok is false when the queue is empty.
func (q *ChunkQueue) Pop() (c Chunk, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return Chunk{}, false
	}
	c = q.chunks[q.read]
	q.chunks[q.read] = Chunk{}
	q.read = (q.read + 1) % q.size
	q.count--
	return c, true
}

// Ready is signalled after a Push. A single receive may cover several chunks,
// so consumers drain with Pop until it reports empty.
func (q *ChunkQueue) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of queued chunks.
func (q *ChunkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Close stops the queue from accepting chunks. Already queued chunks can
// still be popped.
func (q *ChunkQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// Clear drops every queued chunk.
func (q *ChunkQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.chunks {
		q.chunks[i] = Chunk{}
	}
	q.read = 0
	q.count = 0
}
