// Package replay provides the per-session bounded replay buffer.
//
// Terminal output is stored as sequence-numbered chunks so that a device
// reconnecting after a network drop can ask "give me everything after
// sequence N" and either receive exactly that, or an explicit signal that
// part of the range has been evicted and is unrecoverable. The buffer
// trades memory for a bounded history window: total retained bytes never
// exceed a configured budget, and callers are told when eviction outran
// their last-seen position.
package replay

import (
	"sync"
)

// DefaultMaxBytes is the default byte budget for a session's replay buffer.
const DefaultMaxBytes = 2 * 1024 * 1024

// Chunk is one delivery of terminal output with its assigned sequence number.
// Chunks are immutable once created: Append copies the caller's data, and
// GetFrom returns the stored slices, which no code path mutates afterwards.
type Chunk struct {
	// Seq is the sequence number assigned at append time. Sequence numbers
	// are strictly increasing within a buffer's lifetime and never reused.
	Seq uint64

	// Data is the raw output bytes for this delivery.
	Data []byte
}

// Buffer is a thread-safe, byte-budgeted store of output chunks.
//
// Eviction policy: when total stored bytes exceed the budget, the oldest
// chunks are dropped until the total fits. The single most recent chunk is
// never evicted, even if it alone exceeds the budget; otherwise one
// oversized write would leave a reconnecting device with no history at all.
//
// The output capture goroutine appends while device-request goroutines
// replay, so every operation takes the mutex. The lock is held only for
// the duration of the bookkeeping, never across a network operation.
type Buffer struct {
	mu sync.Mutex

	// chunks holds retained chunks in append order. chunks[0] is the
	// oldest retained chunk.
	chunks []Chunk

	// size is the running total of Data bytes across all retained chunks.
	size int

	// maxBytes is the configured byte budget.
	maxBytes int

	// nextSeq is the sequence number the next Append will assign.
	// It does not reset on Clear: sequence numbers are unique for the
	// lifetime of the buffer instance.
	nextSeq uint64
}

// New creates a replay buffer with the given byte budget.
// If maxBytes is <= 0, DefaultMaxBytes is used.
func New(maxBytes int) *Buffer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Buffer{
		maxBytes: maxBytes,
	}
}

// Append stores a chunk and returns its assigned sequence number.
// The data is copied, so the caller may reuse its slice. Oldest chunks
// are evicted until the byte budget is respected, except that the chunk
// just appended always survives.
func (b *Buffer) Append(data []byte) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	seq := b.nextSeq
	b.nextSeq++

	stored := make([]byte, len(data))
	copy(stored, data)

	b.chunks = append(b.chunks, Chunk{Seq: seq, Data: stored})
	b.size += len(stored)

	// Evict oldest while over budget, but never the most recent chunk.
	for b.size > b.maxBytes && len(b.chunks) > 1 {
		b.size -= len(b.chunks[0].Data)
		b.chunks[0].Data = nil
		b.chunks = b.chunks[1:]
	}

	return seq
}

// GetFrom returns the chunks with sequence >= from, in append order.
//
// The second return value reports eviction: if from precedes the oldest
// retained chunk, every retained chunk is returned and gapFrom is set to
// from with gap=true, signaling that data between the caller's last-seen
// sequence and the oldest returned chunk is permanently lost. An empty
// buffer returns no chunks and no gap.
//
// The returned slice is freshly allocated; the Chunk Data slices are
// shared with the buffer and must be treated as read-only.
func (b *Buffer) GetFrom(from uint64) (chunks []Chunk, gapFrom uint64, gap bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.chunks) == 0 {
		return nil, 0, false
	}

	oldest := b.chunks[0].Seq
	if from < oldest {
		// Requested range partially evicted: return everything we still
		// hold plus the gap marker so the device can resynchronize.
		out := make([]Chunk, len(b.chunks))
		copy(out, b.chunks)
		return out, from, true
	}

	// Binary search is not worth it here: buffers hold at most a few
	// hundred chunks under the default budget.
	start := len(b.chunks)
	for i, c := range b.chunks {
		if c.Seq >= from {
			start = i
			break
		}
	}

	out := make([]Chunk, len(b.chunks)-start)
	copy(out, b.chunks[start:])
	return out, 0, false
}

// Clear drops all chunks and resets the size total.
// Sequence numbering continues from where it left off; a session keeps
// monotonic sequences until its buffer instance is recreated.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = nil
	b.size = 0
}

// Len returns the number of retained chunks.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Size returns the total retained bytes.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// NextSeq returns the sequence number the next Append will assign.
func (b *Buffer) NextSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextSeq
}
