package replay

import (
	"math/rand"

	"github.com/rs/zerolog"
)

// Experience is one (state, action, reward, nextState, done) transition.
// The buffer owns the state slices it stores; Push copies them so callers
// may keep mutating their own backing arrays.
type Experience struct {
	State     []float64
	Action    int
	Reward    float64
	NextState []float64
	Done      bool
}

func (e Experience) clone() Experience {
	state := make([]float64, len(e.State))
	copy(state, e.State)
	next := make([]float64, len(e.NextState))
	copy(next, e.NextState)
	return Experience{
		State:     state,
		Action:    e.Action,
		Reward:    e.Reward,
		NextState: next,
		Done:      e.Done,
	}
}

// Buffer is a fixed-capacity circular replay memory with uniform sampling.
// Once full, the write cursor advances modulo capacity and the oldest
// entry is overwritten; an overwritten slot's buffers are released by the
// overwrite itself.
type Buffer struct {
	entries  []Experience
	capacity int
	head     int // next write position
	size     int

	totalAdded       int64
	totalOverwritten int64

	logger zerolog.Logger
}

// NewBuffer creates a replay buffer with the given capacity.
func NewBuffer(capacity int, logger zerolog.Logger) *Buffer {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Buffer{
		entries:  make([]Experience, capacity),
		capacity: capacity,
		logger:   logger.With().Str("component", "replay_buffer").Logger(),
	}
}

// Push stores a copy of the experience, overwriting the oldest entry when
// the buffer is full.
func (b *Buffer) Push(exp Experience) {
	if b.size >= b.capacity {
		b.totalOverwritten++
	} else {
		b.size++
	}
	b.entries[b.head] = exp.clone()
	b.head = (b.head + 1) % b.capacity
	b.totalAdded++
}

// Sample draws batchSize experiences uniformly with replacement.
func (b *Buffer) Sample(batchSize int, rng *rand.Rand) []Experience {
	if b.size == 0 {
		return nil
	}
	batch := make([]Experience, batchSize)
	for i := range batch {
		batch[i] = b.entries[b.index(rng.Intn(b.size))]
	}
	return batch
}

// index maps a logical position (0 = oldest) to a slot.
func (b *Buffer) index(pos int) int {
	if b.size < b.capacity {
		return pos
	}
	return (b.head + pos) % b.capacity
}

// At returns the experience at logical position pos, 0 being the oldest.
func (b *Buffer) At(pos int) Experience { return b.entries[b.index(pos)] }

// Len returns the number of stored experiences.
func (b *Buffer) Len() int { return b.size }

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return b.capacity }

// Clear drops all stored experiences and releases their buffers.
func (b *Buffer) Clear() {
	b.entries = make([]Experience, b.capacity)
	b.head = 0
	b.size = 0
	b.logger.Debug().Msg("Replay buffer cleared")
}

// Stats returns buffer counters.
func (b *Buffer) Stats() Stats {
	return Stats{
		Size:             b.size,
		Capacity:         b.capacity,
		TotalAdded:       b.totalAdded,
		TotalOverwritten: b.totalOverwritten,
	}
}

// Stats holds replay buffer counters.
type Stats struct {
	Size             int
	Capacity         int
	TotalAdded       int64
	TotalOverwritten int64
}
