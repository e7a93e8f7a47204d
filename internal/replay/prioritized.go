package replay

import (
	"math"
	"math/rand"

	"github.com/rs/zerolog"
)

// PrioritizedConfig holds prioritized-replay hyperparameters.
type PrioritizedConfig struct {
	Capacity      int
	Alpha         float64 // priority exponent
	BetaStart     float64 // initial importance-sampling exponent
	BetaEnd       float64
	BetaAnnealing int     // samples over which beta anneals to BetaEnd
	EpsilonFloor  float64 // added to |td| so no priority is ever zero
}

// DefaultPrioritizedConfig returns the standard PER settings.
func DefaultPrioritizedConfig(capacity int) PrioritizedConfig {
	return PrioritizedConfig{
		Capacity:      capacity,
		Alpha:         0.6,
		BetaStart:     0.4,
		BetaEnd:       1.0,
		BetaAnnealing: 100000,
		EpsilonFloor:  1e-4,
	}
}

// PrioritizedBuffer samples experiences proportional to priority^alpha and
// returns importance-sampling weights computed with an annealed beta. New
// entries get the running maximum priority so they are replayed at least
// once before their TD error takes over.
type PrioritizedBuffer struct {
	cfg        PrioritizedConfig
	entries    []Experience
	priorities []float64
	head       int
	size       int

	maxPriority float64
	sampleCount int

	logger zerolog.Logger
}

// NewPrioritizedBuffer creates a prioritized replay buffer.
func NewPrioritizedBuffer(cfg PrioritizedConfig, logger zerolog.Logger) *PrioritizedBuffer {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10000
	}
	return &PrioritizedBuffer{
		cfg:         cfg,
		entries:     make([]Experience, cfg.Capacity),
		priorities:  make([]float64, cfg.Capacity),
		maxPriority: 1.0,
		logger:      logger.With().Str("component", "prioritized_replay").Logger(),
	}
}

// Push stores a copy of the experience at the running maximum priority.
func (b *PrioritizedBuffer) Push(exp Experience) {
	if b.size < b.cfg.Capacity {
		b.size++
	}
	b.entries[b.head] = exp.clone()
	b.priorities[b.head] = b.maxPriority
	b.head = (b.head + 1) % b.cfg.Capacity
}

// Sample draws batchSize experiences with probability proportional to
// priority^alpha. It returns the sampled experiences, their slot indices
// for the follow-up UpdatePriorities call, and normalized
// importance-sampling weights.
func (b *PrioritizedBuffer) Sample(batchSize int, rng *rand.Rand) ([]Experience, []int, []float64) {
	if b.size == 0 {
		return nil, nil, nil
	}

	scaled := make([]float64, b.size)
	total := 0.0
	for i := 0; i < b.size; i++ {
		scaled[i] = math.Pow(b.priorities[i], b.cfg.Alpha)
		total += scaled[i]
	}

	beta := b.currentBeta()
	b.sampleCount += batchSize

	batch := make([]Experience, batchSize)
	indices := make([]int, batchSize)
	weights := make([]float64, batchSize)
	maxWeight := 0.0
	for i := 0; i < batchSize; i++ {
		idx := b.sampleIndex(scaled, total, rng)
		batch[i] = b.entries[idx]
		indices[i] = idx
		p := scaled[idx] / total
		weights[i] = math.Pow(float64(b.size)*p, -beta)
		if weights[i] > maxWeight {
			maxWeight = weights[i]
		}
	}
	if maxWeight > 0 {
		for i := range weights {
			weights[i] /= maxWeight
		}
	}
	return batch, indices, weights
}

func (b *PrioritizedBuffer) sampleIndex(scaled []float64, total float64, rng *rand.Rand) int {
	if total <= 0 {
		return rng.Intn(b.size)
	}
	target := rng.Float64() * total
	acc := 0.0
	for i, p := range scaled {
		acc += p
		if target < acc {
			return i
		}
	}
	return b.size - 1
}

// UpdatePriorities sets priority_i = |td_i| + epsilon floor for each
// sampled index and tracks the running maximum.
func (b *PrioritizedBuffer) UpdatePriorities(indices []int, tdErrors []float64) {
	for i, idx := range indices {
		if idx < 0 || idx >= b.size {
			continue
		}
		p := math.Abs(tdErrors[i]) + b.cfg.EpsilonFloor
		b.priorities[idx] = p
		if p > b.maxPriority {
			b.maxPriority = p
		}
	}
}

func (b *PrioritizedBuffer) currentBeta() float64 {
	if b.cfg.BetaAnnealing <= 0 {
		return b.cfg.BetaEnd
	}
	frac := float64(b.sampleCount) / float64(b.cfg.BetaAnnealing)
	if frac > 1 {
		frac = 1
	}
	return b.cfg.BetaStart + (b.cfg.BetaEnd-b.cfg.BetaStart)*frac
}

// Len returns the number of stored experiences.
func (b *PrioritizedBuffer) Len() int { return b.size }

// Cap returns the buffer capacity.
func (b *PrioritizedBuffer) Cap() int { return b.cfg.Capacity }

// MaxPriority returns the running maximum priority.
func (b *PrioritizedBuffer) MaxPriority() float64 { return b.maxPriority }
