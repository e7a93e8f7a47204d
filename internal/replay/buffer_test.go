package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/testutil"
)

func makeExp(action int) Experience {
	return Experience{
		State:     []float64{float64(action), 1},
		Action:    action,
		Reward:    float64(action) * 0.5,
		NextState: []float64{float64(action), 2},
	}
}

func TestBuffer_RingSemantics(t *testing.T) {
	const capacity, extra = 10, 4
	b := NewBuffer(capacity, testutil.NopLogger())

	for i := 0; i < capacity+extra; i++ {
		b.Push(makeExp(i))
	}

	assert.Equal(t, capacity, b.Len(), "buffer must never exceed capacity")

	// Oldest entries were overwritten; the most recent capacity entries
	// remain in insertion order.
	for pos := 0; pos < capacity; pos++ {
		assert.Equal(t, extra+pos, b.At(pos).Action)
	}

	stats := b.Stats()
	assert.Equal(t, int64(capacity+extra), stats.TotalAdded)
	assert.Equal(t, int64(extra), stats.TotalOverwritten)
}

func TestBuffer_CopyOnStore(t *testing.T) {
	b := NewBuffer(4, testutil.NopLogger())
	state := []float64{1, 2, 3}
	b.Push(Experience{State: state, NextState: []float64{4}})

	state[0] = 99

	assert.Equal(t, 1.0, b.At(0).State[0], "stored state must be isolated from caller mutation")
}

func TestBuffer_Sample(t *testing.T) {
	b := NewBuffer(8, testutil.NopLogger())
	rng := testutil.NewTestRNG(5)

	assert.Nil(t, b.Sample(4, rng), "empty buffer yields no batch")

	for i := 0; i < 8; i++ {
		b.Push(makeExp(i))
	}
	batch := b.Sample(32, rng)
	require.Len(t, batch, 32)
	for _, exp := range batch {
		assert.GreaterOrEqual(t, exp.Action, 0)
		assert.Less(t, exp.Action, 8)
	}
}

func TestBuffer_Clear(t *testing.T) {
	b := NewBuffer(4, testutil.NopLogger())
	for i := 0; i < 4; i++ {
		b.Push(makeExp(i))
	}
	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 4, b.Cap())
}

func TestPrioritizedBuffer_HigherPrioritySampledMoreOften(t *testing.T) {
	cfg := DefaultPrioritizedConfig(4)
	b := NewPrioritizedBuffer(cfg, testutil.NopLogger())
	rng := testutil.NewTestRNG(11)

	for i := 0; i < 4; i++ {
		b.Push(makeExp(i))
	}
	// Entry 3 gets a much larger TD error than the rest
	b.UpdatePriorities([]int{0, 1, 2, 3}, []float64{0.01, 0.01, 0.01, 5.0})

	counts := make(map[int]int)
	const trials = 50
	for i := 0; i < trials; i++ {
		batch, _, _ := b.Sample(16, rng)
		for _, exp := range batch {
			counts[exp.Action]++
		}
	}

	for a := 0; a < 3; a++ {
		assert.Greater(t, counts[3], counts[a],
			"high-priority entry must be sampled more often than entry %d", a)
	}
}

func TestPrioritizedBuffer_WeightsNormalized(t *testing.T) {
	b := NewPrioritizedBuffer(DefaultPrioritizedConfig(8), testutil.NopLogger())
	rng := testutil.NewTestRNG(13)

	for i := 0; i < 8; i++ {
		b.Push(makeExp(i))
	}
	b.UpdatePriorities([]int{0, 1}, []float64{3.0, 0.2})

	_, indices, weights := b.Sample(16, rng)
	require.Len(t, indices, 16)
	maxW := 0.0
	for _, w := range weights {
		assert.Greater(t, w, 0.0)
		assert.LessOrEqual(t, w, 1.0)
		if w > maxW {
			maxW = w
		}
	}
	assert.InDelta(t, 1.0, maxW, 1e-9, "weights are normalized by the batch maximum")
}

func TestPrioritizedBuffer_NewEntriesGetMaxPriority(t *testing.T) {
	b := NewPrioritizedBuffer(DefaultPrioritizedConfig(8), testutil.NopLogger())

	b.Push(makeExp(0))
	b.UpdatePriorities([]int{0}, []float64{7.5})
	require.InDelta(t, 7.5+b.cfg.EpsilonFloor, b.MaxPriority(), 1e-9)

	b.Push(makeExp(1))
	assert.InDelta(t, b.MaxPriority(), b.priorities[1], 1e-9,
		"fresh entries start at the running max priority")
}

func TestPrioritizedBuffer_BetaAnneals(t *testing.T) {
	cfg := DefaultPrioritizedConfig(8)
	cfg.BetaAnnealing = 32
	b := NewPrioritizedBuffer(cfg, testutil.NopLogger())
	rng := testutil.NewTestRNG(17)

	for i := 0; i < 8; i++ {
		b.Push(makeExp(i))
	}

	assert.InDelta(t, cfg.BetaStart, b.currentBeta(), 1e-9)
	b.Sample(16, rng)
	mid := b.currentBeta()
	assert.Greater(t, mid, cfg.BetaStart)
	b.Sample(16, rng)
	assert.InDelta(t, cfg.BetaEnd, b.currentBeta(), 1e-9)
}
