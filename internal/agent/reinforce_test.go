package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/blockenv"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/replay"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/testutil"
)

func newTestReinforce(t *testing.T) *Reinforce {
	t.Helper()
	opts := DefaultOptions()
	opts.Hidden = []int{16}
	stateSize := blockenv.StateSize(9, 3)
	actionSize := blockenv.ActionSpaceSize(9, 3)
	return NewReinforce(stateSize, actionSize, opts, testutil.NewTestRNG(42), testutil.NopLogger())
}

func TestDiscountedReturns(t *testing.T) {
	traj := []trajectoryStep{
		{reward: 1.0},
		{reward: 2.0},
		{reward: 3.0},
	}

	returns := discountedReturns(traj, 0.5)
	// Backward cumulative sum: r2=3, r1=2+0.5*3=3.5, r0=1+0.5*3.5=2.75
	assert.InDelta(t, 2.75, returns[0], 1e-9)
	assert.InDelta(t, 3.5, returns[1], 1e-9)
	assert.InDelta(t, 3.0, returns[2], 1e-9)
}

func TestNormalizeReturns(t *testing.T) {
	t.Run("zero mean unit variance", func(t *testing.T) {
		returns := []float64{1, 2, 3, 4, 5}
		normalizeReturns(returns)

		mean, sq := 0.0, 0.0
		for _, v := range returns {
			mean += v
		}
		mean /= float64(len(returns))
		for _, v := range returns {
			sq += (v - mean) * (v - mean)
		}
		assert.InDelta(t, 0.0, mean, 1e-9)
		assert.InDelta(t, 1.0, sq/float64(len(returns)), 1e-9)
	})

	t.Run("degenerate variance leaves centered values", func(t *testing.T) {
		returns := []float64{2, 2, 2}
		normalizeReturns(returns)
		for _, v := range returns {
			assert.Equal(t, 0.0, v)
		}
	})

	t.Run("empty", func(t *testing.T) {
		normalizeReturns(nil)
	})
}

func TestReinforce_SelectActionAlwaysValid(t *testing.T) {
	r := newTestReinforce(t)
	env := blockenv.New(blockenv.DefaultConfig(), testutil.NewTestRNG(7), testutil.NopLogger())

	validSet := make(map[int]bool)
	for _, a := range env.ValidActions() {
		validSet[a] = true
	}
	for i := 0; i < 50; i++ {
		a, err := r.SelectAction(context.Background(), env)
		require.NoError(t, err)
		assert.True(t, validSet[a], "sampled invalid action %d", a)
	}
}

func TestReinforce_EndEpisodeTrainsAndClearsTrajectory(t *testing.T) {
	r := newTestReinforce(t)
	env := blockenv.New(blockenv.DefaultConfig(), testutil.NewTestRNG(7), testutil.NopLogger())

	for i := 0; i < 5; i++ {
		r.Remember(replay.Experience{
			State:  env.State(),
			Action: env.ValidActions()[i],
			Reward: float64(i),
		})
	}
	require.Len(t, r.trajectory, 5)

	r.EndEpisode(EpisodeSummary{Score: 100})

	assert.Empty(t, r.trajectory, "trajectory must be discarded after the update")
	assert.Equal(t, 1, r.Stats().TrainingSteps)
	assert.Equal(t, 1, r.Stats().Episodes)
}

func TestReinforce_EmptyEpisodeIsNoop(t *testing.T) {
	r := newTestReinforce(t)
	r.EndEpisode(EpisodeSummary{})
	assert.Equal(t, 0, r.Stats().TrainingSteps)
}

func TestReinforce_SnapshotRoundTrip(t *testing.T) {
	r := newTestReinforce(t)
	env := blockenv.New(blockenv.DefaultConfig(), testutil.NewTestRNG(7), testutil.NopLogger())
	for i := 0; i < 3; i++ {
		r.Remember(replay.Experience{State: env.State(), Action: env.ValidActions()[0], Reward: 1})
	}
	r.EndEpisode(EpisodeSummary{Score: 250})

	blob, err := r.Snapshot()
	require.NoError(t, err)

	restored := newTestReinforce(t)
	require.NoError(t, restored.Restore(blob))
	assert.Equal(t, 1, restored.Stats().Episodes)
	assert.Equal(t, 250, restored.Stats().BestScore)

	state := env.State()
	assert.Equal(t, r.policy.Policy(state), restored.policy.Policy(state))
}
