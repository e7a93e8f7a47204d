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

var (
	_ Agent = (*DQN)(nil)
	_ Agent = (*MCTS)(nil)
	_ Agent = (*Reinforce)(nil)
	_ Agent = (*Heuristic)(nil)
)

func newTestDQN(t *testing.T, mutate func(*Options)) *DQN {
	t.Helper()
	opts := DefaultOptions()
	opts.Hidden = []int{16}
	opts.BatchSize = 4
	opts.MemoryCapacity = 64
	if mutate != nil {
		mutate(&opts)
	}
	stateSize := blockenv.StateSize(9, 3)
	actionSize := blockenv.ActionSpaceSize(9, 3)
	return NewDQN(stateSize, actionSize, opts, testutil.NewTestRNG(42), testutil.NopLogger())
}

func newAgentEnv(t *testing.T) *blockenv.Env {
	t.Helper()
	return blockenv.New(blockenv.DefaultConfig(), testutil.NewTestRNG(7), testutil.NopLogger())
}

func randomExperience(env *blockenv.Env, done bool) replay.Experience {
	state := env.State()
	return replay.Experience{
		State:     state,
		Action:    env.ValidActions()[0],
		Reward:    1.0,
		NextState: state,
		Done:      done,
	}
}

func TestDQN_TerminalTargetIsRewardExactly(t *testing.T) {
	d := newTestDQN(t, nil)

	exp := replay.Experience{
		State:     make([]float64, d.stateSize),
		NextState: make([]float64, d.stateSize),
		Action:    0,
		Reward:    -1000.0,
		Done:      true,
	}
	assert.Equal(t, -1000.0, d.targetValue(exp), "terminal transitions must not bootstrap")
}

func TestDQN_NonTerminalTargetBootstraps(t *testing.T) {
	d := newTestDQN(t, func(o *Options) { o.Gamma = 0.9 })

	next := make([]float64, d.stateSize)
	next[0] = 1
	exp := replay.Experience{
		State:     make([]float64, d.stateSize),
		NextState: next,
		Action:    0,
		Reward:    2.0,
	}

	q := d.target.Forward(next)
	maxQ := q[0]
	for _, v := range q[1:] {
		if v > maxQ {
			maxQ = v
		}
	}
	assert.InDelta(t, 2.0+0.9*maxQ, d.targetValue(exp), 1e-9)
}

func TestDQN_SelectActionAlwaysValid(t *testing.T) {
	d := newTestDQN(t, nil)
	env := newAgentEnv(t)

	validSet := make(map[int]bool)
	for _, a := range env.ValidActions() {
		validSet[a] = true
	}

	// Both exploration (epsilon=1) and exploitation (epsilon=0) paths
	for _, eps := range []float64{1.0, 0.0} {
		d.epsilon = eps
		for i := 0; i < 20; i++ {
			a, err := d.SelectAction(context.Background(), env)
			require.NoError(t, err)
			assert.True(t, validSet[a], "epsilon=%v returned invalid action %d", eps, a)
		}
	}
}

func TestDQN_SelectActionNoValidActions(t *testing.T) {
	d := newTestDQN(t, nil)
	env := newAgentEnv(t)
	env.SetBlocks([]*blockenv.Shape{nil, nil, nil})

	_, err := d.SelectAction(context.Background(), env)
	assert.ErrorIs(t, err, ErrNoValidActions)
}

func TestDQN_TrainSkipsUntilBatchAvailable(t *testing.T) {
	d := newTestDQN(t, nil)
	require.NoError(t, d.Train())
	assert.Equal(t, 0, d.Stats().TrainingSteps)
}

func TestDQN_TrainDecaysEpsilonAndCounts(t *testing.T) {
	d := newTestDQN(t, func(o *Options) { o.AdaptiveEpsilon = false })
	env := newAgentEnv(t)

	for i := 0; i < 8; i++ {
		d.Remember(randomExperience(env, i%4 == 3))
	}

	before := d.Epsilon()
	require.NoError(t, d.Train())
	assert.Equal(t, 1, d.Stats().TrainingSteps)
	assert.Less(t, d.Epsilon(), before)
}

func TestDQN_TrainDropsConcurrentCall(t *testing.T) {
	d := newTestDQN(t, nil)
	env := newAgentEnv(t)
	for i := 0; i < 8; i++ {
		d.Remember(randomExperience(env, false))
	}

	// Simulate an in-flight training step; the overlapping call must be
	// dropped, not queued, and must not error.
	d.trainMu.Lock()
	err := d.Train()
	d.trainMu.Unlock()

	require.NoError(t, err)
	assert.Equal(t, 0, d.Stats().TrainingSteps)

	// Lock released; the next call trains normally.
	require.NoError(t, d.Train())
	assert.Equal(t, 1, d.Stats().TrainingSteps)
}

func TestDQN_EpsilonFloor(t *testing.T) {
	d := newTestDQN(t, func(o *Options) {
		o.EpsilonStart = 0.06
		o.EpsilonMin = 0.05
		o.EpsilonDecay = 0.5
		o.AdaptiveEpsilon = false
	})
	env := newAgentEnv(t)
	for i := 0; i < 8; i++ {
		d.Remember(randomExperience(env, false))
	}

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Train())
	}
	assert.Equal(t, 0.05, d.Epsilon())
}

func TestDQN_SnapshotRestoreRoundTrip(t *testing.T) {
	d := newTestDQN(t, nil)
	env := newAgentEnv(t)
	for i := 0; i < 8; i++ {
		d.Remember(randomExperience(env, false))
	}
	require.NoError(t, d.Train())
	d.EndEpisode(EpisodeSummary{Score: 400, LinesCleared: 2, TotalReward: 55})

	blob, err := d.Snapshot()
	require.NoError(t, err)

	restored := newTestDQN(t, nil)
	require.NoError(t, restored.Restore(blob))

	assert.Equal(t, d.Epsilon(), restored.Epsilon())
	assert.Equal(t, d.Stats().TrainingSteps, restored.Stats().TrainingSteps)
	assert.Equal(t, d.Stats().BestScore, restored.Stats().BestScore)

	state := env.State()
	assert.Equal(t, d.online.Forward(state), restored.online.Forward(state))
}

func TestDQN_RestoreToleratesMissingOptionalFields(t *testing.T) {
	d := newTestDQN(t, nil)
	weights, err := d.online.MarshalWeights()
	require.NoError(t, err)

	// A minimal blob with only weights, as an older save might hold
	blob := []byte(`{"weights":` + string(weights) + `}`)

	restored := newTestDQN(t, nil)
	require.NoError(t, restored.Restore(blob))
	assert.Equal(t, restored.opts.EpsilonStart, restored.Epsilon(),
		"missing epsilon falls back to the configured default")
	assert.Equal(t, 0, restored.Stats().Episodes)
}

func TestDQN_RestoreRejectsEmptyBlob(t *testing.T) {
	d := newTestDQN(t, nil)
	assert.Error(t, d.Restore([]byte(`{}`)))
}
