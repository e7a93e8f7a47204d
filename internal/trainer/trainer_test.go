package trainer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/agent"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/blockenv"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/checkpoint"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/curriculum"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/testutil"
)

func newTestTrainer(t *testing.T, cfg Config, algorithm string) (*Trainer, *checkpoint.MemStore) {
	t.Helper()
	envCfg := blockenv.DefaultConfig()
	env := blockenv.New(envCfg, testutil.NewTestRNG(42), testutil.NopLogger())

	opts := agent.DefaultOptions()
	opts.Hidden = []int{16}
	opts.BatchSize = 4
	opts.MemoryCapacity = 64
	ag, err := agent.New(algorithm, blockenv.StateSize(envCfg.GridSize, envCfg.MaxBlocks),
		blockenv.ActionSpaceSize(envCfg.GridSize, envCfg.MaxBlocks), opts,
		testutil.NewTestRNG(7), testutil.NopLogger())
	require.NoError(t, err)

	store := checkpoint.NewMemStore()
	return New(cfg, env, ag, nil, store, testutil.NopLogger()), store
}

func TestTrainer_RunCompletesEpisodes(t *testing.T) {
	cfg := Config{Episodes: 3, MaxStepsPerEpisode: 50, LogInterval: 1}
	tr, _ := newTestTrainer(t, cfg, agent.AlgorithmHeuristic)

	stats, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Episodes)
	assert.Positive(t, stats.TotalSteps)
	assert.Positive(t, stats.BestScore)
	assert.GreaterOrEqual(t, stats.BestScore, stats.LastScore)
	assert.NotEmpty(t, stats.RunID)
}

func TestTrainer_StopHaltsRun(t *testing.T) {
	cfg := Config{Episodes: 10_000, MaxStepsPerEpisode: 50}
	tr, _ := newTestTrainer(t, cfg, agent.AlgorithmHeuristic)
	tr.Stop()

	stats, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Episodes)
}

func TestTrainer_ContextCancelHaltsRun(t *testing.T) {
	cfg := Config{Episodes: 10_000, MaxStepsPerEpisode: 500}
	tr, _ := newTestTrainer(t, cfg, agent.AlgorithmHeuristic)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	stats, err := tr.Run(ctx)
	require.NoError(t, err)
	assert.Less(t, stats.Episodes, 10_000)
}

func TestTrainer_CheckpointsLearningAgent(t *testing.T) {
	cfg := Config{Episodes: 2, MaxStepsPerEpisode: 30, CheckpointInterval: 1}
	tr, store := newTestTrainer(t, cfg, agent.AlgorithmDQN)

	_, err := tr.Run(context.Background())
	require.NoError(t, err)

	names, err := store.List()
	require.NoError(t, err)
	assert.Contains(t, names, "latest")

	blob, err := store.Load("latest")
	require.NoError(t, err)
	assert.NotEmpty(t, blob)
}

func TestTrainer_HeuristicSavesNoCheckpoints(t *testing.T) {
	cfg := Config{Episodes: 2, MaxStepsPerEpisode: 30, CheckpointInterval: 1}
	tr, store := newTestTrainer(t, cfg, agent.AlgorithmHeuristic)

	stats, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Checkpoints)

	names, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestTrainer_ResumeMissingCheckpointIsNotAnError(t *testing.T) {
	cfg := Config{Episodes: 1, MaxStepsPerEpisode: 10}
	tr, _ := newTestTrainer(t, cfg, agent.AlgorithmDQN)
	assert.NoError(t, tr.Resume("latest"))
}

func TestTrainer_ResumeRestoresSnapshot(t *testing.T) {
	cfg := Config{Episodes: 2, MaxStepsPerEpisode: 30, CheckpointInterval: 1}
	tr, store := newTestTrainer(t, cfg, agent.AlgorithmDQN)
	_, err := tr.Run(context.Background())
	require.NoError(t, err)

	envCfg := blockenv.DefaultConfig()
	env := blockenv.New(envCfg, testutil.NewTestRNG(1), testutil.NopLogger())
	opts := agent.DefaultOptions()
	opts.Hidden = []int{16}
	opts.BatchSize = 4
	opts.MemoryCapacity = 64
	fresh, err := agent.New(agent.AlgorithmDQN,
		blockenv.StateSize(envCfg.GridSize, envCfg.MaxBlocks),
		blockenv.ActionSpaceSize(envCfg.GridSize, envCfg.MaxBlocks), opts,
		testutil.NewTestRNG(2), testutil.NopLogger())
	require.NoError(t, err)

	tr2 := New(cfg, env, fresh, nil, store, testutil.NopLogger())
	assert.NoError(t, tr2.Resume("latest"))
}

func TestTrainer_CurriculumAdvancesStage(t *testing.T) {
	envCfg := blockenv.DefaultConfig()
	env := blockenv.New(envCfg, testutil.NewTestRNG(42), testutil.NopLogger())

	opts := agent.DefaultOptions()
	ag, err := agent.New(agent.AlgorithmHeuristic,
		blockenv.StateSize(envCfg.GridSize, envCfg.MaxBlocks),
		blockenv.ActionSpaceSize(envCfg.GridSize, envCfg.MaxBlocks), opts,
		testutil.NewTestRNG(7), testutil.NopLogger())
	require.NoError(t, err)

	// Thresholds low enough that the heuristic clears them quickly.
	machine := curriculum.New(curriculum.Config{Window: 2, AdvanceScore: [3]float64{1, 1e9, 1e9}},
		testutil.NopLogger())
	cfg := Config{Episodes: 6, MaxStepsPerEpisode: 100}
	tr := New(cfg, env, ag, machine, checkpoint.NewMemStore(), testutil.NopLogger())

	stats, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, curriculum.StageIntermediate.String(), stats.Stage)
	assert.Equal(t, 1, env.Level())

	// Shaping terms anneal on advance; line rewards and penalties stay.
	base := blockenv.DefaultRewardConfig()
	got := env.Config().Reward
	assert.InDelta(t, 0.8*base.SurvivalBonus, got.SurvivalBonus, 1e-9)
	assert.Equal(t, base.LineBase, got.LineBase)
	assert.Equal(t, base.InvalidPenalty, got.InvalidPenalty)
}
