package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/blockenv"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/testutil"
)

func newTestMCTS(t *testing.T, mutate func(*Options)) *MCTS {
	t.Helper()
	opts := DefaultOptions()
	opts.Simulations = 150
	if mutate != nil {
		mutate(&opts)
	}
	return NewMCTS(opts, testutil.NewTestRNG(42), testutil.NopLogger())
}

// lineChoiceEnv builds a position where exactly one action clears a line
// and every alternative is a plain dot placement.
func lineChoiceEnv(t *testing.T) (*blockenv.Env, int) {
	t.Helper()
	env := blockenv.New(blockenv.DefaultConfig(), testutil.NewTestRNG(7), testutil.NopLogger())
	for col := 0; col < 6; col++ {
		env.Grid().Set(0, col, true)
	}
	env.SetBlocks([]*blockenv.Shape{
		blockenv.ShapeByName("tri-h"),
		blockenv.ShapeByName("dot"),
		nil,
	})
	clearing := blockenv.EncodeAction(0, 6, 0, 9, 3)
	require.Equal(t, 1, env.CompletedLinesIfPlaced(clearing))
	return env, clearing
}

func TestMCTS_ReturnsValidAction(t *testing.T) {
	m := newTestMCTS(t, nil)
	env := blockenv.New(blockenv.DefaultConfig(), testutil.NewTestRNG(3), testutil.NopLogger())

	validSet := make(map[int]bool)
	for _, a := range env.ValidActions() {
		validSet[a] = true
	}

	a, err := m.SelectAction(context.Background(), env)
	require.NoError(t, err)
	assert.True(t, validSet[a])
}

func TestMCTS_PrefersLineClearingAction(t *testing.T) {
	m := newTestMCTS(t, func(o *Options) { o.Simulations = 400 })
	env, clearing := lineChoiceEnv(t)

	a, err := m.SelectAction(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, clearing, a,
		"with a clear reward signal the most-visited child should be the line clear")
}

func TestMCTS_SingleActionShortCircuits(t *testing.T) {
	m := newTestMCTS(t, nil)
	env := blockenv.New(blockenv.DefaultConfig(), testutil.NewTestRNG(7), testutil.NopLogger())
	for i := range env.Grid().Cells {
		env.Grid().Cells[i] = true
	}
	env.Grid().Set(4, 4, false)
	env.SetBlocks([]*blockenv.Shape{blockenv.ShapeByName("dot"), nil, nil})

	a, err := m.SelectAction(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, blockenv.EncodeAction(4, 4, 0, 9, 3), a)
}

func TestMCTS_TerminalPosition(t *testing.T) {
	m := newTestMCTS(t, nil)
	env := blockenv.New(blockenv.DefaultConfig(), testutil.NewTestRNG(7), testutil.NopLogger())
	env.SetBlocks([]*blockenv.Shape{nil, nil, nil})

	_, err := m.SelectAction(context.Background(), env)
	assert.ErrorIs(t, err, ErrNoValidActions)
}

func TestMCTS_CancelledContextStillAnswers(t *testing.T) {
	m := newTestMCTS(t, func(o *Options) {
		o.Simulations = 10000
		o.YieldInterval = 5
	})
	env := blockenv.New(blockenv.DefaultConfig(), testutil.NewTestRNG(9), testutil.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	validSet := make(map[int]bool)
	for _, a := range env.ValidActions() {
		validSet[a] = true
	}
	a, err := m.SelectAction(ctx, env)
	require.NoError(t, err)
	assert.True(t, validSet[a], "cancellation must still yield a usable action")
}

func TestMCTS_DoesNotMutateLiveEnvironment(t *testing.T) {
	m := newTestMCTS(t, nil)
	env, _ := lineChoiceEnv(t)
	filledBefore := env.Grid().CountFilled()
	movesBefore := env.Moves()

	_, err := m.SelectAction(context.Background(), env)
	require.NoError(t, err)

	assert.Equal(t, filledBefore, env.Grid().CountFilled())
	assert.Equal(t, movesBefore, env.Moves())
}
