package blockenv

import (
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// ErrEpisodeOver is returned when Step is called after the episode ended.
var ErrEpisodeOver = errors.New("episode is over")

// Config holds environment parameters.
type Config struct {
	GridSize  int
	MaxBlocks int
	Reward    RewardConfig
}

// DefaultConfig returns the base 9x9 variant with a 3-block pool.
func DefaultConfig() Config {
	return Config{
		GridSize:  9,
		MaxBlocks: 3,
		Reward:    DefaultRewardConfig(),
	}
}

// StepInfo carries per-step diagnostics alongside the reward.
type StepInfo struct {
	LinesCleared int
	CellsPlaced  int
	Score        int
	Moves        int
	Invalid      bool
}

// StepResult is the outcome of a single environment step.
type StepResult struct {
	State  []float64
	Reward float64
	Done   bool
	Info   StepInfo
}

// Env is a deterministic simulator for the block placement puzzle. All
// randomness flows through the injected RNG, so two environments seeded
// identically and fed identical actions produce identical transitions.
type Env struct {
	cfg             Config
	grid            *Grid
	blocks          []*Shape // nil entries mark used slots; indices stay stable
	score           int
	moves           int
	movesSinceClear int
	level           int
	gameOver        bool
	rng             *rand.Rand
	logger          zerolog.Logger
}

// New creates an environment. A nil rng falls back to a time-seeded one.
func New(cfg Config, rng *rand.Rand, logger zerolog.Logger) *Env {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	e := &Env{
		cfg:    cfg,
		rng:    rng,
		logger: logger.With().Str("component", "blockenv").Logger(),
	}
	e.Reset()
	return e
}

// Reset reinitializes the grid, draws a fresh block pool, zeroes the
// counters, and returns the initial state vector.
func (e *Env) Reset() []float64 {
	e.grid = NewGrid(e.cfg.GridSize)
	e.blocks = DrawShapes(e.rng, e.cfg.MaxBlocks)
	e.score = 0
	e.moves = 0
	e.movesSinceClear = 0
	e.gameOver = false
	return e.State()
}

// Step decodes and applies an action. An out-of-range block index or an
// invalid placement terminates the episode with the fixed invalid-action
// penalty; it is a contract violation, not a recoverable condition.
func (e *Env) Step(action int) (StepResult, error) {
	if e.gameOver {
		return StepResult{}, ErrEpisodeOver
	}

	row, col, blockIdx := DecodeAction(action, e.cfg.GridSize, e.cfg.MaxBlocks)
	if action < 0 || blockIdx >= len(e.blocks) || e.blocks[blockIdx] == nil ||
		!e.CanPlace(e.blocks[blockIdx], row, col) {
		e.gameOver = true
		e.logger.Debug().
			Int("action", action).
			Int("block", blockIdx).
			Msg("Invalid action, terminating episode")
		return StepResult{
			State:  e.State(),
			Reward: e.cfg.Reward.InvalidPenalty,
			Done:   true,
			Info:   StepInfo{Score: e.score, Moves: e.moves, Invalid: true},
		}, nil
	}

	shape := e.blocks[blockIdx]
	placed := e.place(shape, row, col)
	e.blocks[blockIdx] = nil
	e.moves++

	clearedRows, clearedCols := e.grid.ClearCompleted()
	lines := len(clearedRows) + len(clearedCols)
	if lines > 0 {
		e.score += lines * 100 * (1 + lines)
		e.movesSinceClear = 0
	} else {
		e.movesSinceClear++
	}

	if e.poolEmpty() {
		e.blocks = DrawShapes(e.rng, e.cfg.MaxBlocks)
	}

	e.gameOver = len(e.ValidActions()) == 0
	reward := computeReward(e.cfg.Reward, e.grid, placed, lines, e.gameOver)

	return StepResult{
		State:  e.State(),
		Reward: reward,
		Done:   e.gameOver,
		Info: StepInfo{
			LinesCleared: lines,
			CellsPlaced:  placed,
			Score:        e.score,
			Moves:        e.moves,
		},
	}, nil
}

// ValidActions enumerates every encoded action whose block fits entirely
// in bounds over unoccupied cells. An empty result defines game over.
func (e *Env) ValidActions() []int {
	var actions []int
	n := e.cfg.GridSize
	for blockIdx, shape := range e.blocks {
		if shape == nil {
			continue
		}
		for row := 0; row <= n-shape.Rows; row++ {
			for col := 0; col <= n-shape.Cols; col++ {
				if e.CanPlace(shape, row, col) {
					actions = append(actions, EncodeAction(row, col, blockIdx, n, e.cfg.MaxBlocks))
				}
			}
		}
	}
	return actions
}

// CanPlace reports whether every occupied cell of the shape lands in
// bounds on an unoccupied grid cell when anchored at (row, col).
func (e *Env) CanPlace(shape *Shape, row, col int) bool {
	for r := 0; r < shape.Rows; r++ {
		for c := 0; c < shape.Cols; c++ {
			if shape.Cells[r][c] && e.grid.Occupied(row+r, col+c) {
				return false
			}
		}
	}
	return true
}

// place marks the shape's cells occupied and returns how many were placed.
func (e *Env) place(shape *Shape, row, col int) int {
	placed := 0
	for r := 0; r < shape.Rows; r++ {
		for c := 0; c < shape.Cols; c++ {
			if shape.Cells[r][c] {
				e.grid.Set(row+r, col+c, true)
				placed++
			}
		}
	}
	return placed
}

// CompletedLinesIfPlaced returns how many rows and columns would complete
// if the action were applied, without mutating the grid. Returns -1 for
// actions that are not currently valid.
func (e *Env) CompletedLinesIfPlaced(action int) int {
	row, col, blockIdx := DecodeAction(action, e.cfg.GridSize, e.cfg.MaxBlocks)
	if action < 0 || blockIdx >= len(e.blocks) || e.blocks[blockIdx] == nil {
		return -1
	}
	shape := e.blocks[blockIdx]
	if !e.CanPlace(shape, row, col) {
		return -1
	}

	n := e.cfg.GridSize
	rowAdd := make(map[int]int)
	colAdd := make(map[int]int)
	for r := 0; r < shape.Rows; r++ {
		for c := 0; c < shape.Cols; c++ {
			if shape.Cells[r][c] {
				rowAdd[row+r]++
				colAdd[col+c]++
			}
		}
	}
	lines := 0
	for r, add := range rowAdd {
		if e.grid.RowFill(r)+add == n {
			lines++
		}
	}
	for c, add := range colAdd {
		if e.grid.ColFill(c)+add == n {
			lines++
		}
	}
	return lines
}

// Clone deep-copies the environment so searches can simulate forward
// without touching the live game. The clone gets its own RNG seeded from
// the parent stream; the parent's stream position advances by one draw.
func (e *Env) Clone() *Env {
	blocks := make([]*Shape, len(e.blocks))
	copy(blocks, e.blocks) // shapes are immutable, sharing is safe
	return &Env{
		cfg:             e.cfg,
		grid:            e.grid.Clone(),
		blocks:          blocks,
		score:           e.score,
		moves:           e.moves,
		movesSinceClear: e.movesSinceClear,
		level:           e.level,
		gameOver:        e.gameOver,
		rng:             rand.New(rand.NewSource(e.rng.Int63())),
		logger:          e.logger,
	}
}

func (e *Env) poolEmpty() bool {
	for _, s := range e.blocks {
		if s != nil {
			return false
		}
	}
	return true
}

// SetBlocks replaces the current block pool. Used by scripted evaluation
// and tests; normal play replenishes through the RNG draw.
func (e *Env) SetBlocks(blocks []*Shape) {
	e.blocks = make([]*Shape, len(blocks))
	copy(e.blocks, blocks)
	e.gameOver = len(e.ValidActions()) == 0
}

// Grid exposes the live grid for read-only inspection.
func (e *Env) Grid() *Grid { return e.grid }

// Blocks exposes the current block pool; nil entries are used slots.
func (e *Env) Blocks() []*Shape { return e.blocks }

func (e *Env) Score() int        { return e.score }
func (e *Env) Moves() int        { return e.moves }
func (e *Env) GameOver() bool    { return e.gameOver }
func (e *Env) Config() Config    { return e.cfg }
func (e *Env) Level() int        { return e.level }
func (e *Env) SetLevel(l int)    { e.level = l }

// SetRewardConfig swaps the reward weights mid-run. Used by curriculum
// stages to anneal shaping terms; scoring is unaffected.
func (e *Env) SetRewardConfig(rc RewardConfig) { e.cfg.Reward = rc }
