package agent

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/blockenv"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/replay"
)

// HeuristicWeights are the hand-tuned term weights for heuristic scoring.
type HeuristicWeights struct {
	LineCompletion float64
	EdgeBonus      float64
	CornerBonus    float64
	Adjacency      float64
	Isolation      float64
	NearComplete   float64
	LookaheadDecay float64
}

// DefaultHeuristicWeights returns the standard weights.
func DefaultHeuristicWeights() HeuristicWeights {
	return HeuristicWeights{
		LineCompletion: 100.0,
		EdgeBonus:      2.0,
		CornerBonus:    3.0,
		Adjacency:      1.5,
		Isolation:      -4.0,
		NearComplete:   5.0,
		LookaheadDecay: 0.5,
	}
}

// Heuristic scores every valid action with hand-crafted spatial features
// plus bounded-depth lookahead over cloned environments. It holds no
// learned state; the same position always produces the same choice, with
// ties broken by first-seen order.
type Heuristic struct {
	opts      Options
	weights   HeuristicWeights
	episodes  int
	bestScore int
	logger    zerolog.Logger
}

// NewHeuristic builds the rule-based agent.
func NewHeuristic(opts Options, logger zerolog.Logger) *Heuristic {
	return &Heuristic{
		opts:    opts,
		weights: DefaultHeuristicWeights(),
		logger:  logger.With().Str("component", "heuristic_agent").Logger(),
	}
}

// SelectAction returns the valid action with the maximum heuristic score.
func (h *Heuristic) SelectAction(ctx context.Context, env *blockenv.Env) (int, error) {
	valid := env.ValidActions()
	if len(valid) == 0 {
		return 0, ErrNoValidActions
	}

	best := valid[0]
	bestScore := math.Inf(-1)
	for _, a := range valid {
		if s := h.score(env, a, h.opts.LookaheadDepth); s > bestScore {
			best, bestScore = a, s
		}
	}
	return best, nil
}

// score evaluates one action: immediate line completions, placement
// position quality, near-completion opportunities after the hypothetical
// placement, and discounted recursive lookahead.
func (h *Heuristic) score(env *blockenv.Env, action, depth int) float64 {
	lines := env.CompletedLinesIfPlaced(action)
	if lines < 0 {
		return math.Inf(-1)
	}

	score := h.weights.LineCompletion * float64(lines)
	score += h.positionQuality(env, action)

	sim := env.Clone()
	res, err := sim.Step(action)
	if err != nil || res.Info.Invalid {
		return math.Inf(-1)
	}
	score += h.weights.NearComplete * float64(nearCompleteCount(sim.Grid()))

	if depth > 0 && !res.Done {
		next := sim.ValidActions()
		if len(next) > h.opts.LookaheadBreadth {
			next = next[:h.opts.LookaheadBreadth]
		}
		bestNext := math.Inf(-1)
		for _, na := range next {
			if s := h.score(sim, na, depth-1); s > bestNext {
				bestNext = s
			}
		}
		if !math.IsInf(bestNext, -1) {
			score += h.weights.LookaheadDecay * bestNext
		}
	}
	return score
}

// positionQuality scores where the block lands: edges and corners are
// stable, touching existing blocks keeps the board compact, and floating
// placements fragment it.
func (h *Heuristic) positionQuality(env *blockenv.Env, action int) float64 {
	cfg := env.Config()
	row, col, blockIdx := blockenv.DecodeAction(action, cfg.GridSize, cfg.MaxBlocks)
	shape := env.Blocks()[blockIdx]
	grid := env.Grid()
	n := cfg.GridSize

	score := 0.0
	adjacent := 0
	for r := 0; r < shape.Rows; r++ {
		for c := 0; c < shape.Cols; c++ {
			if !shape.Cells[r][c] {
				continue
			}
			gr, gc := row+r, col+c
			onRowEdge := gr == 0 || gr == n-1
			onColEdge := gc == 0 || gc == n-1
			if onRowEdge && onColEdge {
				score += h.weights.CornerBonus
			} else if onRowEdge || onColEdge {
				score += h.weights.EdgeBonus
			}
			for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				nr, nc := gr+d[0], gc+d[1]
				if grid.InBounds(nr, nc) && grid.Occupied(nr, nc) {
					adjacent++
				}
			}
		}
	}
	score += h.weights.Adjacency * float64(adjacent)
	if adjacent == 0 && grid.CountFilled() > 0 {
		score += h.weights.Isolation
	}
	return score
}

// nearCompleteCount counts rows and columns at least three-quarters full
// but not complete.
func nearCompleteCount(g *blockenv.Grid) int {
	count := 0
	for i := 0; i < g.N; i++ {
		if rf := g.RowFill(i); rf < g.N && rf*4 >= g.N*3 {
			count++
		}
		if cf := g.ColFill(i); cf < g.N && cf*4 >= g.N*3 {
			count++
		}
	}
	return count
}

// Remember is a no-op; the heuristic does not learn.
func (h *Heuristic) Remember(replay.Experience) {}

// Train is a no-op.
func (h *Heuristic) Train() error { return nil }

// EndEpisode tracks aggregate results only.
func (h *Heuristic) EndEpisode(summary EpisodeSummary) {
	h.episodes++
	if summary.Score > h.bestScore {
		h.bestScore = summary.Score
	}
}

// Stats returns the episode counters.
func (h *Heuristic) Stats() Stats {
	return Stats{
		Algorithm: AlgorithmHeuristic,
		Episodes:  h.episodes,
		BestScore: h.bestScore,
	}
}

// Snapshot has nothing to persist.
func (h *Heuristic) Snapshot() ([]byte, error) { return nil, nil }

// Restore is a no-op.
func (h *Heuristic) Restore([]byte) error { return nil }

// Close is a no-op.
func (h *Heuristic) Close() error { return nil }
