package agent

import (
	"context"
	"math"
	"math/rand"
	"runtime"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/blockenv"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/replay"
)

// mctsNode is one search-tree node. The tree lives in a flat arena and all
// links are indices, so there are no parent/child pointer cycles to
// manage.
type mctsNode struct {
	parent   int32
	action   int // action that led from parent to this node
	children []int32
	untried  []int
	visits   int
	value    float64
	terminal bool
}

// MCTS decides each move with a fresh Monte Carlo tree search over cloned
// environments: UCB1 selection, single-child expansion, bounded rollout,
// and backpropagation, with the final pick being the most-visited root
// child.
type MCTS struct {
	opts      Options
	episodes  int
	bestScore int
	rng       *rand.Rand
	logger    zerolog.Logger
}

// NewMCTS builds a tree-search agent. It holds no learned state.
func NewMCTS(opts Options, rng *rand.Rand, logger zerolog.Logger) *MCTS {
	return &MCTS{
		opts:   opts,
		rng:    rng,
		logger: logger.With().Str("component", "mcts_agent").Logger(),
	}
}

// SelectAction runs the simulation budget and returns the root child with
// the most visits. Robust-child selection avoids overfitting to a single
// lucky rollout. The context is checked at yield points so long searches
// stay cancellable.
func (m *MCTS) SelectAction(ctx context.Context, env *blockenv.Env) (int, error) {
	rootValid := env.ValidActions()
	if len(rootValid) == 0 {
		return 0, ErrNoValidActions
	}
	if len(rootValid) == 1 {
		return rootValid[0], nil
	}

	arena := make([]mctsNode, 1, m.opts.Simulations+1)
	arena[0] = mctsNode{parent: -1, untried: append([]int(nil), rootValid...)}

	yield := m.opts.YieldInterval
	if yield <= 0 {
		yield = 25
	}

	for sim := 0; sim < m.opts.Simulations; sim++ {
		if sim%yield == 0 && sim > 0 {
			select {
			case <-ctx.Done():
				return m.robustChild(arena), nil
			default:
			}
			runtime.Gosched()
			if m.dominated(arena, m.opts.Simulations-sim) {
				break
			}
		}
		m.simulate(&arena, env)
	}

	return m.robustChild(arena), nil
}

// simulate runs one selection-expansion-rollout-backpropagation pass.
func (m *MCTS) simulate(arena *[]mctsNode, root *blockenv.Env) {
	env := root.Clone()
	node := int32(0)
	ret := 0.0
	depth := 0

	// Selection: descend through fully expanded nodes via UCB1
	for len((*arena)[node].untried) == 0 && len((*arena)[node].children) > 0 && depth < m.opts.MaxDepth {
		node = m.selectChild(*arena, node)
		res, err := env.Step((*arena)[node].action)
		if err != nil {
			break
		}
		ret += res.Reward
		depth++
		if res.Done {
			m.backpropagate(*arena, node, ret)
			return
		}
	}

	// Expansion: attach one child for an untried action
	if n := &(*arena)[node]; len(n.untried) > 0 {
		pick := m.rng.Intn(len(n.untried))
		action := n.untried[pick]
		n.untried[pick] = n.untried[len(n.untried)-1]
		n.untried = n.untried[:len(n.untried)-1]

		res, err := env.Step(action)
		if err != nil {
			return
		}
		ret += res.Reward

		child := mctsNode{parent: node, action: action, terminal: res.Done}
		if !res.Done {
			child.untried = env.ValidActions()
		}
		*arena = append(*arena, child)
		childIdx := int32(len(*arena) - 1)
		(*arena)[node].children = append((*arena)[node].children, childIdx)
		node = childIdx

		if !res.Done {
			ret += m.rollout(env)
		}
	}

	m.backpropagate(*arena, node, ret)
}

// selectChild applies UCB1 over a node's children.
func (m *MCTS) selectChild(arena []mctsNode, node int32) int32 {
	parentVisits := arena[node].visits
	logN := math.Log(float64(parentVisits + 1))
	best := arena[node].children[0]
	bestScore := math.Inf(-1)
	for _, c := range arena[node].children {
		child := &arena[c]
		if child.visits == 0 {
			return c
		}
		exploit := child.value / float64(child.visits)
		explore := m.opts.Exploration * math.Sqrt(logN/float64(child.visits))
		if s := exploit + explore; s > bestScore {
			best, bestScore = c, s
		}
	}
	return best
}

// rollout plays up to RolloutDepth further steps. Small action sets use
// the cheap line-completion heuristic; large ones use a uniform random
// policy where the heuristic sweep would dominate the simulation cost.
func (m *MCTS) rollout(env *blockenv.Env) float64 {
	ret := 0.0
	for step := 0; step < m.opts.RolloutDepth; step++ {
		valid := env.ValidActions()
		if len(valid) == 0 {
			break
		}
		var action int
		if len(valid) <= m.opts.HeuristicRollout {
			if a, ok := bestLineCompletion(env, valid); ok {
				action = a
			} else {
				action = valid[m.rng.Intn(len(valid))]
			}
		} else {
			action = valid[m.rng.Intn(len(valid))]
		}
		res, err := env.Step(action)
		if err != nil {
			break
		}
		ret += res.Reward
		if res.Done {
			break
		}
	}
	return ret
}

// backpropagate adds the return to every node on the path to the root.
func (m *MCTS) backpropagate(arena []mctsNode, node int32, ret float64) {
	for node >= 0 {
		arena[node].visits++
		arena[node].value += ret
		node = arena[node].parent
	}
}

// robustChild returns the root child with the highest visit count.
func (m *MCTS) robustChild(arena []mctsNode) int {
	children := arena[0].children
	if len(children) == 0 {
		// Budget exhausted before any expansion; fall back to an
		// unexpanded root action.
		return arena[0].untried[0]
	}
	best := children[0]
	for _, c := range children[1:] {
		if arena[c].visits > arena[best].visits {
			best = c
		}
	}
	return arena[best].action
}

// dominated reports whether the leading root child can no longer be
// overtaken within the remaining simulation budget, allowing an early
// stop.
func (m *MCTS) dominated(arena []mctsNode, remaining int) bool {
	children := arena[0].children
	if len(children) < 2 {
		return false
	}
	best, second := 0, 0
	for _, c := range children {
		v := arena[c].visits
		if v > best {
			best, second = v, best
		} else if v > second {
			second = v
		}
	}
	return best-second > remaining
}

// Remember is a no-op; tree search does not learn from transitions.
func (m *MCTS) Remember(replay.Experience) {}

// Train is a no-op.
func (m *MCTS) Train() error { return nil }

// EndEpisode tracks aggregate results only.
func (m *MCTS) EndEpisode(summary EpisodeSummary) {
	m.episodes++
	if summary.Score > m.bestScore {
		m.bestScore = summary.Score
	}
}

// Stats returns the episode counters.
func (m *MCTS) Stats() Stats {
	return Stats{
		Algorithm: AlgorithmMCTS,
		Episodes:  m.episodes,
		BestScore: m.bestScore,
	}
}

// Snapshot has nothing to persist for a stateless searcher.
func (m *MCTS) Snapshot() ([]byte, error) { return nil, nil }

// Restore is a no-op.
func (m *MCTS) Restore([]byte) error { return nil }

// Close is a no-op.
func (m *MCTS) Close() error { return nil }
