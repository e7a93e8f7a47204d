package agent

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"
)

// Algorithm identifiers accepted by New.
const (
	AlgorithmDQN       = "dqn"
	AlgorithmDoubleDQN = "double-dqn"
	AlgorithmMCTS      = "mcts"
	AlgorithmReinforce = "reinforce"
	AlgorithmHeuristic = "heuristic"
)

// ErrUnknownAlgorithm is returned for identifiers New does not recognize.
// This is a configuration error and fatal at construction time.
var ErrUnknownAlgorithm = errors.New("unknown algorithm")

// Options bundles the hyperparameters shared across algorithms. Fields an
// algorithm does not use are ignored by it.
type Options struct {
	// Network / optimization
	Hidden       []int
	LearningRate float64
	Momentum     float64
	GradClip     float64
	Gamma        float64

	// Epsilon-greedy schedule
	EpsilonStart      float64
	EpsilonMin        float64
	EpsilonDecay      float64
	AdaptiveEpsilon   bool
	GuidedExploration float64 // probability of guided (line-seeking) exploration

	// Replay
	BatchSize      int
	MemoryCapacity int
	Prioritized    bool

	// Target network
	TargetSyncInterval int
	SoftTau            float64 // >0 enables EMA target updates
	DoubleDQN          bool

	// MCTS
	Simulations        int
	Exploration        float64
	RolloutDepth       int
	MaxDepth           int
	YieldInterval      int
	HeuristicRollout   int // rollout uses the cheap heuristic when valid-action count is at most this

	// REINFORCE
	EntropyCoef float64

	// Heuristic
	LookaheadDepth   int
	LookaheadBreadth int
}

// DefaultOptions returns hyperparameters that train stably on the base
// 9x9 variant.
func DefaultOptions() Options {
	return Options{
		Hidden:             []int{128, 64},
		LearningRate:       0.001,
		Momentum:           0.9,
		GradClip:           1.0,
		Gamma:              0.95,
		EpsilonStart:       1.0,
		EpsilonMin:         0.05,
		EpsilonDecay:       0.995,
		AdaptiveEpsilon:    true,
		GuidedExploration:  0.5,
		BatchSize:          32,
		MemoryCapacity:     10000,
		Prioritized:        true,
		TargetSyncInterval: 100,
		SoftTau:            0,
		Simulations:        200,
		Exploration:        1.4,
		RolloutDepth:       6,
		MaxDepth:           12,
		YieldInterval:      25,
		HeuristicRollout:   40,
		EntropyCoef:        0.01,
		LookaheadDepth:     2,
		LookaheadBreadth:   5,
	}
}

// New constructs the agent for an algorithm identifier. Unknown
// identifiers fail immediately; they are never retried or defaulted.
func New(algorithm string, stateSize, actionSize int, opts Options, rng *rand.Rand, logger zerolog.Logger) (Agent, error) {
	switch algorithm {
	case AlgorithmDQN:
		return NewDQN(stateSize, actionSize, opts, rng, logger), nil
	case AlgorithmDoubleDQN:
		opts.DoubleDQN = true
		opts.SoftTau = 0.005
		return NewDQN(stateSize, actionSize, opts, rng, logger), nil
	case AlgorithmMCTS:
		return NewMCTS(opts, rng, logger), nil
	case AlgorithmReinforce:
		return NewReinforce(stateSize, actionSize, opts, rng, logger), nil
	case AlgorithmHeuristic:
		return NewHeuristic(opts, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}
}
