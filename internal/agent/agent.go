// Package agent implements the decision-making algorithms that play the
// block puzzle: value-based (DQN family), tree search (MCTS), policy
// gradient (REINFORCE), and a hand-crafted heuristic. All agents share one
// capability interface and one state/action encoding supplied by the
// environment.
package agent

import (
	"context"

	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/blockenv"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/replay"
)

// Agent is the capability surface shared by all algorithms. Algorithms
// without a learning phase implement Remember, Train, and EndEpisode as
// no-ops rather than being probed for optional methods.
type Agent interface {
	// SelectAction picks an action for the environment's current state.
	// Implementations only ever return actions valid at call time.
	SelectAction(ctx context.Context, env *blockenv.Env) (int, error)

	// Remember records a transition for later training.
	Remember(exp replay.Experience)

	// Train runs one training step if the algorithm learns online.
	Train() error

	// EndEpisode signals episode termination with its summary; episodic
	// learners update here.
	EndEpisode(summary EpisodeSummary)

	// Stats returns a snapshot of training counters.
	Stats() Stats

	// Snapshot serializes the agent for the checkpoint store; nil means
	// the algorithm has nothing to persist.
	Snapshot() ([]byte, error)

	// Restore loads a snapshot produced by Snapshot.
	Restore(blob []byte) error

	// Close releases held resources. Safe to call once after use.
	Close() error
}

// EpisodeSummary carries the end-of-episode result to the agent.
type EpisodeSummary struct {
	Episode      int
	Score        int
	Steps        int
	LinesCleared int
	TotalReward  float64
}

// Stats is a snapshot of an agent's training counters.
type Stats struct {
	Algorithm     string
	Episodes      int
	TrainingSteps int
	Epsilon       float64
	LastLoss      float64
	BestScore     int
}
