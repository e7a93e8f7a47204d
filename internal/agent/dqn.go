package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/blockenv"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/common"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/neural"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/replay"
)

// ErrNoValidActions is returned when an agent is asked to act on a
// terminal position.
var ErrNoValidActions = errors.New("no valid actions available")

// DQN is a value-based agent with an online and a periodically
// synchronized target network. Action selection is epsilon-greedy over the
// valid-action subset only; Q-values for invalid actions are never
// consulted.
type DQN struct {
	opts       Options
	stateSize  int
	actionSize int

	online *neural.Network
	target *neural.Network

	uniform     *replay.Buffer
	prioritized *replay.PrioritizedBuffer

	epsilon    float64
	trainMu    sync.Mutex
	trainSteps int
	episodes   int
	lastLoss   float64
	bestScore  int

	// rolling window of per-episode line clears for adaptive epsilon decay
	recentClears []int

	rewardHistory []float64
	lossHistory   []float64

	rng    *rand.Rand
	logger zerolog.Logger
}

// NewDQN builds a DQN (or Double-DQN) agent for the given state and action
// sizes. The network output width equals the action-space size exactly.
func NewDQN(stateSize, actionSize int, opts Options, rng *rand.Rand, logger zerolog.Logger) *DQN {
	sizes := append(append([]int{stateSize}, opts.Hidden...), actionSize)
	netCfg := neural.Config{
		LearningRate: opts.LearningRate,
		Momentum:     opts.Momentum,
		GradClip:     opts.GradClip,
		HuberDelta:   1.0,
	}
	online := neural.New(sizes, netCfg, rng)
	target := neural.New(sizes, netCfg, rng)
	target.CopyFrom(online)

	d := &DQN{
		opts:       opts,
		stateSize:  stateSize,
		actionSize: actionSize,
		online:     online,
		target:     target,
		epsilon:    opts.EpsilonStart,
		rng:        rng,
		logger:     logger.With().Str("component", "dqn_agent").Logger(),
	}
	if opts.Prioritized {
		d.prioritized = replay.NewPrioritizedBuffer(replay.DefaultPrioritizedConfig(opts.MemoryCapacity), logger)
	} else {
		d.uniform = replay.NewBuffer(opts.MemoryCapacity, logger)
	}
	return d
}

// SelectAction picks epsilon-greedily among the valid actions. During
// exploration a configurable fraction of picks is guided: each valid
// action's immediate line-completion count is simulated and the best one
// taken.
func (d *DQN) SelectAction(ctx context.Context, env *blockenv.Env) (int, error) {
	valid := env.ValidActions()
	if len(valid) == 0 {
		return 0, ErrNoValidActions
	}

	if d.rng.Float64() < d.epsilon {
		if d.opts.GuidedExploration > 0 && d.rng.Float64() < d.opts.GuidedExploration {
			if a, ok := bestLineCompletion(env, valid); ok {
				return a, nil
			}
		}
		return valid[d.rng.Intn(len(valid))], nil
	}

	state := env.State()
	q := d.online.Forward(state)
	best := valid[0]
	bestQ := q[best]
	for _, a := range valid[1:] {
		if q[a] > bestQ {
			best, bestQ = a, q[a]
		}
	}
	return best, nil
}

// bestLineCompletion returns the valid action completing the most lines,
// if any action completes at least one.
func bestLineCompletion(env *blockenv.Env, valid []int) (int, bool) {
	best, bestLines := 0, 0
	for _, a := range valid {
		if lines := env.CompletedLinesIfPlaced(a); lines > bestLines {
			best, bestLines = a, lines
		}
	}
	return best, bestLines > 0
}

// Remember stores a transition. The replay memory owns its own copy of the
// state buffers.
func (d *DQN) Remember(exp replay.Experience) {
	if d.prioritized != nil {
		d.prioritized.Push(exp)
	} else {
		d.uniform.Push(exp)
	}
}

func (d *DQN) memoryLen() int {
	if d.prioritized != nil {
		return d.prioritized.Len()
	}
	return d.uniform.Len()
}

// Train runs one batched gradient step. At most one step is in flight at a
// time; a concurrent call is dropped with a warning rather than queued.
// Training failures are logged and skipped, and the lock is released on
// every path.
func (d *DQN) Train() error {
	if !d.trainMu.TryLock() {
		d.logger.Warn().Msg("Training step already in flight, dropping call")
		return nil
	}
	defer d.trainMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Interface("panic", r).
				Int("training_step", d.trainSteps).
				Msg("Training step panicked, skipping")
		}
	}()

	if d.memoryLen() < d.opts.BatchSize {
		return nil
	}

	var (
		batch   []replay.Experience
		indices []int
		weights []float64
	)
	if d.prioritized != nil {
		batch, indices, weights = d.prioritized.Sample(d.opts.BatchSize, d.rng)
	} else {
		batch = d.uniform.Sample(d.opts.BatchSize, d.rng)
	}

	states := make([][]float64, len(batch))
	actions := make([]int, len(batch))
	targets := make([]float64, len(batch))
	for i, exp := range batch {
		states[i] = exp.State
		actions[i] = exp.Action
		targets[i] = d.targetValue(exp)
	}

	loss, tdErrors, err := d.online.TrainQ(states, actions, targets, weights)
	if err != nil {
		if errors.Is(err, neural.ErrNonFinite) {
			d.logger.Warn().
				Int("training_step", d.trainSteps).
				Msg("Non-finite training step skipped")
			return nil
		}
		return fmt.Errorf("dqn training step: %w", err)
	}

	if d.prioritized != nil {
		d.prioritized.UpdatePriorities(indices, tdErrors)
	}

	d.lastLoss = loss
	d.lossHistory = appendBounded(d.lossHistory, loss, historyLimit)
	d.trainSteps++
	d.decayEpsilon()
	d.syncTarget()
	return nil
}

// targetValue computes the bootstrapped target for one transition. A
// terminal transition's target is the reward exactly, with no bootstrap.
func (d *DQN) targetValue(exp replay.Experience) float64 {
	if exp.Done {
		return exp.Reward
	}
	if d.opts.DoubleDQN {
		// Online net picks the argmax, target net evaluates it
		onlineQ := d.online.Forward(exp.NextState)
		best := common.ArgMax(onlineQ)
		targetQ := d.target.Forward(exp.NextState)
		return exp.Reward + d.opts.Gamma*targetQ[best]
	}
	targetQ := d.target.Forward(exp.NextState)
	return exp.Reward + d.opts.Gamma*targetQ[common.ArgMax(targetQ)]
}

// decayEpsilon moves epsilon toward its floor. When the recent line-clear
// rate is high the decay accelerates; the agent is succeeding and needs
// less exploration.
func (d *DQN) decayEpsilon() {
	decay := d.opts.EpsilonDecay
	if d.opts.AdaptiveEpsilon && len(d.recentClears) >= 10 {
		clears := 0
		for _, c := range d.recentClears {
			clears += c
		}
		rate := float64(clears) / float64(len(d.recentClears))
		if rate > 1.0 {
			decay *= 0.999
		}
	}
	d.epsilon *= decay
	if d.epsilon < d.opts.EpsilonMin {
		d.epsilon = d.opts.EpsilonMin
	}
}

// syncTarget refreshes the target network: an exponential moving average
// each step when SoftTau is set, otherwise a hard copy every sync
// interval.
func (d *DQN) syncTarget() {
	if d.opts.SoftTau > 0 {
		d.target.SoftUpdate(d.online, d.opts.SoftTau)
		return
	}
	if d.opts.TargetSyncInterval > 0 && d.trainSteps%d.opts.TargetSyncInterval == 0 {
		d.target.CopyFrom(d.online)
		d.logger.Debug().Int("training_step", d.trainSteps).Msg("Target network synchronized")
	}
}

// EndEpisode records the episode result for stats and adaptive decay.
func (d *DQN) EndEpisode(summary EpisodeSummary) {
	d.episodes++
	if summary.Score > d.bestScore {
		d.bestScore = summary.Score
	}
	d.recentClears = appendBoundedInt(d.recentClears, summary.LinesCleared, 20)
	d.rewardHistory = appendBounded(d.rewardHistory, summary.TotalReward, historyLimit)
}

// Stats returns a snapshot of the agent's counters.
func (d *DQN) Stats() Stats {
	return Stats{
		Algorithm:     AlgorithmDQN,
		Episodes:      d.episodes,
		TrainingSteps: d.trainSteps,
		Epsilon:       d.epsilon,
		LastLoss:      d.lastLoss,
		BestScore:     d.bestScore,
	}
}

// dqnSnapshot is the persisted agent record. Optional fields use pointers
// so an old blob missing them falls back to defaults on load.
type dqnSnapshot struct {
	Weights       json.RawMessage `json:"weights"`
	Epsilon       *float64        `json:"epsilon,omitempty"`
	Episode       *int            `json:"episode,omitempty"`
	TrainingStep  *int            `json:"trainingStep,omitempty"`
	RewardHistory []float64       `json:"rewardHistory,omitempty"`
	LossHistory   []float64       `json:"lossHistory,omitempty"`
	BestScore     *int            `json:"bestScore,omitempty"`
}

// Snapshot serializes the online network plus training progress.
func (d *DQN) Snapshot() ([]byte, error) {
	weights, err := d.online.MarshalWeights()
	if err != nil {
		return nil, fmt.Errorf("serializing online network: %w", err)
	}
	snap := dqnSnapshot{
		Weights:       weights,
		Epsilon:       &d.epsilon,
		Episode:       &d.episodes,
		TrainingStep:  &d.trainSteps,
		RewardHistory: d.rewardHistory,
		LossHistory:   d.lossHistory,
		BestScore:     &d.bestScore,
	}
	return json.Marshal(snap)
}

// Restore loads a snapshot. Missing optional fields keep their configured
// defaults; only the network weights are mandatory.
func (d *DQN) Restore(blob []byte) error {
	var snap dqnSnapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return fmt.Errorf("decoding agent snapshot: %w", err)
	}
	if len(snap.Weights) == 0 {
		return errors.New("agent snapshot has no network weights")
	}
	if err := d.online.UnmarshalWeights(snap.Weights); err != nil {
		return err
	}
	d.target.CopyFrom(d.online)

	if snap.Epsilon != nil {
		d.epsilon = *snap.Epsilon
	}
	if snap.Episode != nil {
		d.episodes = *snap.Episode
	}
	if snap.TrainingStep != nil {
		d.trainSteps = *snap.TrainingStep
	}
	if snap.BestScore != nil {
		d.bestScore = *snap.BestScore
	}
	d.rewardHistory = snap.RewardHistory
	d.lossHistory = snap.LossHistory
	return nil
}

// Close releases the replay memory.
func (d *DQN) Close() error {
	if d.uniform != nil {
		d.uniform.Clear()
	}
	return nil
}

// Epsilon exposes the current exploration rate.
func (d *DQN) Epsilon() float64 { return d.epsilon }

// SetEpsilonBounds applies a curriculum adjustment to the epsilon
// schedule.
func (d *DQN) SetEpsilonBounds(min, decay float64) {
	d.opts.EpsilonMin = min
	d.opts.EpsilonDecay = decay
	if d.epsilon < min {
		d.epsilon = min
	}
}

const historyLimit = 200

func appendBounded(s []float64, v float64, limit int) []float64 {
	s = append(s, v)
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}

func appendBoundedInt(s []int, v int, limit int) []int {
	s = append(s, v)
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}
