package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/blockenv"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/neural"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/replay"
)

// Reinforce learns a stochastic policy directly: it stores one episode's
// trajectory and applies a return-weighted log-likelihood update with an
// entropy bonus at episode end.
type Reinforce struct {
	opts       Options
	actionSize int
	policy     *neural.Network

	trajectory []trajectoryStep

	episodes   int
	trainSteps int
	lastLoss   float64
	bestScore  int

	rng    *rand.Rand
	logger zerolog.Logger
}

type trajectoryStep struct {
	state  []float64
	action int
	reward float64
}

// NewReinforce builds a policy-gradient agent.
func NewReinforce(stateSize, actionSize int, opts Options, rng *rand.Rand, logger zerolog.Logger) *Reinforce {
	sizes := append(append([]int{stateSize}, opts.Hidden...), actionSize)
	netCfg := neural.Config{
		LearningRate: opts.LearningRate,
		Momentum:     opts.Momentum,
		GradClip:     opts.GradClip,
	}
	return &Reinforce{
		opts:       opts,
		actionSize: actionSize,
		policy:     neural.New(sizes, netCfg, rng),
		rng:        rng,
		logger:     logger.With().Str("component", "reinforce_agent").Logger(),
	}
}

// SelectAction samples from the policy restricted to the valid actions.
// Probability mass is renormalized over the valid subset, so an invalid
// action can never be emitted; if every valid probability underflows to
// zero the draw degrades to uniform over the valid set.
func (r *Reinforce) SelectAction(ctx context.Context, env *blockenv.Env) (int, error) {
	valid := env.ValidActions()
	if len(valid) == 0 {
		return 0, ErrNoValidActions
	}

	probs := r.policy.Policy(env.State())
	total := 0.0
	for _, a := range valid {
		total += probs[a]
	}
	if total <= 0 || math.IsNaN(total) {
		return valid[r.rng.Intn(len(valid))], nil
	}

	target := r.rng.Float64() * total
	acc := 0.0
	for _, a := range valid {
		acc += probs[a]
		if target < acc {
			return a, nil
		}
	}
	return valid[len(valid)-1], nil
}

// Remember appends the transition to the running episode trajectory. The
// stored state is copied; the caller keeps ownership of its slice.
func (r *Reinforce) Remember(exp replay.Experience) {
	state := make([]float64, len(exp.State))
	copy(state, exp.State)
	r.trajectory = append(r.trajectory, trajectoryStep{
		state:  state,
		action: exp.Action,
		reward: exp.Reward,
	})
}

// Train is a no-op between steps; REINFORCE updates at episode end.
func (r *Reinforce) Train() error { return nil }

// EndEpisode computes discounted normalized returns for the stored
// trajectory and applies one policy-gradient step, then discards the
// trajectory. Numerical failures skip the update and keep the policy
// intact.
func (r *Reinforce) EndEpisode(summary EpisodeSummary) {
	r.episodes++
	if summary.Score > r.bestScore {
		r.bestScore = summary.Score
	}
	if len(r.trajectory) == 0 {
		return
	}
	defer func() { r.trajectory = r.trajectory[:0] }()

	returns := discountedReturns(r.trajectory, r.opts.Gamma)
	normalizeReturns(returns)

	states := make([][]float64, len(r.trajectory))
	actions := make([]int, len(r.trajectory))
	for i, step := range r.trajectory {
		states[i] = step.state
		actions[i] = step.action
	}

	loss, err := r.policy.TrainPolicy(states, actions, returns, r.opts.EntropyCoef)
	if err != nil {
		if errors.Is(err, neural.ErrNonFinite) {
			r.logger.Warn().
				Int("episode", r.episodes).
				Msg("Non-finite policy update skipped")
			return
		}
		r.logger.Error().
			Err(err).
			Int("episode", r.episodes).
			Msg("Policy update failed")
		return
	}
	r.lastLoss = loss
	r.trainSteps++
}

// discountedReturns computes the backward cumulative discounted sum of
// rewards.
func discountedReturns(traj []trajectoryStep, gamma float64) []float64 {
	returns := make([]float64, len(traj))
	running := 0.0
	for i := len(traj) - 1; i >= 0; i-- {
		running = traj[i].reward + gamma*running
		returns[i] = running
	}
	return returns
}

// normalizeReturns shifts to zero mean and scales to unit variance in
// place. Degenerate variance leaves the centered values as they are.
func normalizeReturns(returns []float64) {
	if len(returns) == 0 {
		return
	}
	mean := 0.0
	for _, v := range returns {
		mean += v
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, v := range returns {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(returns))

	std := math.Sqrt(variance)
	for i := range returns {
		returns[i] -= mean
		if std > 1e-8 {
			returns[i] /= std
		}
	}
}

// Stats returns the agent's counters.
func (r *Reinforce) Stats() Stats {
	return Stats{
		Algorithm:     AlgorithmReinforce,
		Episodes:      r.episodes,
		TrainingSteps: r.trainSteps,
		LastLoss:      r.lastLoss,
		BestScore:     r.bestScore,
	}
}

type reinforceSnapshot struct {
	Weights      json.RawMessage `json:"weights"`
	Episode      *int            `json:"episode,omitempty"`
	TrainingStep *int            `json:"trainingStep,omitempty"`
	BestScore    *int            `json:"bestScore,omitempty"`
}

// Snapshot serializes the policy network and progress counters.
func (r *Reinforce) Snapshot() ([]byte, error) {
	weights, err := r.policy.MarshalWeights()
	if err != nil {
		return nil, fmt.Errorf("serializing policy network: %w", err)
	}
	return json.Marshal(reinforceSnapshot{
		Weights:      weights,
		Episode:      &r.episodes,
		TrainingStep: &r.trainSteps,
		BestScore:    &r.bestScore,
	})
}

// Restore loads a snapshot, defaulting any missing optional fields.
func (r *Reinforce) Restore(blob []byte) error {
	var snap reinforceSnapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return fmt.Errorf("decoding agent snapshot: %w", err)
	}
	if len(snap.Weights) == 0 {
		return errors.New("agent snapshot has no network weights")
	}
	if err := r.policy.UnmarshalWeights(snap.Weights); err != nil {
		return err
	}
	if snap.Episode != nil {
		r.episodes = *snap.Episode
	}
	if snap.TrainingStep != nil {
		r.trainSteps = *snap.TrainingStep
	}
	if snap.BestScore != nil {
		r.bestScore = *snap.BestScore
	}
	return nil
}

// Close drops any partial trajectory.
func (r *Reinforce) Close() error {
	r.trajectory = nil
	return nil
}
