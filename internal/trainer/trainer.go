// Package trainer runs the episode loop: it drives an agent through the
// environment, feeds transitions back for learning, advances the
// curriculum, and checkpoints progress.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/agent"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/blockenv"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/checkpoint"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/curriculum"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/neural"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/replay"
)

// Config holds training loop settings.
type Config struct {
	Episodes           int
	MaxStepsPerEpisode int
	LogInterval        int
	CheckpointInterval int
}

// DefaultConfig returns the standard training loop settings.
func DefaultConfig() Config {
	return Config{
		Episodes:           1000,
		MaxStepsPerEpisode: 500,
		LogInterval:        10,
		CheckpointInterval: 100,
	}
}

// Stats is a snapshot of training progress.
type Stats struct {
	RunID       string
	Episodes    int
	TotalSteps  int
	TotalLines  int
	BestScore   int
	LastScore   int
	MeanScore   float64
	Stage       string
	TrainSkips  int
	Checkpoints int
}

// epsilonTuner is implemented by agents whose exploration schedule the
// curriculum can adjust.
type epsilonTuner interface {
	SetEpsilonBounds(min, decay float64)
}

// Trainer owns one training run over a single environment and agent.
type Trainer struct {
	cfg    Config
	env    *blockenv.Env
	ag     agent.Agent
	currc  *curriculum.Machine // nil disables curriculum
	store  checkpoint.Store
	logger zerolog.Logger

	stopped atomic.Bool

	mu         sync.Mutex
	stats      Stats
	totalScore int
	lastLines  int
	baseReward blockenv.RewardConfig
}

// New creates a trainer with a fresh run ID. The curriculum machine may
// be nil; the store must not be (use checkpoint.NullStore to disable).
func New(cfg Config, env *blockenv.Env, ag agent.Agent, currc *curriculum.Machine, store checkpoint.Store, logger zerolog.Logger) *Trainer {
	runID := uuid.New().String()
	return &Trainer{
		cfg:        cfg,
		env:        env,
		ag:         ag,
		currc:      currc,
		store:      store,
		logger:     logger.With().Str("component", "trainer").Str("run_id", runID).Logger(),
		stats:      Stats{RunID: runID},
		baseReward: env.Config().Reward,
	}
}

// Stop requests a halt after the current episode. Safe to call from any
// goroutine.
func (t *Trainer) Stop() {
	t.stopped.Store(true)
}

// Stats returns a snapshot of training counters.
func (t *Trainer) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Run executes the configured number of episodes. It returns early
// without error when the context is cancelled or Stop is called; only
// unrecoverable agent or environment failures return an error.
func (t *Trainer) Run(ctx context.Context) (Stats, error) {
	t.logger.Info().
		Int("episodes", t.cfg.Episodes).
		Int("max_steps", t.cfg.MaxStepsPerEpisode).
		Msg("Training run started")

	for ep := 0; ep < t.cfg.Episodes; ep++ {
		if t.stopped.Load() || ctx.Err() != nil {
			t.logger.Info().Int("episode", ep).Msg("Training run stopped")
			return t.Stats(), nil
		}

		if err := t.runEpisode(ctx, ep); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return t.Stats(), nil
			}
			return t.Stats(), fmt.Errorf("episode %d failed: %w", ep, err)
		}

		if err := t.afterEpisode(ep); err != nil {
			return t.Stats(), err
		}
	}

	if err := t.saveCheckpoint("latest"); err != nil {
		t.logger.Warn().Err(err).Msg("Failed to save final checkpoint")
	}
	t.logger.Info().Int("episodes", t.cfg.Episodes).Msg("Training run complete")
	return t.Stats(), nil
}

func (t *Trainer) runEpisode(ctx context.Context, episode int) error {
	state := t.env.Reset()
	totalReward := 0.0
	lines := 0
	steps := 0

	for steps < t.cfg.MaxStepsPerEpisode && !t.env.GameOver() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		action, err := t.ag.SelectAction(ctx, t.env)
		if err != nil {
			if errors.Is(err, agent.ErrNoValidActions) {
				break
			}
			return fmt.Errorf("action selection: %w", err)
		}

		res, err := t.env.Step(action)
		if err != nil {
			if errors.Is(err, blockenv.ErrEpisodeOver) {
				break
			}
			return fmt.Errorf("environment step: %w", err)
		}

		t.ag.Remember(replay.Experience{
			State:     state,
			Action:    action,
			Reward:    res.Reward,
			NextState: res.State,
			Done:      res.Done,
		})

		if err := t.ag.Train(); err != nil {
			// A non-finite update is dropped by the agent with its
			// parameters intact; skip the step and keep going.
			if errors.Is(err, neural.ErrNonFinite) {
				t.mu.Lock()
				t.stats.TrainSkips++
				t.mu.Unlock()
				t.logger.Warn().Err(err).Int("episode", episode).Msg("Skipped unstable training step")
			} else {
				return fmt.Errorf("training step: %w", err)
			}
		}

		state = res.State
		totalReward += res.Reward
		lines += res.Info.LinesCleared
		steps++
	}

	score := t.env.Score()
	t.ag.EndEpisode(agent.EpisodeSummary{
		Episode:      episode,
		Score:        score,
		Steps:        steps,
		LinesCleared: lines,
		TotalReward:  totalReward,
	})

	t.mu.Lock()
	t.stats.Episodes++
	t.stats.TotalSteps += steps
	t.stats.TotalLines += lines
	t.stats.LastScore = score
	if score > t.stats.BestScore {
		t.stats.BestScore = score
	}
	t.totalScore += score
	t.lastLines = lines
	t.stats.MeanScore = float64(t.totalScore) / float64(t.stats.Episodes)
	best := score >= t.stats.BestScore
	t.mu.Unlock()

	if t.cfg.LogInterval > 0 && (episode+1)%t.cfg.LogInterval == 0 {
		t.logger.Info().
			Int("episode", episode).
			Int("score", score).
			Int("steps", steps).
			Int("lines", lines).
			Float64("reward", totalReward).
			Msg("Episode finished")
	}

	if best && score > 0 {
		if err := t.saveCheckpoint("best"); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to save best checkpoint")
		}
	}
	return nil
}

func (t *Trainer) afterEpisode(episode int) error {
	if t.currc != nil {
		t.mu.Lock()
		score, lines := t.stats.LastScore, t.lastLines
		t.mu.Unlock()
		if t.currc.Observe(episode, score, lines) {
			adj := t.currc.Adjustment()
			if tuner, ok := t.ag.(epsilonTuner); ok {
				tuner.SetEpsilonBounds(adj.EpsilonMin, adj.EpsilonDecay)
			}
			t.env.SetLevel(t.currc.Level())
			t.env.SetRewardConfig(scaleShaping(t.baseReward, adj.ShapingScale))
		}
		t.mu.Lock()
		t.stats.Stage = t.currc.Stage().String()
		t.mu.Unlock()
	}

	if t.cfg.CheckpointInterval > 0 && (episode+1)%t.cfg.CheckpointInterval == 0 {
		if err := t.saveCheckpoint("latest"); err != nil {
			t.logger.Warn().Err(err).Int("episode", episode).Msg("Failed to save checkpoint")
		}
	}
	return nil
}

// scaleShaping anneals the auxiliary reward terms while leaving line
// rewards and penalties for invalid or terminal moves intact.
func scaleShaping(rc blockenv.RewardConfig, scale float64) blockenv.RewardConfig {
	rc.PlacementPerCell *= scale
	rc.ConnectivityWeight *= scale
	rc.NearCompleteBonus *= scale
	rc.FragmentPenalty *= scale
	rc.DeadCellPenalty *= scale
	rc.SurvivalBonus *= scale
	return rc
}

func (t *Trainer) saveCheckpoint(name string) error {
	blob, err := t.ag.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if blob == nil {
		return nil
	}
	if err := t.store.Save(name, blob); err != nil {
		return err
	}
	t.mu.Lock()
	t.stats.Checkpoints++
	t.mu.Unlock()
	return nil
}

// Resume restores the agent from the named checkpoint if it exists;
// a missing checkpoint is not an error.
func (t *Trainer) Resume(name string) error {
	blob, err := t.store.Load(name)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := t.ag.Restore(blob); err != nil {
		return fmt.Errorf("restore checkpoint %s: %w", name, err)
	}
	t.logger.Info().Str("name", name).Msg("Resumed from checkpoint")
	return nil
}
