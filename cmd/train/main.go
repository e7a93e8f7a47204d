package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/agent"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/blockenv"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/checkpoint"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/config"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/curriculum"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/monitoring"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/trainer"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "Path to config file")
	algorithm := flag.String("algorithm", "", "Agent algorithm (empty to use config default)")
	episodes := flag.Int("episodes", -1, "Number of training episodes (-1 to use config default)")
	seed := flag.Int64("seed", 0, "Environment RNG seed (0 for time-based)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error) (empty to use config default)")
	resume := flag.Bool("resume", false, "Resume from the latest checkpoint")
	flag.Parse()

	// Initialize configuration
	if err := config.Init(*configPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize config")
	}

	cfg := config.Get()

	// Use config defaults if not overridden by flags
	if *algorithm == "" {
		*algorithm = cfg.Agent.Algorithm
	}
	if *episodes == -1 {
		*episodes = cfg.Training.Episodes
	}
	if *seed == 0 {
		*seed = cfg.Env.Seed
	}
	if *logLevel == "" {
		*logLevel = cfg.Logging.Level
	}

	// Setup logging
	setupLogging(*logLevel, cfg.Logging.Format)

	log.Info().
		Str("algorithm", *algorithm).
		Int("episodes", *episodes).
		Int("grid_size", cfg.Env.GridSize).
		Msg("Starting training")

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	env := buildEnv(cfg, rand.New(rand.NewSource(*seed)))

	ag, err := agent.New(*algorithm,
		blockenv.StateSize(cfg.Env.GridSize, cfg.Env.MaxBlocks),
		blockenv.ActionSpaceSize(cfg.Env.GridSize, cfg.Env.MaxBlocks),
		buildAgentOptions(cfg),
		rand.New(rand.NewSource(*seed+1)), log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create agent")
	}
	defer ag.Close()

	store, err := checkpoint.NewStore(checkpoint.Config{
		Type:    checkpoint.StoreType(cfg.Checkpoint.Type),
		BaseDir: cfg.Checkpoint.BaseDir,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create checkpoint store")
	}
	defer store.Close()

	var machine *curriculum.Machine
	if cfg.Curriculum.Enabled {
		machine = curriculum.New(curriculum.Config{
			Window:       cfg.Curriculum.Window,
			AdvanceScore: cfg.Curriculum.AdvanceScore,
		}, log.Logger)
	}

	tr := trainer.New(trainer.Config{
		Episodes:           *episodes,
		MaxStepsPerEpisode: cfg.Training.MaxStepsPerEpisode,
		LogInterval:        cfg.Training.LogInterval,
		CheckpointInterval: cfg.Training.CheckpointInterval,
	}, env, ag, machine, store, log.Logger)

	if *resume {
		if err := tr.Resume("latest"); err != nil {
			log.Fatal().Err(err).Msg("Failed to resume from checkpoint")
		}
	}

	monitor := monitoring.NewProgressMonitor(func() (int, int, float64) {
		s := tr.Stats()
		return s.Episodes, s.BestScore, s.MeanScore
	}, 30*time.Second, log.Logger)
	monitor.Start()
	defer monitor.Stop()

	// Stop cleanly on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		tr.Stop()
		cancel()
	}()

	stats, err := tr.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Training failed")
	}

	log.Info().
		Str("run_id", stats.RunID).
		Int("episodes", stats.Episodes).
		Int("best_score", stats.BestScore).
		Float64("mean_score", stats.MeanScore).
		Int("total_lines", stats.TotalLines).
		Str("stage", stats.Stage).
		Msg("Training finished")
}

func buildEnv(cfg *config.Config, rng *rand.Rand) *blockenv.Env {
	envCfg := blockenv.Config{
		GridSize:  cfg.Env.GridSize,
		MaxBlocks: cfg.Env.MaxBlocks,
		Reward:    blockenv.DefaultRewardConfig(),
	}
	envCfg.Reward.InvalidPenalty = cfg.Rewards.InvalidPenalty
	envCfg.Reward.LineBase = cfg.Rewards.LineBase
	envCfg.Reward.PerLine = cfg.Rewards.PerLine
	envCfg.Reward.ComboWeight = cfg.Rewards.ComboWeight
	envCfg.Reward.NearCompleteThreshold = cfg.Rewards.NearCompleteThreshold
	envCfg.Reward.MinReward = cfg.Rewards.MinReward
	envCfg.Reward.MaxReward = cfg.Rewards.MaxReward
	return blockenv.New(envCfg, rng, log.Logger)
}

func buildAgentOptions(cfg *config.Config) agent.Options {
	opts := agent.DefaultOptions()
	opts.Hidden = cfg.Agent.Hidden
	opts.LearningRate = cfg.Agent.DQN.LearningRate
	opts.Gamma = cfg.Agent.DQN.Gamma
	opts.EpsilonStart = cfg.Agent.DQN.Epsilon
	opts.EpsilonMin = cfg.Agent.DQN.EpsilonMin
	opts.EpsilonDecay = cfg.Agent.DQN.EpsilonDecay
	opts.AdaptiveEpsilon = cfg.Agent.DQN.AdaptiveDecay
	if !cfg.Agent.DQN.GuidedExplore {
		opts.GuidedExploration = 0
	}
	opts.BatchSize = cfg.Agent.DQN.BatchSize
	opts.MemoryCapacity = cfg.Agent.DQN.BufferCapacity
	opts.TargetSyncInterval = cfg.Agent.DQN.TargetSync
	opts.SoftTau = cfg.Agent.DQN.SoftTau
	opts.Simulations = cfg.Agent.MCTS.Simulations
	opts.Exploration = cfg.Agent.MCTS.Exploration
	opts.RolloutDepth = cfg.Agent.MCTS.RolloutDepth
	opts.EntropyCoef = cfg.Agent.Reinforce.EntropyCoef
	opts.LookaheadDepth = cfg.Agent.Heuristic.LookaheadDepth
	opts.LookaheadBreadth = cfg.Agent.Heuristic.LookaheadBreadth
	return opts
}

func setupLogging(level, format string) {
	// Parse log level
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	if format == "json" || os.Getenv("APP_ENV") == "production" {
		// JSON output for production
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		// Pretty console output for development
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
}
