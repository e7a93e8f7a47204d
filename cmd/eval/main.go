package main

import (
	"context"
	"errors"
	"flag"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/agent"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/blockenv"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/checkpoint"
	"github.com/mitchelldurbincs/BlockPuzzleRL/internal/config"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	algorithm := flag.String("algorithm", "", "Agent algorithm (empty to use config default)")
	episodes := flag.Int("episodes", 20, "Number of evaluation episodes")
	ckptName := flag.String("checkpoint", "best", "Checkpoint name to load (empty to skip)")
	seed := flag.Int64("seed", 0, "Environment RNG seed (0 for time-based)")
	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize config")
	}
	cfg := config.Get()

	if *algorithm == "" {
		*algorithm = cfg.Agent.Algorithm
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	envCfg := blockenv.Config{
		GridSize:  cfg.Env.GridSize,
		MaxBlocks: cfg.Env.MaxBlocks,
		Reward:    blockenv.DefaultRewardConfig(),
	}
	env := blockenv.New(envCfg, rand.New(rand.NewSource(*seed)), log.Logger)

	opts := agent.DefaultOptions()
	opts.Hidden = cfg.Agent.Hidden
	// Greedy evaluation: no exploration.
	opts.EpsilonStart = 0
	opts.EpsilonMin = 0
	opts.GuidedExploration = 0
	opts.Simulations = cfg.Agent.MCTS.Simulations

	ag, err := agent.New(*algorithm,
		blockenv.StateSize(envCfg.GridSize, envCfg.MaxBlocks),
		blockenv.ActionSpaceSize(envCfg.GridSize, envCfg.MaxBlocks),
		opts, rand.New(rand.NewSource(*seed+1)), log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create agent")
	}
	defer ag.Close()

	if *ckptName != "" {
		store, err := checkpoint.NewStore(checkpoint.Config{
			Type:    checkpoint.StoreType(cfg.Checkpoint.Type),
			BaseDir: cfg.Checkpoint.BaseDir,
		}, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open checkpoint store")
		}
		defer store.Close()

		blob, err := store.Load(*ckptName)
		switch {
		case err == nil:
			if err := ag.Restore(blob); err != nil {
				log.Fatal().Err(err).Str("name", *ckptName).Msg("Failed to restore checkpoint")
			}
			log.Info().Str("name", *ckptName).Msg("Loaded checkpoint")
		case errors.Is(err, checkpoint.ErrNotFound):
			log.Warn().Str("name", *ckptName).Msg("Checkpoint not found, evaluating untrained agent")
		default:
			log.Fatal().Err(err).Msg("Failed to load checkpoint")
		}
	}

	ctx := context.Background()
	totalScore, totalLines, totalSteps, best := 0, 0, 0, 0

	for ep := 0; ep < *episodes; ep++ {
		env.Reset()
		lines, steps := 0, 0
		for !env.GameOver() {
			action, err := ag.SelectAction(ctx, env)
			if err != nil {
				if errors.Is(err, agent.ErrNoValidActions) {
					break
				}
				log.Fatal().Err(err).Msg("Action selection failed")
			}
			res, err := env.Step(action)
			if err != nil {
				break
			}
			lines += res.Info.LinesCleared
			steps++
		}

		score := env.Score()
		totalScore += score
		totalLines += lines
		totalSteps += steps
		if score > best {
			best = score
		}

		log.Info().
			Int("episode", ep).
			Int("score", score).
			Int("lines", lines).
			Int("steps", steps).
			Msg("Evaluation episode finished")
	}

	n := float64(*episodes)
	log.Info().
		Str("algorithm", *algorithm).
		Int("episodes", *episodes).
		Float64("mean_score", float64(totalScore)/n).
		Float64("mean_lines", float64(totalLines)/n).
		Float64("mean_steps", float64(totalSteps)/n).
		Int("best_score", best).
		Msg("Evaluation complete")
}
