// Package curriculum drives progressive difficulty: an explicit stage
// machine advances when an agent's rolling performance crosses the
// configured thresholds, and each stage carries the hyperparameter
// adjustments to apply. Stage changes happen only here, never by ad hoc
// field mutation in training callbacks.
package curriculum

import (
	"github.com/rs/zerolog"
)

// Stage is a curriculum difficulty stage.
type Stage int

const (
	StageFoundation Stage = iota
	StageIntermediate
	StageAdvanced
	StageMastery
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageFoundation:
		return "foundation"
	case StageIntermediate:
		return "intermediate"
	case StageAdvanced:
		return "advanced"
	case StageMastery:
		return "mastery"
	default:
		return "unknown"
	}
}

// Adjustment is the hyperparameter tuning a stage applies to the learning
// agent and the reward model. ShapingScale multiplies the auxiliary reward
// weights so later stages lean on raw line rewards.
type Adjustment struct {
	EpsilonMin   float64
	EpsilonDecay float64
	ShapingScale float64
}

// Config holds advancement thresholds.
type Config struct {
	// Window is how many recent episodes the rolling average covers.
	Window int
	// AdvanceScore[s] is the rolling mean score needed to leave stage s.
	AdvanceScore [3]float64
}

// DefaultConfig returns the standard thresholds for the base variant.
func DefaultConfig() Config {
	return Config{
		Window:       50,
		AdvanceScore: [3]float64{200, 600, 1500},
	}
}

// Transition records one stage change.
type Transition struct {
	From    Stage
	To      Stage
	Episode int
	Score   float64
	Lines   float64
}

// Machine tracks the current stage and its transition history.
type Machine struct {
	cfg          Config
	stage        Stage
	recentScores []int
	recentLines  []int
	history      []Transition
	logger       zerolog.Logger
}

// New creates a machine starting at the foundation stage.
func New(cfg Config, logger zerolog.Logger) *Machine {
	if cfg.Window <= 0 {
		cfg.Window = 50
	}
	return &Machine{
		cfg:    cfg,
		logger: logger.With().Str("component", "curriculum").Logger(),
	}
}

// Stage returns the current stage.
func (m *Machine) Stage() Stage { return m.stage }

// Level returns the stage as the environment's curriculum level counter.
func (m *Machine) Level() int { return int(m.stage) }

// Observe records an episode result and advances the stage when the
// rolling mean score crosses the current threshold. Stages never regress.
func (m *Machine) Observe(episode, score, lines int) bool {
	m.recentScores = append(m.recentScores, score)
	m.recentLines = append(m.recentLines, lines)
	if len(m.recentScores) > m.cfg.Window {
		m.recentScores = m.recentScores[len(m.recentScores)-m.cfg.Window:]
		m.recentLines = m.recentLines[len(m.recentLines)-m.cfg.Window:]
	}
	if m.stage >= StageMastery || len(m.recentScores) < m.cfg.Window {
		return false
	}

	meanScore := rollingMean(m.recentScores)
	if meanScore < m.cfg.AdvanceScore[m.stage] {
		return false
	}
	meanLines := rollingMean(m.recentLines)

	from := m.stage
	m.stage++
	m.recentScores = m.recentScores[:0]
	m.recentLines = m.recentLines[:0]
	m.history = append(m.history, Transition{
		From:    from,
		To:      m.stage,
		Episode: episode,
		Score:   meanScore,
		Lines:   meanLines,
	})
	m.logger.Info().
		Str("from_stage", from.String()).
		Str("to_stage", m.stage.String()).
		Int("episode", episode).
		Float64("rolling_score", meanScore).
		Float64("rolling_lines", meanLines).
		Msg("Curriculum stage advanced")
	return true
}

func rollingMean(window []int) float64 {
	sum := 0
	for _, v := range window {
		sum += v
	}
	return float64(sum) / float64(len(window))
}

// Adjustment returns the tuning for the current stage. Later stages
// explore less, decay faster, and rely less on shaped rewards.
func (m *Machine) Adjustment() Adjustment {
	switch m.stage {
	case StageFoundation:
		return Adjustment{EpsilonMin: 0.10, EpsilonDecay: 0.997, ShapingScale: 1.0}
	case StageIntermediate:
		return Adjustment{EpsilonMin: 0.05, EpsilonDecay: 0.995, ShapingScale: 0.8}
	case StageAdvanced:
		return Adjustment{EpsilonMin: 0.02, EpsilonDecay: 0.993, ShapingScale: 0.6}
	default:
		return Adjustment{EpsilonMin: 0.01, EpsilonDecay: 0.99, ShapingScale: 0.5}
	}
}

// History returns a copy of the transition history.
func (m *Machine) History() []Transition {
	history := make([]Transition, len(m.history))
	copy(history, m.history)
	return history
}
