package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Env        EnvConfig        `mapstructure:"env"`
	Rewards    RewardsConfig    `mapstructure:"rewards"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Training   TrainingConfig   `mapstructure:"training"`
	Curriculum CurriculumConfig `mapstructure:"curriculum"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// EnvConfig holds environment settings
type EnvConfig struct {
	GridSize  int   `mapstructure:"grid_size"`
	MaxBlocks int   `mapstructure:"max_blocks"`
	Seed      int64 `mapstructure:"seed"`
}

// RewardsConfig holds reward shaping settings
type RewardsConfig struct {
	InvalidPenalty        float64 `mapstructure:"invalid_penalty"`
	LineBase              float64 `mapstructure:"line_base"`
	PerLine               float64 `mapstructure:"per_line"`
	ComboWeight           float64 `mapstructure:"combo_weight"`
	NearCompleteThreshold float64 `mapstructure:"near_complete_threshold"`
	MinReward             float64 `mapstructure:"min_reward"`
	MaxReward             float64 `mapstructure:"max_reward"`
}

// AgentConfig holds algorithm selection and hyperparameters
type AgentConfig struct {
	Algorithm string          `mapstructure:"algorithm"`
	Hidden    []int           `mapstructure:"hidden"`
	DQN       DQNConfig       `mapstructure:"dqn"`
	MCTS      MCTSConfig      `mapstructure:"mcts"`
	Reinforce ReinforceConfig `mapstructure:"reinforce"`
	Heuristic HeuristicConfig `mapstructure:"heuristic"`
}

// DQNConfig holds DQN family hyperparameters
type DQNConfig struct {
	LearningRate   float64 `mapstructure:"learning_rate"`
	Gamma          float64 `mapstructure:"gamma"`
	Epsilon        float64 `mapstructure:"epsilon"`
	EpsilonMin     float64 `mapstructure:"epsilon_min"`
	EpsilonDecay   float64 `mapstructure:"epsilon_decay"`
	BatchSize      int     `mapstructure:"batch_size"`
	BufferCapacity int     `mapstructure:"buffer_capacity"`
	TargetSync     int     `mapstructure:"target_sync"`
	SoftTau        float64 `mapstructure:"soft_tau"`
	GuidedExplore  bool    `mapstructure:"guided_explore"`
	AdaptiveDecay  bool    `mapstructure:"adaptive_decay"`
}

// MCTSConfig holds tree search settings
type MCTSConfig struct {
	Simulations  int     `mapstructure:"simulations"`
	Exploration  float64 `mapstructure:"exploration"`
	RolloutDepth int     `mapstructure:"rollout_depth"`
}

// ReinforceConfig holds policy gradient settings
type ReinforceConfig struct {
	LearningRate float64 `mapstructure:"learning_rate"`
	Gamma        float64 `mapstructure:"gamma"`
	EntropyCoef  float64 `mapstructure:"entropy_coef"`
}

// HeuristicConfig holds hand-crafted policy settings
type HeuristicConfig struct {
	LookaheadDepth   int `mapstructure:"lookahead_depth"`
	LookaheadBreadth int `mapstructure:"lookahead_breadth"`
}

// TrainingConfig holds training loop settings
type TrainingConfig struct {
	Episodes           int `mapstructure:"episodes"`
	MaxStepsPerEpisode int `mapstructure:"max_steps_per_episode"`
	LogInterval        int `mapstructure:"log_interval"`
	CheckpointInterval int `mapstructure:"checkpoint_interval"`
}

// CurriculumConfig holds stage advancement settings
type CurriculumConfig struct {
	Enabled      bool       `mapstructure:"enabled"`
	Window       int        `mapstructure:"window"`
	AdvanceScore [3]float64 `mapstructure:"advance_score"`
}

// CheckpointConfig holds snapshot persistence settings
type CheckpointConfig struct {
	Type    string `mapstructure:"type"`
	BaseDir string `mapstructure:"base_dir"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var (
	// Global config instance
	cfg *Config
	v   *viper.Viper
)

// setViperDefaults sets all default values using Viper's SetDefault
func setViperDefaults(v *viper.Viper) {
	// Environment defaults
	v.SetDefault("env.grid_size", 9)
	v.SetDefault("env.max_blocks", 3)
	v.SetDefault("env.seed", 0)

	// Reward shaping defaults
	v.SetDefault("rewards.invalid_penalty", -1000.0)
	v.SetDefault("rewards.line_base", 10.0)
	v.SetDefault("rewards.per_line", 15.0)
	v.SetDefault("rewards.combo_weight", 5.0)
	v.SetDefault("rewards.near_complete_threshold", 0.75)
	v.SetDefault("rewards.min_reward", -1000.0)
	v.SetDefault("rewards.max_reward", 200.0)

	// Agent defaults
	v.SetDefault("agent.algorithm", "dqn")
	v.SetDefault("agent.hidden", []int{128, 64})
	v.SetDefault("agent.dqn.learning_rate", 0.001)
	v.SetDefault("agent.dqn.gamma", 0.95)
	v.SetDefault("agent.dqn.epsilon", 1.0)
	v.SetDefault("agent.dqn.epsilon_min", 0.01)
	v.SetDefault("agent.dqn.epsilon_decay", 0.995)
	v.SetDefault("agent.dqn.batch_size", 32)
	v.SetDefault("agent.dqn.buffer_capacity", 10000)
	v.SetDefault("agent.dqn.target_sync", 100)
	v.SetDefault("agent.dqn.soft_tau", 0.0)
	v.SetDefault("agent.dqn.guided_explore", true)
	v.SetDefault("agent.dqn.adaptive_decay", false)
	v.SetDefault("agent.mcts.simulations", 200)
	v.SetDefault("agent.mcts.exploration", 1.41421356)
	v.SetDefault("agent.mcts.rollout_depth", 10)
	v.SetDefault("agent.reinforce.learning_rate", 0.001)
	v.SetDefault("agent.reinforce.gamma", 0.99)
	v.SetDefault("agent.reinforce.entropy_coef", 0.01)
	v.SetDefault("agent.heuristic.lookahead_depth", 1)
	v.SetDefault("agent.heuristic.lookahead_breadth", 5)

	// Training loop defaults
	v.SetDefault("training.episodes", 1000)
	v.SetDefault("training.max_steps_per_episode", 500)
	v.SetDefault("training.log_interval", 10)
	v.SetDefault("training.checkpoint_interval", 100)

	// Curriculum defaults
	v.SetDefault("curriculum.enabled", true)
	v.SetDefault("curriculum.window", 50)
	v.SetDefault("curriculum.advance_score", []float64{200, 600, 1500})

	// Checkpoint defaults
	v.SetDefault("checkpoint.type", "file")
	v.SetDefault("checkpoint.base_dir", "checkpoints")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Init initializes the configuration
func Init(configPath string) error {
	v = viper.New()

	// Set defaults before loading any config
	setViperDefaults(v)

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default config locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/blockpuzzle-rl")
	}

	// Set environment variable prefix
	v.SetEnvPrefix("BPRL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// If we have a specific config path and it doesn't exist, that's ok - use defaults
		if configPath != "" {
			// Specific file requested but not found - that's ok, use defaults
		} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// For default locations, only ignore ConfigFileNotFoundError
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults
	}

	// Unmarshal into config struct
	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}

	// Validate configuration
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

// Get returns the global config instance
func Get() *Config {
	if cfg == nil {
		// Initialize with defaults if not already initialized
		if err := Init(""); err != nil {
			panic("failed to initialize config with defaults: " + err.Error())
		}
	}
	return cfg
}

// GetViper returns the viper instance for advanced usage
func GetViper() *viper.Viper {
	if v == nil {
		panic("config not initialized - call Init() first")
	}
	return v
}

// Set allows runtime config updates
func Set(key string, value interface{}) {
	v.Set(key, value)
	// Re-unmarshal to update struct
	v.Unmarshal(cfg)
}

// GetString gets a string value from config
func GetString(key string) string {
	return v.GetString(key)
}

// GetInt gets an int value from config
func GetInt(key string) int {
	return v.GetInt(key)
}

// GetBool gets a bool value from config
func GetBool(key string) bool {
	return v.GetBool(key)
}

// GetFloat64 gets a float64 value from config
func GetFloat64(key string) float64 {
	return v.GetFloat64(key)
}

// ConfigFilePath returns the path of the loaded config file
func ConfigFilePath() string {
	return v.ConfigFileUsed()
}

// WatchConfig enables hot-reloading of config file
func WatchConfig(onChange func()) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		// Re-unmarshal on change
		v.Unmarshal(cfg)
		if onChange != nil {
			onChange()
		}
	})
}

// Validate validates the configuration values
func Validate(c *Config) error {
	// Validate environment settings
	if c.Env.GridSize < 5 || c.Env.GridSize > 20 {
		return fmt.Errorf("env.grid_size must be between 5 and 20")
	}
	if c.Env.MaxBlocks < 1 {
		return fmt.Errorf("env.max_blocks must be positive")
	}

	// Validate reward shaping
	if c.Rewards.NearCompleteThreshold <= 0 || c.Rewards.NearCompleteThreshold >= 1 {
		return fmt.Errorf("rewards.near_complete_threshold must be between 0 and 1")
	}
	if c.Rewards.MinReward > c.Rewards.MaxReward {
		return fmt.Errorf("rewards.min_reward must not exceed rewards.max_reward")
	}

	// Validate agent hyperparameters
	switch c.Agent.Algorithm {
	case "dqn", "double-dqn", "mcts", "reinforce", "heuristic":
	default:
		return fmt.Errorf("agent.algorithm must be one of dqn, double-dqn, mcts, reinforce, heuristic")
	}
	if len(c.Agent.Hidden) == 0 {
		return fmt.Errorf("agent.hidden must name at least one layer")
	}
	for _, size := range c.Agent.Hidden {
		if size <= 0 {
			return fmt.Errorf("agent.hidden layer sizes must be positive")
		}
	}
	if c.Agent.DQN.LearningRate <= 0 {
		return fmt.Errorf("agent.dqn.learning_rate must be positive")
	}
	if c.Agent.DQN.Gamma < 0 || c.Agent.DQN.Gamma > 1 {
		return fmt.Errorf("agent.dqn.gamma must be between 0 and 1")
	}
	if c.Agent.DQN.Epsilon < 0 || c.Agent.DQN.Epsilon > 1 {
		return fmt.Errorf("agent.dqn.epsilon must be between 0 and 1")
	}
	if c.Agent.DQN.EpsilonMin < 0 || c.Agent.DQN.EpsilonMin > c.Agent.DQN.Epsilon {
		return fmt.Errorf("agent.dqn.epsilon_min must be between 0 and agent.dqn.epsilon")
	}
	if c.Agent.DQN.EpsilonDecay <= 0 || c.Agent.DQN.EpsilonDecay > 1 {
		return fmt.Errorf("agent.dqn.epsilon_decay must be in (0, 1]")
	}
	if c.Agent.DQN.BatchSize <= 0 {
		return fmt.Errorf("agent.dqn.batch_size must be positive")
	}
	if c.Agent.DQN.BufferCapacity < c.Agent.DQN.BatchSize {
		return fmt.Errorf("agent.dqn.buffer_capacity must be at least agent.dqn.batch_size")
	}
	if c.Agent.DQN.TargetSync <= 0 {
		return fmt.Errorf("agent.dqn.target_sync must be positive")
	}
	if c.Agent.DQN.SoftTau < 0 || c.Agent.DQN.SoftTau > 1 {
		return fmt.Errorf("agent.dqn.soft_tau must be between 0 and 1")
	}
	if c.Agent.MCTS.Simulations <= 0 {
		return fmt.Errorf("agent.mcts.simulations must be positive")
	}
	if c.Agent.MCTS.Exploration < 0 {
		return fmt.Errorf("agent.mcts.exploration must be non-negative")
	}
	if c.Agent.MCTS.RolloutDepth <= 0 {
		return fmt.Errorf("agent.mcts.rollout_depth must be positive")
	}
	if c.Agent.Reinforce.LearningRate <= 0 {
		return fmt.Errorf("agent.reinforce.learning_rate must be positive")
	}
	if c.Agent.Reinforce.Gamma < 0 || c.Agent.Reinforce.Gamma > 1 {
		return fmt.Errorf("agent.reinforce.gamma must be between 0 and 1")
	}
	if c.Agent.Reinforce.EntropyCoef < 0 {
		return fmt.Errorf("agent.reinforce.entropy_coef must be non-negative")
	}
	if c.Agent.Heuristic.LookaheadDepth < 0 || c.Agent.Heuristic.LookaheadDepth > 2 {
		return fmt.Errorf("agent.heuristic.lookahead_depth must be between 0 and 2")
	}
	if c.Agent.Heuristic.LookaheadBreadth <= 0 {
		return fmt.Errorf("agent.heuristic.lookahead_breadth must be positive")
	}

	// Validate training loop
	if c.Training.Episodes <= 0 {
		return fmt.Errorf("training.episodes must be positive")
	}
	if c.Training.MaxStepsPerEpisode <= 0 {
		return fmt.Errorf("training.max_steps_per_episode must be positive")
	}
	if c.Training.LogInterval <= 0 {
		return fmt.Errorf("training.log_interval must be positive")
	}
	if c.Training.CheckpointInterval < 0 {
		return fmt.Errorf("training.checkpoint_interval must be non-negative")
	}

	// Validate curriculum
	if c.Curriculum.Window <= 0 {
		return fmt.Errorf("curriculum.window must be positive")
	}
	for i := 1; i < len(c.Curriculum.AdvanceScore); i++ {
		if c.Curriculum.AdvanceScore[i] <= c.Curriculum.AdvanceScore[i-1] {
			return fmt.Errorf("curriculum.advance_score thresholds must be strictly increasing")
		}
	}

	// Validate checkpoint settings
	switch c.Checkpoint.Type {
	case "none", "file":
	default:
		return fmt.Errorf("checkpoint.type must be none or file")
	}
	if c.Checkpoint.Type == "file" && c.Checkpoint.BaseDir == "" {
		return fmt.Errorf("checkpoint.base_dir must be set for file checkpoints")
	}

	return nil
}
