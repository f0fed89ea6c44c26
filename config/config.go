package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/RajanDhamala/evalcoord/coordinator"
	"github.com/RajanDhamala/evalcoord/stockfish"
)

type Config struct {
	Engine     EngineConfig     `yaml:"engine"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type EngineConfig struct {
	Path               string             `yaml:"path"`
	Threads            int                `yaml:"threads"`
	HashMB             int                `yaml:"hash_mb"`
	MaxMultiPV         int                `yaml:"max_multipv"`
	Options            []stockfish.Option `yaml:"options,omitempty"`
	StartTimeout       time.Duration      `yaml:"start_timeout"`
	ShutdownTimeout    time.Duration      `yaml:"shutdown_timeout"`
	StoppingTimeout    time.Duration      `yaml:"stopping_timeout"`
	MaxRestarts        int                `yaml:"max_restarts"`
	AllowCPUOvercommit bool               `yaml:"allow_cpu_overcommit"`
}

type EvaluationConfig struct {
	MultiPV      int           `yaml:"multipv"`        // lines shown during review
	LineMoveTime time.Duration `yaml:"line_move_time"` // per node in a line sweep
	GameMoveTime time.Duration `yaml:"game_move_time"` // per engine game move
	ViableMoveCP int           `yaml:"viable_move_cp"` // 0 always plays the best move
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

type MetricsConfig struct {
	// Addr serves /metrics when set, e.g. "127.0.0.1:9464".
	Addr string `yaml:"addr,omitempty"`
}

func Default() Config {
	return Config{
		Engine: EngineConfig{
			Path:            "stockfish",
			Threads:         1,
			HashMB:          16,
			MaxMultiPV:      5,
			StartTimeout:    5 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			StoppingTimeout: 500 * time.Millisecond,
			MaxRestarts:     1,
		},
		Evaluation: EvaluationConfig{
			MultiPV:      3,
			LineMoveTime: time.Second,
			GameMoveTime: time.Second,
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// WriteDefault writes the default config to path, creating its directory.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c Config) Validate() error {
	if c.Engine.Threads < 0 {
		return fmt.Errorf("engine.threads must be >= 0")
	}
	if c.Engine.HashMB < 0 {
		return fmt.Errorf("engine.hash_mb must be >= 0")
	}
	if c.Engine.MaxMultiPV < 0 {
		return fmt.Errorf("engine.max_multipv must be >= 0")
	}
	if c.Evaluation.MultiPV < 1 {
		return fmt.Errorf("evaluation.multipv must be >= 1")
	}
	if c.Engine.MaxMultiPV > 0 && c.Evaluation.MultiPV > c.Engine.MaxMultiPV {
		return fmt.Errorf("evaluation.multipv %d exceeds engine.max_multipv %d", c.Evaluation.MultiPV, c.Engine.MaxMultiPV)
	}
	if c.Evaluation.LineMoveTime <= 0 || c.Evaluation.GameMoveTime <= 0 {
		return fmt.Errorf("evaluation move times must be positive")
	}
	if c.Evaluation.ViableMoveCP < 0 {
		return fmt.Errorf("evaluation.viable_move_cp must be >= 0")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Stockfish maps the engine section onto the engine channel config.
func (c Config) Stockfish(logger zerolog.Logger) stockfish.Config {
	return stockfish.Config{
		BinaryPath:               c.Engine.Path,
		Threads:                  c.Engine.Threads,
		HashMB:                   c.Engine.HashMB,
		MaxMultiPV:               c.Engine.MaxMultiPV,
		Options:                  c.Engine.Options,
		StartTimeout:             c.Engine.StartTimeout,
		ShutdownTimeout:          c.Engine.ShutdownTimeout,
		StoppingTimeout:          c.Engine.StoppingTimeout,
		MaxRestarts:              c.Engine.MaxRestarts,
		AllowUnsafeCPUOvercommit: c.Engine.AllowCPUOvercommit,
		Logger:                   logger,
	}
}

// Coordinator fills the evaluation settings; collaborators are left to the
// caller.
func (c Config) Coordinator(logger zerolog.Logger) coordinator.Config {
	return coordinator.Config{
		Logger:       logger,
		MultiPV:      c.Evaluation.MultiPV,
		LineMoveTime: c.Evaluation.LineMoveTime,
		GameMoveTime: c.Evaluation.GameMoveTime,
		ViableMoveCP: c.Evaluation.ViableMoveCP,
	}
}

// Level returns the configured log level, defaulting to info.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
