// Package config loads textgrad CLI settings from YAML and the environment.
//
// Precedence, lowest first: defaults, YAML file, environment, command-line
// flags (applied by the caller). API keys are never read from the file; the
// engine reads GROQ_API_KEY / OPENAI_API_KEY itself.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/textgrad/internal/engine"
	"github.com/born-ml/textgrad/internal/parallel"
)

// Environment variables read by Load.
const (
	EnvModel         = "TEXTGRAD_MODEL"
	EnvBackwardModel = "TEXTGRAD_BACKWARD_MODEL"
	EnvCacheDir      = "TEXTGRAD_CACHE_DIR"
	EnvLogLevel      = "TEXTGRAD_LOG_LEVEL"
)

// ErrInvalid is returned for configuration that cannot be used.
var ErrInvalid = errors.New("config: invalid")

// Config is the full CLI configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Backward  BackwardConfig  `yaml:"backward"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Log       LogConfig       `yaml:"log"`
}

// EngineConfig selects and wraps the language model.
type EngineConfig struct {
	// Model is the forward engine identity, e.g. "llama3" or "gpt-4o".
	Model string `yaml:"model"`

	// BackwardModel synthesizes gradients and rewrites. Empty reuses Model.
	BackwardModel string `yaml:"backward_model"`

	BaseURL      string `yaml:"base_url"`
	SystemPrompt string `yaml:"system_prompt"`

	// Cache persists responses per model under CacheDir, or under the user
	// cache directory when CacheDir is empty. CacheInMemory keeps them for
	// the life of the process only.
	Cache         bool   `yaml:"cache"`
	CacheDir      string `yaml:"cache_dir"`
	CacheInMemory bool   `yaml:"cache_in_memory"`

	RequestsPerSecond float64     `yaml:"requests_per_second"`
	Retry             RetryConfig `yaml:"retry"`
}

// RetryConfig mirrors engine.RetryPolicy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffCap  time.Duration `yaml:"backoff_cap"`
}

// BackwardConfig tunes the backward pass.
type BackwardConfig struct {
	// Seed overrides the root gradient. Empty keeps the default.
	Seed string `yaml:"seed"`

	// Parallel runs sibling gradient rules concurrently.
	Parallel bool `yaml:"parallel"`

	// Workers bounds concurrent engine calls. 0 uses the default.
	Workers int `yaml:"workers"`
}

// OptimizerConfig tunes TGD.
type OptimizerConfig struct {
	Constraints    []string `yaml:"constraints,omitempty"`
	MomentumWindow int      `yaml:"momentum_window"`
}

// LogConfig selects log verbosity and format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns the built-in configuration.
func Default() Config {
	policy := engine.DefaultRetryPolicy()
	return Config{
		Engine: EngineConfig{
			Model: "llama3",
			Cache: true,
			Retry: RetryConfig{
				MaxAttempts: policy.MaxAttempts,
				BackoffBase: policy.BackoffBase,
				BackoffCap:  policy.BackoffCap,
			},
		},
		Backward: BackwardConfig{Parallel: true},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (optional) over the defaults, then applies the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode unmarshals YAML, rejecting unknown keys.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvModel); ok && v != "" {
		c.Engine.Model = v
	}
	if v, ok := lookup(EnvBackwardModel); ok && v != "" {
		c.Engine.BackwardModel = v
	}
	if v, ok := lookup(EnvCacheDir); ok && v != "" {
		c.Engine.CacheDir = v
		c.Engine.Cache = true
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate checks the configuration without touching the network.
func (c Config) Validate() error {
	if c.Engine.Model == "" {
		return fmt.Errorf("%w: engine.model is required", ErrInvalid)
	}
	if _, _, err := engine.Resolve(c.Engine.Model); err != nil {
		return fmt.Errorf("%w: engine.model: %w", ErrInvalid, err)
	}
	if c.Engine.BackwardModel != "" {
		if _, _, err := engine.Resolve(c.Engine.BackwardModel); err != nil {
			return fmt.Errorf("%w: engine.backward_model: %w", ErrInvalid, err)
		}
	}
	if err := c.retryPolicy(nil).Validate(); err != nil {
		return fmt.Errorf("%w: engine.retry: %w", ErrInvalid, err)
	}
	if c.Backward.Workers < 0 {
		return fmt.Errorf("%w: backward.workers must be >= 0", ErrInvalid)
	}
	if c.Optimizer.MomentumWindow < 0 {
		return fmt.Errorf("%w: optimizer.momentum_window must be >= 0", ErrInvalid)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	return nil
}

func (c Config) retryPolicy(logger *slog.Logger) engine.RetryPolicy {
	return engine.RetryPolicy{
		MaxAttempts: c.Engine.Retry.MaxAttempts,
		BackoffBase: c.Engine.Retry.BackoffBase,
		BackoffCap:  c.Engine.Retry.BackoffCap,
		Logger:      logger,
	}
}

// ForwardEngine returns the engine.Config for the forward model.
func (c Config) ForwardEngine(logger *slog.Logger) engine.Config {
	return c.engineConfig(c.Engine.Model, logger)
}

// BackwardEngine returns the engine.Config for gradient and update calls.
func (c Config) BackwardEngine(logger *slog.Logger) engine.Config {
	model := c.Engine.BackwardModel
	if model == "" {
		model = c.Engine.Model
	}
	return c.engineConfig(model, logger)
}

func (c Config) engineConfig(model string, logger *slog.Logger) engine.Config {
	return engine.Config{
		Model:             model,
		BaseURL:           c.Engine.BaseURL,
		SystemPrompt:      c.Engine.SystemPrompt,
		Retry:             c.retryPolicy(logger),
		Cache:             c.Engine.Cache,
		CacheDir:          c.Engine.CacheDir,
		CacheInMemory:     c.Engine.CacheInMemory,
		RequestsPerSecond: c.Engine.RequestsPerSecond,
		Logger:            logger,
	}
}

// Parallel returns the backward pass concurrency settings.
func (c Config) Parallel() parallel.Config {
	if !c.Backward.Parallel {
		return parallel.Sequential()
	}
	cfg := parallel.DefaultConfig()
	if c.Backward.Workers > 0 {
		cfg.NumWorkers = c.Backward.Workers
	}
	return cfg
}

// Logger builds the configured slog logger writing to w.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return slog.Level(n), nil
	}
	return 0, fmt.Errorf("%w: log.level %q", ErrInvalid, s)
}
