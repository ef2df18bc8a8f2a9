// Package config loads mapforge.yaml. Every field is optional; missing
// values keep the defaults from Default, and a few environment variables
// override the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"mapforge/pkg/engine/retry"
	"mapforge/pkg/game/agent"
	"mapforge/pkg/game/builder"
	"mapforge/pkg/game/i18n"
	"mapforge/pkg/game/store"
	"mapforge/pkg/game/verify"
)

// DefaultPath is read when no -config flag is given
const DefaultPath = "mapforge.yaml"

// Environment overrides
const (
	EnvOllamaEndpoint = "OLLAMA_ENDPOINT"
	EnvOllamaModel    = "OLLAMA_MODEL"
	EnvDatabaseURL    = "DATABASE_URL"
	EnvStorage        = "MAPFORGE_STORAGE"
	DefaultAPIKeyEnv  = "ANTHROPIC_API_KEY"
)

// Grid sizes
type Grid struct {
	DefaultWidth  int `yaml:"default_width"`
	DefaultHeight int `yaml:"default_height"`
	MinSize       int `yaml:"min_size"`
	MaxSize       int `yaml:"max_size"`
}

// Generation selects the agent backend and its session limits
type Generation struct {
	Provider             string  `yaml:"provider"`
	Model                string  `yaml:"model"`
	Endpoint             string  `yaml:"endpoint"`
	APIKeyEnv            string  `yaml:"api_key_env"`
	Temperature          float64 `yaml:"temperature"`
	MaxTokens            int     `yaml:"max_tokens"`
	MaxOperations        int     `yaml:"max_operations"`
	MaxConsecutiveErrors int     `yaml:"max_consecutive_errors"`
	ConnectivityFeedback bool    `yaml:"connectivity_feedback"`
	Workers              int     `yaml:"workers"`
	Seed                 int64   `yaml:"seed"`
	Script               string  `yaml:"script"`
	Program              string  `yaml:"program"`

	// APIKey is read from APIKeyEnv, never from the file
	APIKey string `yaml:"-"`
}

// Retry is the backoff for external calls
type Retry struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Multiplier  float64       `yaml:"multiplier"`
}

// Verification selects the judge and holds the scoring weights
type Verification struct {
	Provider      string `yaml:"provider"`
	Model         string `yaml:"model"`
	Endpoint      string `yaml:"endpoint"`
	JudgmentFile  string `yaml:"judgment_file"`
	verify.Config `yaml:",inline"`
}

// Config is the whole file
type Config struct {
	Grid         Grid         `yaml:"grid"`
	Generation   Generation   `yaml:"generation"`
	Retry        Retry        `yaml:"retry"`
	Verification Verification `yaml:"verification"`
	Storage      store.Config `yaml:"storage"`
	Locale       string       `yaml:"locale"`
}

// Default returns the built-in configuration
func Default() Config {
	bl := builder.DefaultLimits()
	lim := agent.DefaultLimits()
	rp := retry.DefaultPolicy()
	return Config{
		Grid: Grid{
			DefaultWidth:  20,
			DefaultHeight: 15,
			MinSize:       bl.MinSize,
			MaxSize:       bl.MaxSize,
		},
		Generation: Generation{
			Provider:             agent.ProviderProcedural,
			APIKeyEnv:            DefaultAPIKeyEnv,
			Temperature:          0.7,
			MaxTokens:            4000,
			MaxOperations:        lim.MaxOperations,
			MaxConsecutiveErrors: lim.MaxConsecutiveErrors,
			ConnectivityFeedback: lim.ConnectivityFeedback,
			Workers:              4,
		},
		Retry: Retry{
			MaxAttempts: rp.MaxAttempts,
			BaseDelay:   rp.BaseDelay,
			MaxDelay:    rp.MaxDelay,
			Multiplier:  rp.Multiplier,
		},
		Verification: Verification{
			Provider: agent.ProviderNone,
			Config:   verify.DefaultConfig(),
		},
		Storage: store.Config{Driver: store.DriverJSON, Path: "mapforge.json"},
		Locale:  i18n.DefaultLocale,
	}
}

// Parse decodes YAML over the defaults and applies environment overrides
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads path. A missing file is not an error when optional is set.
func Load(path string, optional bool) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return Parse(bytes.NewReader(nil))
		}
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvOllamaEndpoint); v != "" {
		if c.Generation.Provider == agent.ProviderOllama {
			c.Generation.Endpoint = v
		}
		if c.Verification.Provider == agent.ProviderOllama {
			c.Verification.Endpoint = v
		}
	}
	if v := getenv(EnvOllamaModel); v != "" {
		if c.Generation.Provider == agent.ProviderOllama {
			c.Generation.Model = v
		}
		if c.Verification.Provider == agent.ProviderOllama {
			c.Verification.Model = v
		}
	}
	if c.Generation.APIKeyEnv != "" {
		c.Generation.APIKey = getenv(c.Generation.APIKeyEnv)
	}
	if v := getenv(EnvDatabaseURL); v != "" {
		c.Storage.DSN = v
	}
	if v := getenv(EnvStorage); v != "" {
		c.Storage.Driver = v
	}
}

// Validate rejects settings no session could run with
func (c Config) Validate() error {
	switch {
	case c.Grid.MinSize < 1 || c.Grid.MaxSize < c.Grid.MinSize:
		return fmt.Errorf("grid sizes %d-%d are invalid", c.Grid.MinSize, c.Grid.MaxSize)
	case c.Grid.DefaultWidth < c.Grid.MinSize || c.Grid.DefaultWidth > c.Grid.MaxSize,
		c.Grid.DefaultHeight < c.Grid.MinSize || c.Grid.DefaultHeight > c.Grid.MaxSize:
		return fmt.Errorf("default grid %dx%d outside %d-%d",
			c.Grid.DefaultWidth, c.Grid.DefaultHeight, c.Grid.MinSize, c.Grid.MaxSize)
	case c.Generation.MaxOperations <= 0:
		return errors.New("max_operations must be positive")
	case c.Generation.MaxConsecutiveErrors <= 0:
		return errors.New("max_consecutive_errors must be positive")
	case c.Generation.Workers <= 0:
		return errors.New("workers must be positive")
	case c.Retry.MaxAttempts <= 0:
		return errors.New("retry max_attempts must be positive")
	case c.Retry.Multiplier < 1:
		return errors.New("retry multiplier must be at least 1")
	}
	if err := c.Verification.Config.Validate(); err != nil {
		return err
	}
	return nil
}

// RetryPolicy converts the retry section
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay,
		MaxDelay:    c.Retry.MaxDelay,
		Multiplier:  c.Retry.Multiplier,
	}
}

// GeneratorOptions builds the agent backend options
func (c Config) GeneratorOptions() agent.Options {
	g := c.Generation
	return agent.Options{
		Provider: g.Provider,
		Client: agent.ClientConfig{
			Endpoint:    g.Endpoint,
			Model:       g.Model,
			APIKey:      g.APIKey,
			Temperature: g.Temperature,
			MaxTokens:   g.MaxTokens,
			Retry:       c.RetryPolicy(),
		},
		Seed:        g.Seed,
		ScriptPath:  g.Script,
		ProgramPath: g.Program,
	}
}

// JudgeClient builds the client config for the judge backend. The judge
// shares the generation API key.
func (c Config) JudgeClient() agent.ClientConfig {
	v := c.Verification
	return agent.ClientConfig{
		Endpoint: v.Endpoint,
		Model:    v.Model,
		APIKey:   c.Generation.APIKey,
		Retry:    c.RetryPolicy(),
	}
}

// RunnerConfig builds the session runner settings
func (c Config) RunnerConfig() agent.RunnerConfig {
	return agent.RunnerConfig{
		Limits: agent.Limits{
			MaxOperations:        c.Generation.MaxOperations,
			MaxConsecutiveErrors: c.Generation.MaxConsecutiveErrors,
			ConnectivityFeedback: c.Generation.ConnectivityFeedback,
		},
		Grid:   c.GridLimits(),
		Width:  c.Grid.DefaultWidth,
		Height: c.Grid.DefaultHeight,
	}
}

// GridLimits returns the builder's size bounds
func (c Config) GridLimits() builder.Limits {
	return builder.Limits{MinSize: c.Grid.MinSize, MaxSize: c.Grid.MaxSize}
}
