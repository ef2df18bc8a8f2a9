package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapforge/pkg/game/agent"
	"mapforge/pkg/game/store"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{EnvOllamaEndpoint, EnvOllamaModel, EnvDatabaseURL, EnvStorage, DefaultAPIKeyEnv} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	assert.Equal(t, 20, cfg.Grid.DefaultWidth)
	assert.Equal(t, 64, cfg.Grid.MaxSize)
	assert.Equal(t, 60, cfg.Generation.MaxOperations)
	assert.True(t, cfg.Generation.ConnectivityFeedback)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 0.6, cfg.Verification.QuantitativeWeight)
	assert.Equal(t, 7.0, cfg.Verification.PassThreshold)
	assert.Equal(t, store.DriverJSON, cfg.Storage.Driver)
	assert.Equal(t, "en", cfg.Locale)
}

func TestParseOverridesDefaults(t *testing.T) {
	clearEnv(t)
	doc := `
grid:
  default_width: 30
generation:
  provider: ollama
  connectivity_feedback: false
  workers: 2
retry:
  base_delay: 250ms
  max_delay: 2s
verification:
  provider: anthropic
  pass_threshold: 6.5
  connectivity_critical: true
storage:
  driver: bolt
  path: maps.db
`
	cfg, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Grid.DefaultWidth)
	assert.Equal(t, 15, cfg.Grid.DefaultHeight)
	assert.Equal(t, agent.ProviderOllama, cfg.Generation.Provider)
	assert.False(t, cfg.Generation.ConnectivityFeedback)
	assert.Equal(t, 60, cfg.Generation.MaxOperations)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 2*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 6.5, cfg.Verification.PassThreshold)
	assert.True(t, cfg.Verification.ConnectivityCritical)
	assert.Equal(t, 0.4, cfg.Verification.QualitativeWeight)
	assert.Equal(t, store.Config{Driver: store.DriverBolt, Path: "maps.db"}, cfg.Storage)

	rc := cfg.RunnerConfig()
	assert.Equal(t, 30, rc.Width)
	assert.False(t, rc.Limits.ConnectivityFeedback)
	assert.Equal(t, 250*time.Millisecond, cfg.GeneratorOptions().Client.Retry.BaseDelay)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvOllamaEndpoint, "http://gpu:11434")
	t.Setenv(EnvOllamaModel, "mistral")
	t.Setenv("MY_KEY", "sk-test")
	t.Setenv(EnvDatabaseURL, "postgres://localhost/maps")
	t.Setenv(EnvStorage, store.DriverPostgres)

	cfg, err := Parse(strings.NewReader("generation:\n  provider: ollama\n  api_key_env: MY_KEY\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://gpu:11434", cfg.Generation.Endpoint)
	assert.Equal(t, "mistral", cfg.Generation.Model)
	assert.Equal(t, "", cfg.Verification.Endpoint, "judge is not ollama")
	assert.Equal(t, "sk-test", cfg.Generation.APIKey)
	assert.Equal(t, "sk-test", cfg.JudgeClient().APIKey)
	assert.Equal(t, store.DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://localhost/maps", cfg.Storage.DSN)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		doc  string
	}{
		{"zero weights", "verification:\n  quantitative_weight: 0\n  qualitative_weight: 0\n"},
		{"negative weight", "verification:\n  qualitative_weight: -1\n"},
		{"threshold", "verification:\n  pass_threshold: 11\n"},
		{"budget", "generation:\n  max_operations: 0\n"},
		{"workers", "generation:\n  workers: -2\n"},
		{"default grid too large", "grid:\n  default_width: 100\n"},
		{"unknown field", "grid:\n  depth: 3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, "missing.yaml"), true)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(filepath.Join(dir, "missing.yaml"), false)
	assert.Error(t, err)

	path := filepath.Join(dir, "mapforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("locale: en\ngrid:\n  max_size: 40\n"), 0o644))
	cfg, err = Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Grid.MaxSize)
}
