package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	// First load writes the default file.
	_, err = os.Stat(path)
	require.NoError(t, err, "expected config file to be created")

	assert.Equal(t, 0.6, cfg.Resolver.ConfidenceThreshold)
	assert.Equal(t, 4*time.Second, cfg.Resolver.RemoteTimeout)
	assert.True(t, cfg.Resolver.EnableLearning)
	assert.Equal(t, 30*time.Second, cfg.Connectivity.CheckInterval)
	assert.NotEmpty(t, cfg.Connectivity.Probes)
	assert.Equal(t, "gemini-1.5-flash", cfg.LLM.Model)
	assert.Equal(t, "127.0.0.1:8765", cfg.Server.Addr)
}

func TestLoadSparseFileGetsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	sparse := "resolver:\n  confidence_threshold: 0.75\n"
	require.NoError(t, os.WriteFile(path, []byte(sparse), 0644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, 0.75, cfg.Resolver.ConfidenceThreshold)
	// Everything else falls back to defaults.
	assert.Equal(t, 4*time.Second, cfg.Resolver.RemoteTimeout)
	assert.Equal(t, "gemini-1.5-flash", cfg.LLM.Model)
	assert.Equal(t, 50, cfg.Knowledge.MaxPatternExamples)
}

func TestEnvironmentOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("JARVIS_LLM_MODEL", "gemini-1.5-pro")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini-1.5-pro", cfg.LLM.Model)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"threshold above one", func(c *Config) { c.Resolver.ConfidenceThreshold = 1.5 }, true},
		{"negative threshold", func(c *Config) { c.Resolver.ConfidenceThreshold = -0.1 }, true},
		{"zero remote timeout", func(c *Config) { c.Resolver.RemoteTimeout = 0 }, true},
		{"zero check interval", func(c *Config) { c.Connectivity.CheckInterval = 0 }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"zero example cap", func(c *Config) { c.Knowledge.MaxPatternExamples = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := Default()
	cfg.Resolver.ConfidenceThreshold = 0.8
	cfg.LLM.Model = "gemini-1.5-pro"
	require.NoError(t, cfg.SaveToPath(path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 0.8, loaded.Resolver.ConfidenceThreshold)
	assert.Equal(t, "gemini-1.5-pro", loaded.LLM.Model)
}

func TestPath(t *testing.T) {
	assert.Equal(t, "/tmp/custom.yaml", Path("/tmp/custom.yaml"))

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".jarvis", "config.yaml"), Path(""))
}
