// Package config loads and validates Jarvis configuration.
// Configuration lives in ~/.jarvis/config.yaml and can be overridden by
// environment variables with the JARVIS_ prefix
// (e.g. JARVIS_RESOLVER_CONFIDENCE_THRESHOLD=0.7).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration for the Jarvis voice assistant.
type Config struct {
	Resolver     ResolverConfig     `mapstructure:"resolver" yaml:"resolver"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity" yaml:"connectivity"`
	Knowledge    KnowledgeConfig    `mapstructure:"knowledge" yaml:"knowledge"`
	LLM          LLMConfig          `mapstructure:"llm" yaml:"llm"`
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
}

// ResolverConfig controls the hybrid resolution chain.
type ResolverConfig struct {
	// ConfidenceThreshold is the minimum confidence a resolution attempt
	// needs before the chain stops falling through (default 0.6).
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`

	// RemoteTimeout bounds a single cloud resolution attempt. The chain
	// falls through to the local classifier when it expires.
	RemoteTimeout time.Duration `mapstructure:"remote_timeout" yaml:"remote_timeout"`

	// EnableLearning controls whether successful resolutions are persisted
	// to the knowledge store.
	EnableLearning bool `mapstructure:"enable_learning" yaml:"enable_learning"`
}

// ConnectivityConfig controls the background reachability monitor.
type ConnectivityConfig struct {
	// CheckInterval is the cadence of background probes (default 30s).
	CheckInterval time.Duration `mapstructure:"check_interval" yaml:"check_interval"`

	// ProbeTimeout bounds a single reachability probe (default 2s).
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`

	// Probes are the host:port targets tried in order. TCP reachability of
	// any one of them means online.
	Probes []string `mapstructure:"probes" yaml:"probes"`
}

// KnowledgeConfig contains configuration for the knowledge store.
type KnowledgeConfig struct {
	// DBPath is the path to the SQLite knowledge database.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// MaxPatternExamples caps how many example utterances an intent
	// pattern retains (default 50).
	MaxPatternExamples int `mapstructure:"max_pattern_examples" yaml:"max_pattern_examples"`
}

// LLMConfig contains configuration for the cloud language model used by the
// remote resolver.
type LLMConfig struct {
	// Endpoint is the API base URL.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Model is the model identifier to request.
	Model string `mapstructure:"model" yaml:"model"`

	// MaxTokens limits the structured response length.
	MaxTokens int `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// ServerConfig contains configuration for the WebSocket utterance bridge.
type ServerConfig struct {
	// Enabled determines whether the bridge listens at startup.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Addr is the listen address (default 127.0.0.1:8765).
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LoggingConfig contains configuration for application logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `mapstructure:"level" yaml:"level"`

	// File is the path to the log file. Empty disables file logging.
	File string `mapstructure:"file" yaml:"file"`
}

// Default returns the built-in configuration, rooted under ~/.jarvis.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".jarvis")

	return &Config{
		Resolver: ResolverConfig{
			ConfidenceThreshold: 0.6,
			RemoteTimeout:       4 * time.Second,
			EnableLearning:      true,
		},
		Connectivity: ConnectivityConfig{
			CheckInterval: 30 * time.Second,
			ProbeTimeout:  2 * time.Second,
			Probes:        []string{"8.8.8.8:53", "1.1.1.1:53", "google.com:443"},
		},
		Knowledge: KnowledgeConfig{
			DBPath:             filepath.Join(dataDir, "knowledge.db"),
			MaxPatternExamples: 50,
		},
		LLM: LLMConfig{
			Endpoint:  "https://generativelanguage.googleapis.com/v1beta",
			Model:     "gemini-1.5-flash",
			MaxTokens: 512,
		},
		Server: ServerConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8765",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(dataDir, "logs", "jarvis.log"),
		},
	}
}

// Path returns the effective config file path given an optional override.
func Path(override string) string {
	if override != "" {
		return expandPath(override)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(homeDir, ".jarvis", "config.yaml")
}

// Load reads configuration from the default location (~/.jarvis/config.yaml)
// and merges with environment variables. If no config file exists, it creates
// one with default values.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home directory: %w", err)
	}
	return LoadFromPath(filepath.Join(homeDir, ".jarvis", "config.yaml"))
}

// LoadFromPath reads configuration from a specific file path and merges with
// environment variables. If the file doesn't exist, it is created with
// default values.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Environment overrides, e.g. JARVIS_LLM_MODEL=gemini-1.5-pro
	v.SetEnvPrefix("JARVIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Knowledge.DBPath = expandPath(cfg.Knowledge.DBPath)
	cfg.Logging.File = expandPath(cfg.Logging.File)
	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills zero values left by a sparse config file.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Resolver.ConfidenceThreshold == 0 {
		c.Resolver.ConfidenceThreshold = defaults.Resolver.ConfidenceThreshold
	}
	if c.Resolver.RemoteTimeout == 0 {
		c.Resolver.RemoteTimeout = defaults.Resolver.RemoteTimeout
	}
	if c.Connectivity.CheckInterval == 0 {
		c.Connectivity.CheckInterval = defaults.Connectivity.CheckInterval
	}
	if c.Connectivity.ProbeTimeout == 0 {
		c.Connectivity.ProbeTimeout = defaults.Connectivity.ProbeTimeout
	}
	if len(c.Connectivity.Probes) == 0 {
		c.Connectivity.Probes = defaults.Connectivity.Probes
	}
	if c.Knowledge.DBPath == "" {
		c.Knowledge.DBPath = defaults.Knowledge.DBPath
	}
	if c.Knowledge.MaxPatternExamples == 0 {
		c.Knowledge.MaxPatternExamples = defaults.Knowledge.MaxPatternExamples
	}
	if c.LLM.Endpoint == "" {
		c.LLM.Endpoint = defaults.LLM.Endpoint
	}
	if c.LLM.Model == "" {
		c.LLM.Model = defaults.LLM.Model
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = defaults.LLM.MaxTokens
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
}

// SaveToPath writes the current configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	return writeConfigFile(path, c)
}

// DataDir returns the directory holding the database, logs, and key files.
func (c *Config) DataDir() string {
	return filepath.Dir(c.Knowledge.DBPath)
}

// EnsureDirectories creates all directories Jarvis needs at runtime.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir(),
		filepath.Dir(c.Knowledge.DBPath),
	}
	if c.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Validate checks the configuration for common errors.
func (c *Config) Validate() error {
	if c.Resolver.ConfidenceThreshold < 0 || c.Resolver.ConfidenceThreshold > 1 {
		return fmt.Errorf("resolver.confidence_threshold must be in [0, 1], got %v", c.Resolver.ConfidenceThreshold)
	}
	if c.Resolver.RemoteTimeout <= 0 {
		return fmt.Errorf("resolver.remote_timeout must be positive")
	}
	if c.Connectivity.CheckInterval <= 0 {
		return fmt.Errorf("connectivity.check_interval must be positive")
	}
	if c.Connectivity.ProbeTimeout <= 0 {
		return fmt.Errorf("connectivity.probe_timeout must be positive")
	}
	if c.Knowledge.MaxPatternExamples < 1 {
		return fmt.Errorf("knowledge.max_pattern_examples must be at least 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// writeConfigFile writes a Config struct to a YAML file.
// Uses gopkg.in/yaml.v3 directly to ensure proper tag-based serialization.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
