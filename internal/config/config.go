// Package config handles configuration loading and management for Loom.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Loom.
type Config struct {
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	Batcher    BatcherConfig    `mapstructure:"batcher"`
	Decomposer DecomposerConfig `mapstructure:"decomposer"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey        string `mapstructure:"api_key"`
	Model         string `mapstructure:"model"`
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// BatcherConfig holds inference batching settings.
type BatcherConfig struct {
	// MaxBatchSize is the largest number of requests sent in one batch.
	MaxBatchSize int `mapstructure:"max_batch_size"`
	// MaxWait bounds how long a partial batch waits before dispatch.
	MaxWait time.Duration `mapstructure:"max_wait"`
	// MaxBatchesInFlight bounds concurrent batches for backpressure.
	MaxBatchesInFlight int `mapstructure:"max_batches_in_flight"`
}

// DecomposerConfig holds decomposition settings.
type DecomposerConfig struct {
	// PromptBudgetTokens caps request text embedded in decomposition prompts.
	PromptBudgetTokens int `mapstructure:"prompt_budget_tokens"`
}

// PipelineConfig holds orchestration settings.
type PipelineConfig struct {
	// Parallelism bounds concurrent subtask executions per request.
	Parallelism int `mapstructure:"parallelism"`
	// RosterPath points at the agents roster YAML. Empty uses the built-in roster.
	RosterPath string `mapstructure:"roster_path"`
	// ProfileDB points at the sqlite profile store. Empty uses the XDG data path.
	ProfileDB string `mapstructure:"profile_db"`
	// DebugLog points at the debug log file. Empty disables debug logging.
	DebugLog string `mapstructure:"debug_log"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.loom.yaml in current directory or parent)
// 3. User config (~/.config/loom/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Project config takes precedence over the user config.
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.aws_region", "AWS_REGION")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_aws_bedrock", cfg.Anthropic.UseAWSBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("batcher.max_batch_size", cfg.Batcher.MaxBatchSize)
	v.Set("batcher.max_wait", cfg.Batcher.MaxWait.String())
	v.Set("batcher.max_batches_in_flight", cfg.Batcher.MaxBatchesInFlight)
	v.Set("decomposer.prompt_budget_tokens", cfg.Decomposer.PromptBudgetTokens)
	v.Set("pipeline.parallelism", cfg.Pipeline.Parallelism)
	v.Set("pipeline.roster_path", cfg.Pipeline.RosterPath)
	v.Set("pipeline.profile_db", cfg.Pipeline.ProfileDB)
	v.Set("pipeline.debug_log", cfg.Pipeline.DebugLog)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.use_aws_bedrock", false)

	v.SetDefault("batcher.max_batch_size", 8)
	v.SetDefault("batcher.max_wait", "50ms")
	v.SetDefault("batcher.max_batches_in_flight", 4)

	v.SetDefault("decomposer.prompt_budget_tokens", 4096)

	v.SetDefault("pipeline.parallelism", 4)
	v.SetDefault("pipeline.roster_path", "")
	v.SetDefault("pipeline.profile_db", "")
	v.SetDefault("pipeline.debug_log", "")
}

// getUserConfigDir returns the XDG config directory for Loom.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "loom")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "loom")
	}
	return filepath.Join(home, ".config", "loom")
}

// findProjectConfig searches for .loom.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".loom.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-20250514",
		},
		Batcher: BatcherConfig{
			MaxBatchSize:       8,
			MaxWait:            50 * time.Millisecond,
			MaxBatchesInFlight: 4,
		},
		Decomposer: DecomposerConfig{
			PromptBudgetTokens: 4096,
		},
		Pipeline: PipelineConfig{
			Parallelism: 4,
		},
	}
}
