// Package config loads and validates experiment configuration from YAML.
//
// Configuration precedence is defaults, then file values. Validation is fail
// fast: an invalid configuration surfaces a *core.ConfigError before any
// conversation starts, so no partial experiment is ever created.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/duologue/convergence"
	"github.com/hupe1980/duologue/core"
)

// AgentConfig selects and parameterizes one side of the conversation.
type AgentConfig struct {
	// Provider selects the adapter: "anthropic", "openai" or "scripted".
	Provider string `yaml:"provider"`
	// Model is the provider-specific model identifier.
	Model string `yaml:"model"`
	// APIKeyEnv names the environment variable holding the credential.
	APIKeyEnv string `yaml:"api_key_env"`
}

// ConversationConfig carries the per-conversation parameters.
type ConversationConfig struct {
	MaxTurns      int     `yaml:"max_turns"`
	InitialPrompt string  `yaml:"initial_prompt"`
	Temperature   float64 `yaml:"temperature"`
}

// ConvergenceConfig selects the scoring profile and stop policy.
type ConvergenceConfig struct {
	Profile   string               `yaml:"profile"`
	Threshold float64              `yaml:"threshold"`
	Action    string               `yaml:"action"`
	Weights   *convergence.Weights `yaml:"weights,omitempty"`
}

// RuntimeConfig tunes concurrency and provider resilience.
type RuntimeConfig struct {
	// MaxConcurrent bounds the number of conversations executing at once.
	MaxConcurrent int `yaml:"max_concurrent"`
	// RequestTimeout bounds each outbound agent call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// MaxRetries bounds local retries for retryable provider failures.
	MaxRetries int `yaml:"max_retries"`
	// InitialBackoff is the first retry delay; it doubles per attempt up to
	// MaxBackoff.
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	// RequestsPerSecond paces outbound calls across all conversations of the
	// experiment; zero disables pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// UnmarshalYAML decodes runtime settings over the existing defaults. Duration
// fields accept Go duration strings ("15s", "1m30s"); absent fields keep the
// values already present in the receiver.
func (r *RuntimeConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		MaxConcurrent     *int     `yaml:"max_concurrent"`
		RequestTimeout    string   `yaml:"request_timeout"`
		MaxRetries        *int     `yaml:"max_retries"`
		InitialBackoff    string   `yaml:"initial_backoff"`
		MaxBackoff        string   `yaml:"max_backoff"`
		RequestsPerSecond *float64 `yaml:"requests_per_second"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.MaxConcurrent != nil {
		r.MaxConcurrent = *raw.MaxConcurrent
	}
	if raw.MaxRetries != nil {
		r.MaxRetries = *raw.MaxRetries
	}
	if raw.RequestsPerSecond != nil {
		r.RequestsPerSecond = *raw.RequestsPerSecond
	}
	for _, f := range []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{raw.RequestTimeout, &r.RequestTimeout, "runtime.request_timeout"},
		{raw.InitialBackoff, &r.InitialBackoff, "runtime.initial_backoff"},
		{raw.MaxBackoff, &r.MaxBackoff, "runtime.max_backoff"},
	} {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return core.NewConfigError(f.name, fmt.Sprintf("invalid duration %q", f.raw))
		}
		*f.dst = d
	}
	return nil
}

// Config is the complete experiment configuration document.
type Config struct {
	Label         string             `yaml:"label"`
	Conversations int                `yaml:"conversations"`
	OutputDir     string             `yaml:"output_dir"`
	DatabasePath  string             `yaml:"database_path"`
	AgentA        AgentConfig        `yaml:"agent_a"`
	AgentB        AgentConfig        `yaml:"agent_b"`
	Conversation  ConversationConfig `yaml:"conversation"`
	Convergence   ConvergenceConfig  `yaml:"convergence"`
	Runtime       RuntimeConfig      `yaml:"runtime"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Conversations: 1,
		OutputDir:     "experiments",
		Conversation: ConversationConfig{
			MaxTurns:    20,
			Temperature: 0.7,
		},
		Convergence: ConvergenceConfig{
			Profile:   "balanced",
			Threshold: 0.85,
			Action:    string(core.ActionStop),
		},
		Runtime: RuntimeConfig{
			MaxConcurrent:  4,
			RequestTimeout: 60 * time.Second,
			MaxRetries:     3,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
		},
	}
}

// Load reads a YAML configuration file over the defaults and validates the
// result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration, resolving the convergence profile so
// weight errors surface here rather than mid-experiment.
func (c *Config) Validate() error {
	if c.Conversations <= 0 {
		return core.NewConfigError("conversations", "must be positive")
	}
	if c.Conversation.MaxTurns <= 0 {
		return core.NewConfigError("conversation.max_turns", "must be positive")
	}
	if c.Convergence.Threshold < 0 || c.Convergence.Threshold > 1 {
		return core.NewConfigError("convergence.threshold", fmt.Sprintf("must be in [0,1], got %g", c.Convergence.Threshold))
	}
	if action := core.ConvergenceAction(c.Convergence.Action); !action.Valid() {
		return core.NewConfigError("convergence.action", fmt.Sprintf("unknown action %q", c.Convergence.Action))
	}
	if _, err := c.Profile(); err != nil {
		return err
	}
	if c.Runtime.MaxConcurrent <= 0 {
		return core.NewConfigError("runtime.max_concurrent", "must be positive")
	}
	if c.Runtime.RequestTimeout <= 0 {
		return core.NewConfigError("runtime.request_timeout", "must be positive")
	}
	return nil
}

// Profile resolves the configured convergence profile, validating custom
// weights.
func (c *Config) Profile() (convergence.Profile, error) {
	return convergence.ResolveProfile(c.Convergence.Profile, c.Convergence.Weights)
}

// ConversationConfig assembles the core conversation parameters shared by all
// conversations of the experiment.
func (c *Config) ConversationConfig() core.ConversationConfig {
	return core.ConversationConfig{
		MaxTurns:      c.Conversation.MaxTurns,
		InitialPrompt: c.Conversation.InitialPrompt,
		Temperature:   c.Conversation.Temperature,
		Profile:       c.Convergence.Profile,
		Threshold:     c.Convergence.Threshold,
		Action:        core.ConvergenceAction(c.Convergence.Action),
	}
}
