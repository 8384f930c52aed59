// Package config loads and validates the agentcore process configuration:
// the wiring for the generation transport, the vector stacks backend, the
// tool registry's permission policy, and connected MCP servers.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/corestack/agentcore/internal/mcp"
	"github.com/corestack/agentcore/internal/permission"
)

// Config is the top-level configuration for an agentcore process.
type Config struct {
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	Stacks     StacksConfig     `yaml:"stacks"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Loop       LoopConfig       `yaml:"loop"`
	Permission PermissionConfig `yaml:"permission"`
	MCP        mcp.Config       `yaml:"mcp"`
}

// AnthropicConfig configures the Anthropic transport adapter.
type AnthropicConfig struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	MaxTokens  int           `yaml:"max_tokens"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// StacksConfig configures the vector store backend.
type StacksConfig struct {
	// Backend selects the storage implementation: "file", "sqlite", or "postgres".
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	DSN     string `yaml:"dsn"`
}

// EmbeddingsConfig configures the embedding provider used by the library.
type EmbeddingsConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
}

// LoopConfig configures the agentic loop's bounds.
type LoopConfig struct {
	MaxTurns          int  `yaml:"max_turns"`
	MaxSubagentDepth  int  `yaml:"max_subagent_depth"`
	AgentManagesTools bool `yaml:"agent_manages_tools"`
}

// PermissionConfig configures the tool registry's default permission policy.
type PermissionConfig struct {
	Profile permission.Profile `yaml:"profile"`
	Allow   []string           `yaml:"allow"`
	Deny    []string           `yaml:"deny"`
}

// Policy builds a *permission.Policy from the configured profile and lists.
func (p PermissionConfig) Policy() *permission.Policy {
	return &permission.Policy{Profile: p.Profile, Allow: p.Allow, Deny: p.Deny}
}

// Load reads and parses a YAML config file at path, expanding ${VAR} /
// $VAR references against the process environment first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Stacks.Backend == "" {
		c.Stacks.Backend = "file"
	}
	if c.Loop.MaxTurns <= 0 {
		c.Loop.MaxTurns = 10
	}
	if c.Loop.MaxSubagentDepth <= 0 {
		c.Loop.MaxSubagentDepth = 2
	}
	if c.Permission.Profile == "" {
		c.Permission.Profile = permission.ProfileCoding
	}
}

// Validate checks the configuration for required fields and consistency.
func (c *Config) Validate() error {
	if c.Anthropic.APIKey == "" {
		return fmt.Errorf("anthropic.api_key is required")
	}
	switch c.Stacks.Backend {
	case "file":
		if c.Stacks.Path == "" {
			return fmt.Errorf("stacks.path is required for the file backend")
		}
	case "sqlite", "postgres":
		if c.Stacks.DSN == "" {
			return fmt.Errorf("stacks.dsn is required for the %s backend", c.Stacks.Backend)
		}
	default:
		return fmt.Errorf("stacks.backend %q is not one of file, sqlite, postgres", c.Stacks.Backend)
	}
	return nil
}
