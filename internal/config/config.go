// Package config loads the runtime's single Config struct from a
// nexus.yaml-style file, with environment-variable expansion and
// defaulting, grounded on the teacher's internal/config/config.go (a tree
// of nested XxxConfig structs decoded with gopkg.in/yaml.v3, env-expanded
// before decode, defaults applied after) and trimmed to the sections this
// runtime's core actually consumes (spec.md §1 scopes out project/
// workspace management, RFC/plan tools, and the other leaf-tool surfaces
// the teacher's config also configures).
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nexus-contrib/agentmesh/pkg/models"
)

// Config is the root configuration for one agentmesh process.
type Config struct {
	Server        ServerConfig         `yaml:"server"`
	Session       SessionConfig        `yaml:"session"`
	Tools         ToolsConfig          `yaml:"tools"`
	Agents        []models.AgentConfig `yaml:"agents"`
	Observability ObservabilityConfig  `yaml:"observability"`
	Snapshot      SnapshotConfig       `yaml:"snapshot"`
}

// ServerConfig configures the JSON-RPC/WebSocket listener (spec §6).
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// SessionConfig holds the per-session settings spec.md leaves to agent/
// session configuration (continuation depth ceiling, retained-message
// ceiling, default workspace root for @path references). The server reads
// Workspace and ChannelSchemaEnabled; MaxContinuationDepth and
// MaxRetainedMessages are decoded and defaulted but not passed to sessions,
// whose continuation controllers use continuation.DefaultMaxDepth.
type SessionConfig struct {
	MaxContinuationDepth int    `yaml:"max_continuation_depth"`
	MaxRetainedMessages  int    `yaml:"max_retained_messages"`
	Workspace            string `yaml:"workspace"`
	// ChannelSchemaEnabled mirrors the original's prompt-system
	// "channel_system" enabled-features flag (spec §4.10 priority 2): when
	// true, structured-output-capable models are asked for the
	// {analysis,commentary,final} schema instead of falling back to the
	// bare continuation wrapper.
	ChannelSchemaEnabled bool `yaml:"channel_schema_enabled"`
}

// ToolsConfig holds a process-wide default deny-list and named tool-set
// membership table. They are decoded but not applied to the tool registry;
// each agent's tool view comes from its own ToolFilters alone.
type ToolsConfig struct {
	DefaultDeny   []string            `yaml:"default_deny"`
	SetMembership map[string][]string `yaml:"set_membership"`
}

// ObservabilityConfig toggles the Prometheus metrics server
// (internal/observability).
type ObservabilityConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsAddr    string `yaml:"metrics_addr"`
}

// SnapshotConfig configures the opt-in SQLite-backed persistence path
// (internal/snapshot), the "beyond opt-in snapshotting" carve-out in
// spec.md's Non-goals.
type SnapshotConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// Load reads, env-expands, decodes, and defaults a Config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8787
	}
	if cfg.Session.MaxContinuationDepth == 0 {
		cfg.Session.MaxContinuationDepth = 3
	}
	if cfg.Session.MaxRetainedMessages == 0 {
		cfg.Session.MaxRetainedMessages = 200
	}
	if cfg.Session.Workspace == "" {
		cfg.Session.Workspace = "."
	}
	if cfg.Observability.MetricsAddr == "" {
		cfg.Observability.MetricsAddr = ":9090"
	}
	if cfg.Snapshot.DSN == "" {
		cfg.Snapshot.DSN = "agentmesh.db"
	}
}
