package models

// ToolFilters describes how an agent's ToolView is computed from the global
// tool catalog: (tool_sets ∪ tagged(tags) ∪ allow) \ deny. See spec §4.1.
type ToolFilters struct {
	ToolSets []string `yaml:"tool_sets,omitempty" json:"tool_sets,omitempty"`
	Tags     []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Allow    []string `yaml:"allow,omitempty" json:"allow,omitempty"`
	Deny     []string `yaml:"deny,omitempty" json:"deny,omitempty"`
}

// GenerationParams are per-call model generation parameters.
type GenerationParams struct {
	Temperature float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// ContextSettings bounds how much history an agent retains.
type ContextSettings struct {
	MaxRetainedMessages int `yaml:"max_retained_messages,omitempty" json:"max_retained_messages,omitempty"`
}

// AgentConfig is the static configuration for one Agent. See spec §3.
type AgentConfig struct {
	ID           string           `yaml:"id" json:"id"`
	Name         string           `yaml:"name" json:"name"`
	Description  string           `yaml:"description,omitempty" json:"description,omitempty"`
	SystemPrompt string           `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	Model        string           `yaml:"model,omitempty" json:"model,omitempty"`
	Provider     string           `yaml:"provider,omitempty" json:"provider,omitempty"`
	// Role optionally marks an agent for structured-output schema selection
	// (spec §4.10): "planner" opts an agent into the plan-generation schema
	// when its message matches plan-generation indicators.
	Role         string           `yaml:"role,omitempty" json:"role,omitempty"`
	Generation   GenerationParams `yaml:"generation,omitempty" json:"generation,omitempty"`
	Tools        ToolFilters      `yaml:"tools,omitempty" json:"tools,omitempty"`
	Context      ContextSettings  `yaml:"context,omitempty" json:"context,omitempty"`

	// Color/Shortcut/Icon surface on the agent.list wire method (§6).
	Color    string `yaml:"color,omitempty" json:"color,omitempty"`
	Shortcut string `yaml:"shortcut,omitempty" json:"shortcut,omitempty"`
	Icon     string `yaml:"icon,omitempty" json:"icon,omitempty"`
}

// Clone returns a deep copy of the config.
func (c *AgentConfig) Clone() *AgentConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Tools.ToolSets = append([]string(nil), c.Tools.ToolSets...)
	clone.Tools.Tags = append([]string(nil), c.Tools.Tags...)
	clone.Tools.Allow = append([]string(nil), c.Tools.Allow...)
	clone.Tools.Deny = append([]string(nil), c.Tools.Deny...)
	return &clone
}

// CanonicalID lowercases an externally supplied agent id, per spec §3:
// "identity = short id (one or two letters, case-insensitive externally,
// canonical lowercase internally)".
func CanonicalID(id string) string {
	out := make([]byte, 0, len(id))
	for i := 0; i < len(id); i++ {
		b := id[i]
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		out = append(out, b)
	}
	return string(out)
}
