// Package agentregistry adapts the static agent manifest loaded by
// internal/config into the internal/session.Registry interface: lookup by
// canonical id, the default agent (spec §4.9 startSession: an explicitly
// named default if present, else id "a" if configured, else the first id in
// sorted order, else a generic fallback persona), and the full id→name map
// internal/switching.ResolveAgentID needs.
//
// Grounded on the teacher's compile-time-manifest replacement for
// reflection-based registration (spec.md §9 "From reflection-based tool
// registration to a static manifest") applied here to agents instead of
// tools.
package agentregistry

import (
	"sort"

	"github.com/nexus-contrib/agentmesh/pkg/models"
)

// genericDefault is used only when the agent manifest is empty, matching
// spec §4.9's "generic 'default' agent" fallback.
var genericDefault = &models.AgentConfig{
	ID:           "default",
	Name:         "Assistant",
	Description:  "General-purpose assistant persona.",
	Provider:     "anthropic",
	Model:        "claude-sonnet-4-5",
	SystemPrompt: "You are a helpful assistant.",
}

// Registry is an in-memory, immutable-after-load agent manifest.
type Registry struct {
	byID       map[string]*models.AgentConfig
	defaultID  string
}

// New builds a Registry from a static manifest (typically config.Agents).
// defaultID selects the startSession default; if empty or not present in
// agents, "a" is tried, then the first agent in id order, then
// genericDefault.
func New(agents []models.AgentConfig, defaultID string) *Registry {
	r := &Registry{byID: make(map[string]*models.AgentConfig, len(agents))}
	for i := range agents {
		cfg := agents[i].Clone()
		cfg.ID = models.CanonicalID(cfg.ID)
		r.byID[cfg.ID] = cfg
	}

	switch {
	case defaultID != "" && r.byID[models.CanonicalID(defaultID)] != nil:
		r.defaultID = models.CanonicalID(defaultID)
	case r.byID["a"] != nil:
		r.defaultID = "a"
	case len(r.byID) > 0:
		ids := r.ids()
		r.defaultID = ids[0]
	default:
		r.byID[genericDefault.ID] = genericDefault
		r.defaultID = genericDefault.ID
	}
	return r
}

func (r *Registry) ids() []string {
	out := make([]string, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Get resolves an agent by canonical id.
func (r *Registry) Get(agentID string) (*models.AgentConfig, bool) {
	cfg, ok := r.byID[models.CanonicalID(agentID)]
	return cfg, ok
}

// Default returns the manifest's default agent.
func (r *Registry) Default() (*models.AgentConfig, bool) {
	cfg, ok := r.byID[r.defaultID]
	return cfg, ok
}

// Names returns every known agent id mapped to its display name, used by
// internal/switching.ResolveAgentID for full-name/first-name resolution.
func (r *Registry) Names() map[string]string {
	out := make(map[string]string, len(r.byID))
	for id, cfg := range r.byID {
		out[id] = cfg.Name
	}
	return out
}
