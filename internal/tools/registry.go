package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nexus-contrib/agentmesh/pkg/models"
)

// Tool parameter limits, carried forward from the teacher's registry to
// bound a single tool invocation.
const (
	MaxToolNameLength  = 256
	MaxToolParamsSize  = 10 << 20
)

// View is the immutable, per-agent filtered projection of the catalog a
// session's agent sees for the remainder of its lifetime (spec §4.1: "Once
// computed for an agent instance, the visible tool set does not change
// during that instance's lifetime").
type View struct {
	names []string
	tools map[string]Tool
}

// Names returns the visible tool names in deterministic (sorted) order.
func (v *View) Names() []string {
	out := make([]string, len(v.names))
	copy(out, v.names)
	return out
}

// Get returns a tool from the view, or false if it is not visible to it.
func (v *View) Get(name string) (Tool, bool) {
	t, ok := v.tools[name]
	return t, ok
}

// DescribeForModel renders the view as the tool-definition list a model
// provider expects: name, description, and JSON schema per tool, sorted by
// name for determinism across calls (spec §4.1 "describe_for_model").
type ToolDescription struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"input_schema"`
}

func (v *View) DescribeForModel() []ToolDescription {
	out := make([]ToolDescription, 0, len(v.names))
	for _, name := range v.names {
		t := v.tools[name]
		out = append(out, ToolDescription{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      t.Schema(),
		})
	}
	return out
}

// Registry is the process-wide tool catalog. Tools are declared lazily via
// Spec and instantiated at most once, the first time they are Get or
// included in a filtered View (spec §4.1).
type Registry struct {
	mu      sync.RWMutex
	specs   map[string]Spec
	built   map[string]Tool
	log     *slog.Logger
	metrics ExecutionRecorder
}

// ExecutionRecorder receives one observation per Execute call. Satisfied
// by *observability.Metrics; kept as a narrow interface here so this
// package never imports internal/observability directly.
type ExecutionRecorder interface {
	RecordToolExecution(toolName, status string, durationSeconds float64)
}

// SetMetrics attaches a recorder that Execute reports latency and
// outcome to. A nil recorder (the default) disables recording.
func (r *Registry) SetMetrics(m ExecutionRecorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

// NewRegistry returns an empty registry. A nil logger defaults to
// slog.Default(), matching the teacher's logging convention throughout
// internal/agent.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		specs: make(map[string]Spec),
		built: make(map[string]Tool),
		log:   log,
	}
}

// Declare registers a Spec under the registry without instantiating it.
// Re-declaring a name replaces the prior Spec and discards any already
// built instance for it.
func (r *Registry) Declare(spec Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Name] = spec
	delete(r.built, spec.Name)
}

// Get builds (if needed) and returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	if t, ok := r.built[name]; ok {
		r.mu.RUnlock()
		return t, true
	}
	spec, ok := r.specs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return r.build(spec)
}

func (r *Registry) build(spec Spec) (Tool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.built[spec.Name]; ok {
		return t, true
	}
	t, err := spec.New()
	if err != nil {
		r.log.Error("tool construction failed", "tool", spec.Name, "error", err)
		return nil, false
	}
	r.built[spec.Name] = t
	return t, true
}

// allSpecs returns a stable-ordered snapshot of declared specs.
func (r *Registry) allSpecs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FilterForAgent computes the tool view for an AgentConfig per spec §4.1:
// tools_visible = (by_set ∪ by_tag ∪ allow) \ deny. An empty ToolSets or
// Tags list contributes nothing on its own; only an agent with neither
// ToolSets nor Tags nor Allow sees the full catalog minus Deny.
func (r *Registry) FilterForAgent(filters models.ToolFilters) *View {
	sets := toSet(filters.ToolSets)
	tags := toSet(filters.Tags)
	allow := toSet(filters.Allow)
	deny := toSet(filters.Deny)

	noPositiveFilter := len(sets) == 0 && len(tags) == 0 && len(allow) == 0

	view := &View{tools: make(map[string]Tool)}
	for _, spec := range r.allSpecs() {
		if deny[spec.Name] {
			continue
		}
		matches := noPositiveFilter
		if !matches {
			if allow[spec.Name] {
				matches = true
			}
			if !matches {
				for _, s := range spec.Sets {
					if sets[s] {
						matches = true
						break
					}
				}
			}
			if !matches {
				for _, t := range spec.Tags {
					if tags[t] {
						matches = true
						break
					}
				}
			}
		}
		if !matches {
			continue
		}
		tool, ok := r.build(spec)
		if !ok {
			continue
		}
		view.tools[spec.Name] = tool
	}
	view.names = make([]string, 0, len(view.tools))
	for name := range view.tools {
		view.names = append(view.names, name)
	}
	sort.Strings(view.names)
	return view
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	out := make(map[string]bool, len(items))
	for _, s := range items {
		out[s] = true
	}
	return out
}

// Execute runs a named tool, applying the same size/length guards the
// teacher's registry enforces before dispatch.
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) (*ToolResult, error) {
	if len(name) > MaxToolNameLength {
		return &ToolResult{IsError: true, Error: fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength)}, nil
	}
	if len(params) > MaxToolParamsSize {
		return &ToolResult{IsError: true, Error: fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize)}, nil
	}
	tool, ok := r.Get(name)
	if !ok {
		return &ToolResult{IsError: true, Error: "tool not found: " + name}, nil
	}

	start := time.Now()
	res, err := tool.Execute(ctx, params)
	r.mu.RLock()
	metrics := r.metrics
	r.mu.RUnlock()
	if metrics != nil {
		status := "success"
		if err != nil || (res != nil && res.IsError) {
			status = "error"
		}
		metrics.RecordToolExecution(name, status, time.Since(start).Seconds())
	}
	return res, err
}
