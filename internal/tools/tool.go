// Package tools implements the process-wide Tool Registry (spec §4.1): a
// lazy catalog of tool implementations with per-agent filtered views.
package tools

import (
	"context"
	"encoding/json"

	"github.com/nexus-contrib/agentmesh/pkg/models"
)

// ToolResult is the outcome of a single tool invocation.
type ToolResult = models.ToolResult

// Spec declares a tool without instantiating it, matching the teacher's
// "declared by a spec (module, class/factory, category)" construction
// (spec §4.1). A Spec is instantiated at most once, on first Get/filter.
type Spec struct {
	Name     string
	Category string
	Tags     []string
	Sets     []string

	// New constructs the tool on first use. Errors are caught by the
	// registry and logged; the tool is then omitted from any view.
	New func() (Tool, error)
}

// Tool is the uniform interface every tool implementation satisfies,
// whether backed by a leaf capability (file system, RFC authoring, web
// fetch — all out of scope per spec §1) or an in-core tool such as
// check_mail / send_mail_with_switch.
type Tool interface {
	Name() string
	Description() string
	Category() string
	Tags() []string
	Sets() []string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// SwitchHint lets a tool's result carry a `_switch_to_agent` value the
// Agent-Switch Handler interprets (spec §3 "Tool" invariant). No tool in
// this module implements it: send_mail_with_switch puts the hint in its
// JSON result content, which the session reads directly.
type SwitchHint interface {
	SwitchTarget(result *ToolResult) (agentID string, ok bool)
}
