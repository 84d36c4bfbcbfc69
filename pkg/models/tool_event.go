package models

import (
	"encoding/json"
	"time"
)

// ToolEventStage describes the lifecycle stage of a tool invocation.
// Adapted from the teacher's observability event model (internal/agent
// event emission) to the subset this runtime's ordering guarantees need.
type ToolEventStage string

const (
	ToolEventRequested ToolEventStage = "requested"
	ToolEventSucceeded ToolEventStage = "succeeded"
	ToolEventFailed    ToolEventStage = "failed"
)

// ToolEvent is a backend-only lifecycle notification for a tool call. Per
// spec §8 property 3, no client-visible frame carries raw tool-call
// structure; ToolEvent exists for server-side ordering and for
// `continuation.progress`'s `current_tools` field, not for direct streaming
// to the end user.
type ToolEvent struct {
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Stage      ToolEventStage  `json:"stage"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     string          `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	At         time.Time       `json:"at"`
}
