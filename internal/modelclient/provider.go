// Package modelclient defines the provider-agnostic model call surface the
// Agent Loop (C7) drives, plus Anthropic- and OpenAI-backed implementations.
//
// Grounded on the teacher's internal/agent.LLMProvider interface
// (internal/agent/provider_types.go) and its two concrete implementations
// in internal/agent/providers/{anthropic,openai}.go, trimmed to the subset
// of request/response shape this system's Agent Loop needs (no vision
// attachments, no extended-thinking/computer-use beta surface — those are
// teacher features with no SPEC_FULL.md component to exercise them).
package modelclient

import (
	"context"
	"encoding/json"

	"github.com/nexus-contrib/agentmesh/pkg/models"
)

// Message is one entry of conversation history sent to the model, a
// provider-agnostic projection of models.ContextMessage.
type Message struct {
	Role       models.Role
	Content    string
	ToolCalls  []models.ToolCall
	ToolCallID string
}

// ToolSpec is a tool definition offered to the model for this call.
type ToolSpec struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Request is one model round-trip request (spec §4.7 step 2 "Assemble
// request").
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolSpec
	Temperature float64
	MaxTokens   int
	// ResponseSchema, when set, asks the provider for JSON-schema
	// constrained output (spec §4.10 structured-output policy).
	ResponseSchema json.RawMessage
}

// Chunk is one streamed unit of a model response. Exactly one of Text,
// ToolCall, Error, or Done (as a terminal marker) is meaningful per chunk.
type Chunk struct {
	Text     string
	ToolCall *models.ToolCall
	Error    error
	Done     bool
}

// Provider is the uniform interface every model backend satisfies.
type Provider interface {
	Name() string
	SupportsTools() bool
	SupportsStructuredOutput() bool
	Complete(ctx context.Context, req *Request) (<-chan *Chunk, error)
}
