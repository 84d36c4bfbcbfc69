package models

// TurnKind discriminates the tagged union a model round-trip resolves to.
// This replaces the freeform-dict response shapes the original
// implementation used (spec §9 "From dynamic duck-typed messages to
// explicit variants").
type TurnKind string

const (
	TurnText       TurnKind = "text"
	TurnToolCalls  TurnKind = "tool_calls"
	TurnStructured TurnKind = "structured"
	TurnError      TurnKind = "error"
)

// StructuredTurn is the decoded body of a channel/continuation-schema model
// response (spec §4.4, §4.10).
type StructuredTurn struct {
	Analysis     string             `json:"analysis,omitempty"`
	Commentary   string             `json:"commentary,omitempty"`
	Final        string             `json:"final,omitempty"`
	Response     string             `json:"response,omitempty"`
	Continuation *ContinuationState `json:"continuation,omitempty"`
}

// ModelTurnResult is the normalized outcome of one model call: exactly one
// of Text, ToolCalls, Structured, or Error is meaningful, selected by Kind.
type ModelTurnResult struct {
	Kind TurnKind

	Text       string
	ToolCalls  []ToolCall
	Structured *StructuredTurn

	ErrorCode    string
	ErrorMessage string
}
