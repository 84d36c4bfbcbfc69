package models

// SwitchFrame is pushed onto a session's switch stack when an
// Agent-Switch Handler suspends the caller to activate a callee. Stacked
// during nested switches; bounded by MaxSwitchDepth (spec §3, §4.8).
type SwitchFrame struct {
	PriorAgentID       string `json:"prior_agent_id"`
	TargetAgentID      string `json:"target_agent_id"`
	ContinuationDepth  int    `json:"continuation_depth_snapshot"`
}

// MaxSwitchDepth bounds nested synchronous agent switches (spec §3, §4.8,
// §7 "SwitchDepthExceeded").
const MaxSwitchDepth = 5
