// Package switching implements the Agent-Switch Handler (spec §4.8):
// interposes after a batch of tool executions, detects a successful
// send_mail_with_switch result, suspends the calling agent, activates the
// target, collects its reply, and resumes the caller.
//
// Grounded on the teacher's internal/multiagent handoff flow
// (handoff_tool.go's target-agent resolution by id/name) generalized to
// the exact agent-id resolution and switch-stack semantics
// original_source/api/agent_switch_handler.py implements, per
// SUPPLEMENTED FEATURES items 1 and 3.
package switching

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nexus-contrib/agentmesh/pkg/models"
)

// nameFallback is the short static first-letter map original_source falls
// back to when the registry has no match by exact id, full name, or first
// name (SUPPLEMENTED FEATURES item 1).
var nameFallback = map[string]string{
	"alice":    "a",
	"patricia": "p",
	"tessa":    "t",
	"debbie":   "d",
	"eamonn":   "e",
}

// AgentLookup resolves known agent ids/names for ResolveAgentID.
type AgentLookup interface {
	// Names returns every known agent id mapped to its full display name.
	Names() map[string]string // agentID -> full name
}

// ResolveAgentID accepts a short id, full name, or first name and resolves
// it to a canonical agent id known to lookup. It tries, in order: exact id
// match, full-name match (case-insensitive), first-name match, then the
// static fallback map. Returns "" if nothing matches.
func ResolveAgentID(target string, lookup AgentLookup) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return ""
	}
	canonical := models.CanonicalID(target)
	names := lookup.Names()

	if _, ok := names[canonical]; ok {
		return canonical
	}

	lowerTarget := strings.ToLower(target)
	for id, name := range names {
		if strings.ToLower(name) == lowerTarget {
			return id
		}
	}
	for id, name := range names {
		fields := strings.Fields(name)
		if len(fields) > 0 && strings.ToLower(fields[0]) == lowerTarget {
			return id
		}
	}

	if id, ok := nameFallback[lowerTarget]; ok {
		if _, known := names[id]; known {
			return id
		}
	}
	return ""
}

// Errors returned by Handler.Switch's validation step (spec §4.8 step 2).
var (
	ErrSelfSwitch    = errors.New("switching: target is the current agent")
	ErrCircular      = errors.New("Circular mail detected: switching: target is already suspended on the switch stack")
	ErrDepthExceeded = errors.New("switching: max switch depth exceeded")
	ErrUnknownTarget = errors.New("switching: target agent could not be resolved")
)

// SessionPort is the subset of Session the handler drives, kept narrow so
// this package has no import-cycle dependency on internal/session.
type SessionPort interface {
	SwitchAgent(agentID string) error
	SendUserMessageAsContinuation(agentID, message string) (string, error)
	ContinuationDepth() int
	SetContinuationDepth(int)
}

// Handler runs the switch protocol for one session. It owns the
// SwitchFrame stack (spec §3 "SwitchFrame"; SUPPLEMENTED FEATURES item 3 —
// a named stack, not just a depth counter, so circularity is detected by
// identity).
type Handler struct {
	stack []models.SwitchFrame
}

// NewHandler returns a Handler with an empty switch stack.
func NewHandler() *Handler {
	return &Handler{}
}

// onStack reports whether agentID is currently suspended anywhere on the
// switch stack, as either the frame's caller (PriorAgentID) or its target
// (TargetAgentID) — both are awaiting a resume, so switching back to
// either would be a cycle (spec §8 scenario 6: a -> b -> c -> a).
func (h *Handler) onStack(agentID string) bool {
	for _, f := range h.stack {
		if f.TargetAgentID == agentID || f.PriorAgentID == agentID {
			return true
		}
	}
	return false
}

// Switch executes the full protocol described in spec §4.8 for a
// send_mail_with_switch result that targeted rawTarget, invoked while
// fromAgent is active. It never returns an error to the caller — failures
// surface as the bracketed warning text spec §4.8 specifies.
func (h *Handler) Switch(sess SessionPort, lookup AgentLookup, fromAgent, rawTarget string) string {
	target := ResolveAgentID(rawTarget, lookup)
	if target == "" {
		return fmt.Sprintf("\n\n[switch failed: %v]", ErrUnknownTarget)
	}
	if target == models.CanonicalID(fromAgent) {
		return fmt.Sprintf("\n\n[switch failed: %v]", ErrSelfSwitch)
	}
	if h.onStack(target) {
		return fmt.Sprintf("\n\n[switch failed: %v]", ErrCircular)
	}
	if len(h.stack) >= models.MaxSwitchDepth {
		return fmt.Sprintf("\n\n[switch failed: %v]", ErrDepthExceeded)
	}

	depthSnapshot := sess.ContinuationDepth()
	h.stack = append(h.stack, models.SwitchFrame{
		PriorAgentID:      fromAgent,
		TargetAgentID:     target,
		ContinuationDepth: depthSnapshot,
	})
	defer func() {
		h.stack = h.stack[:len(h.stack)-1]
		sess.SetContinuationDepth(depthSnapshot)
	}()

	if err := sess.SwitchAgent(target); err != nil {
		return fmt.Sprintf("\n\n[switch failed: %v]", err)
	}

	notice := fmt.Sprintf("You have been activated via agent switch from %s. Use the check_mail tool to read your mailbox.", fromAgent)
	reply, err := sess.SendUserMessageAsContinuation(target, notice)
	if err != nil {
		return fmt.Sprintf("\n\n[switch to %s failed: %v]", target, err)
	}

	if err := sess.SwitchAgent(fromAgent); err != nil {
		return fmt.Sprintf("\n\n[%s processed the mail and responded: %s]\n\n[failed to restore prior agent: %v]", target, reply, err)
	}

	return fmt.Sprintf("\n\n[%s processed the mail and responded: %s]", target, reply)
}
