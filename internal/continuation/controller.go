// Package continuation implements the Continuation Controller (spec §4.5):
// after a turn completes, it inspects the model's structured
// continuation.status and decides whether to re-enter the Agent Loop on
// the same agent.
//
// Grounded on the teacher's depth-bounded retry/backoff conventions
// (internal/agent/executor.go's retry loop shape) adapted from
// exponential-backoff retries to continuation-depth-bounded re-entry, a
// different bound but the same "count attempts, stop at a ceiling" idiom.
package continuation

import (
	"regexp"
	"strings"

	"github.com/nexus-contrib/agentmesh/pkg/models"
)

// DefaultMaxDepth is the default continuation-depth ceiling per session
// (spec §4.5). Depth is per-session, not per-agent; switching agents does
// not reset it.
const DefaultMaxDepth = 3

// Decision is the Controller's verdict for one completed turn.
type Decision struct {
	Continue bool
	// Message is the synthesized continuation user message to re-enter the
	// loop with, set only when Continue is true.
	Message string
}

// Controller tracks continuation depth for one session.
type Controller struct {
	MaxDepth int
	depth    int
}

// New returns a Controller with the given depth ceiling; a non-positive
// max falls back to DefaultMaxDepth.
func New(maxDepth int) *Controller {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Controller{MaxDepth: maxDepth}
}

// Depth returns the current continuation depth.
func (c *Controller) Depth() int { return c.depth }

// SetDepth restores a previously snapshotted depth, used when the
// Agent-Switch Handler (C8) saves/restores depth around a nested switch
// (spec §4.8 SwitchFrame).
func (c *Controller) SetDepth(depth int) { c.depth = depth }

var imperativeIntent = regexp.MustCompile(`(?i)\b(i will|i'll|i need to|need to|let me|going to)\b`)

// looksLikeOngoingIntent is the robustness heuristic from spec §4.5: when
// structured output is unavailable or malformed, text containing
// commentary markers or imperative language is treated as an implicit
// CONTINUE signal.
func looksLikeOngoingIntent(text string) bool {
	if strings.Contains(text, "```") {
		return true
	}
	return imperativeIntent.MatchString(text)
}

// Evaluate decides whether to re-enter the loop. state is the continuation
// object parsed from the model's structured reply, or nil if the model
// returned plain text (or structured parsing failed) — in which case
// fallbackText is consulted under the robustness heuristic.
func (c *Controller) Evaluate(state *models.ContinuationState, fallbackText string) Decision {
	wantsContinue := state.ShouldContinue()
	reason := ""
	if state != nil {
		reason = state.Reason
	}
	if state == nil && looksLikeOngoingIntent(fallbackText) {
		wantsContinue = true
	}

	if !wantsContinue || c.depth >= c.MaxDepth {
		c.depth = 0
		return Decision{Continue: false}
	}

	c.depth++
	msg := "Please continue"
	if strings.TrimSpace(reason) != "" {
		msg = "Continue: " + reason
	}
	return Decision{Continue: true, Message: msg}
}
