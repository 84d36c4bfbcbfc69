// Package structuredoutput implements the structured-output schema policy
// (spec §4.10): per turn, select at most one of the plan-generation,
// channel, or continuation JSON schemas to request from the model,
// honoring provider/model capability and the no-tools-with-structured-
// output quirk.
//
// Grounded on the original implementation's
// StatelessSessionManager._should_use_structured_output_for_plan /
// _should_use_structured_channel_output / _should_use_structured_continuation
// (api/stateless_session_manager.py), reimplemented as a pure function over
// an explicit Request rather than reaching into a mutable session/agent
// object for agent name, model name, and "enabled features" state.
package structuredoutput

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/nexus-contrib/agentmesh/internal/modelclient"
	"github.com/nexus-contrib/agentmesh/pkg/models"
)

// Kind names which schema, if any, a turn should request.
type Kind string

const (
	KindNone         Kind = ""
	KindPlan         Kind = "plan_generation"
	KindChannel      Kind = "channel"
	KindContinuation Kind = "continuation"
)

// PlannerRole is the AgentConfig.Role value that opts an agent into the
// plan-generation schema (spec §4.10 priority 1).
const PlannerRole = "planner"

// planIndicators mirrors the original's literal/regex phrase list used to
// detect a plan-generation request in the user's message.
var planIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)generate a structured json plan`),
	regexp.MustCompile(`(?i)generate a plan`),
	regexp.MustCompile(`(?i)create a plan`),
	regexp.MustCompile(`(?i)convert.*to.*plan`),
	regexp.MustCompile(`(?i)plan structure required`),
	regexp.MustCompile(`(?i)structured output enabled`),
}

func looksLikePlanRequest(message string) bool {
	for _, re := range planIndicators {
		if re.MatchString(message) {
			return true
		}
	}
	return false
}

// Policy decides which schema a given turn requests. ChannelEnabled mirrors
// the original's prompt-system "channel_system" enabled-features check —
// it is a deployment-wide feature flag, not per-agent.
type Policy struct {
	ChannelEnabled bool
}

// New returns a Policy whose channel schema is enabled only when
// channelEnabled is true; otherwise Select falls back to the continuation
// schema.
func New(channelEnabled bool) Policy {
	return Policy{ChannelEnabled: channelEnabled}
}

// Select picks the schema for one model round-trip, in the three-tier
// priority order of spec §4.10. hasTools reports whether the agent has any
// tools in its view, used only for the no-tools-with-structured-output
// quirk check.
func (p Policy) Select(cfg *models.AgentConfig, provider modelclient.Provider, hasTools bool, message string) (Kind, json.RawMessage) {
	if provider == nil || !provider.SupportsStructuredOutput() {
		return KindNone, nil
	}

	if cfg == nil {
		return KindNone, nil
	}

	if strings.EqualFold(cfg.Role, PlannerRole) && looksLikePlanRequest(message) {
		return KindPlan, PlanGenerationSchema
	}

	quirked := modelclient.HasQuirk(cfg.Model, modelclient.QuirkNoToolsWithStructuredOutput) && hasTools

	if p.ChannelEnabled && !quirked {
		return KindChannel, ChannelSchema
	}

	if !quirked {
		return KindContinuation, ContinuationSchema
	}

	return KindNone, nil
}
