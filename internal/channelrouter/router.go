// Package channelrouter implements the Channel Router (spec §4.4): it
// interprets raw model output — plain text, a {analysis,commentary,final}
// JSON object, or a continuation-wrapped `response` string — into ordered
// ChannelMessages with a monotonic per-session sequence number.
//
// Grounded on the teacher's streaming-chunk accumulation in
// internal/agent/loop.go (ResponseChunk forwarding to a channel) combined
// with the tagged-union response model this system uses instead of the
// original's dynamic dict dispatch (spec.md §9).
package channelrouter

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/nexus-contrib/agentmesh/pkg/models"
)

// VisibilityPrefs controls which non-final channels reach the client.
// `final` is always delivered (spec §4.4).
type VisibilityPrefs = models.VisibilityPrefs

// Router assigns sequence numbers and applies channel-interpretation rules
// for a single session. One Router instance is owned per session.
type Router struct {
	mu      sync.Mutex
	seq     uint64
	sessionID string
	agentID   string
	prefs   VisibilityPrefs

	// acc accumulates raw streaming text for the in-flight turn, used to
	// detect whether the output looks like structured (JSON) content.
	acc strings.Builder
	// finalSent tracks how much of a partial `final` substring has already
	// been streamed, so repeated Feed calls don't re-emit bytes.
	finalSent int
}

// New returns a Router for one session.
func New(sessionID string, prefs VisibilityPrefs) *Router {
	return &Router{sessionID: sessionID, prefs: prefs}
}

// SetAgent records which agent is producing output, stamped onto emitted
// ChannelMessage metadata.
func (r *Router) SetAgent(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agentID = agentID
}

func (r *Router) nextSeq() uint64 {
	r.seq++
	return r.seq
}

// ResetTurn clears per-turn streaming accumulation state. Call at the start
// of each new model round-trip.
func (r *Router) ResetTurn() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acc.Reset()
	r.finalSent = 0
}

// structuredPayload is the shape the channel/continuation schemas produce.
type structuredPayload struct {
	Analysis     string                    `json:"analysis"`
	Commentary   string                    `json:"commentary"`
	Final        string                    `json:"final"`
	Response     string                    `json:"response"`
	Continuation *models.ContinuationState `json:"continuation"`
}

// Feed processes one streaming delta from the model. It returns the
// ChannelMessages to deliver to the client for this delta, which may be
// empty (output withheld pending more structure, or suppressed entirely
// because it looks like a tool-call payload).
//
// Feed never blocks on producing a complete parse — per the partial-JSON
// Open Question decision (SPEC_FULL.md), partial extraction is advisory
// only and the authoritative content is the non-partial `final` message
// emitted by Finish.
func (r *Router) Feed(delta string) []models.ChannelMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.acc.WriteString(delta)
	acc := r.acc.String()

	if strings.Contains(acc, `"tool_calls"`) {
		return nil
	}

	looksStructured := strings.HasPrefix(strings.TrimSpace(acc), "{") &&
		(strings.Contains(acc, `"analysis"`) || strings.Contains(acc, `"commentary"`) || strings.Contains(acc, `"final"`) || strings.Contains(acc, `"response"`))
	if !looksStructured {
		msg := r.emit(models.ChannelFinal, delta, true)
		return []models.ChannelMessage{msg}
	}

	partial, ok := extractPartialFinal(acc)
	if !ok || len(partial) <= r.finalSent {
		return nil
	}
	chunk := partial[r.finalSent:]
	r.finalSent = len(partial)
	if chunk == "" {
		return nil
	}
	return []models.ChannelMessage{r.emit(models.ChannelFinal, chunk, true)}
}

// extractPartialFinal looks for a `"final":"...` fragment in a possibly
// incomplete JSON document and returns the JSON-escape-decoded text seen so
// far. Escaped-quote edge cases may under- or over-truncate the preview;
// this is documented as advisory-only, not corrected (Open Question
// decision 2).
func extractPartialFinal(acc string) (string, bool) {
	key := `"final":"`
	idx := strings.Index(acc, key)
	if idx < 0 {
		return "", false
	}
	start := idx + len(key)
	rest := acc[start:]

	var out strings.Builder
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if c == '\\' && i+1 < len(rest) {
			switch rest[i+1] {
			case 'n':
				out.WriteByte('\n')
			case 't':
				out.WriteByte('\t')
			case '"':
				out.WriteByte('"')
			case '\\':
				out.WriteByte('\\')
			default:
				out.WriteByte(rest[i+1])
			}
			i++
			continue
		}
		if c == '"' {
			return out.String(), true
		}
		out.WriteByte(c)
	}
	return out.String(), true
}

// Finish interprets the complete, non-streamed model output for a turn and
// emits the final set of ChannelMessages per spec §4.4's rules: plain text
// becomes one `final` message; a structured object becomes one message per
// non-empty channel in (analysis, commentary, final) order; a `response`
// field is treated as plain text, recursively.
func (r *Router) Finish(raw string) ([]models.ChannelMessage, *models.ContinuationState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var payload structuredPayload
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
			return r.emitStructured(payload)
		}
	}
	return []models.ChannelMessage{r.emit(models.ChannelFinal, raw, false)}, nil
}

func (r *Router) emitStructured(p structuredPayload) ([]models.ChannelMessage, *models.ContinuationState) {
	if p.Response != "" && p.Analysis == "" && p.Commentary == "" && p.Final == "" {
		inner := strings.TrimSpace(p.Response)
		if strings.HasPrefix(inner, "{") {
			var nested structuredPayload
			if err := json.Unmarshal([]byte(inner), &nested); err == nil {
				msgs, cont := r.emitStructured(nested)
				if p.Continuation != nil {
					cont = p.Continuation
				}
				return msgs, cont
			}
		}
		return []models.ChannelMessage{r.emit(models.ChannelFinal, p.Response, false)}, p.Continuation
	}

	var out []models.ChannelMessage
	if p.Analysis != "" {
		out = append(out, r.emit(models.ChannelAnalysis, p.Analysis, false))
	}
	if p.Commentary != "" {
		out = append(out, r.emit(models.ChannelCommentary, p.Commentary, false))
	}
	if p.Final != "" {
		out = append(out, r.emit(models.ChannelFinal, p.Final, false))
	}
	if len(out) == 0 && p.Response != "" {
		out = append(out, r.emit(models.ChannelFinal, p.Response, false))
	}
	return out, p.Continuation
}

func (r *Router) emit(ch models.Channel, content string, partial bool) models.ChannelMessage {
	return models.ChannelMessage{
		Sequence: int64(r.nextSeq()),
		Channel:  ch,
		Content:  content,
		Metadata: models.ChannelMessageMeta{
			Timestamp: time.Now(),
			AgentID:   r.agentID,
			SessionID: r.sessionID,
			IsPartial: partial,
		},
	}
}

// Deliverable filters msgs by the router's visibility preferences. `final`
// is always delivered; `analysis`/`commentary` are gated by prefs.
func (r *Router) Deliverable(msgs []models.ChannelMessage) []models.ChannelMessage {
	r.mu.Lock()
	prefs := r.prefs
	r.mu.Unlock()

	out := make([]models.ChannelMessage, 0, len(msgs))
	for _, m := range msgs {
		if prefs.Allows(m.Channel) {
			out = append(out, m)
		}
	}
	return out
}

// SetVisibility updates the session's channel visibility preferences.
func (r *Router) SetVisibility(prefs VisibilityPrefs) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefs = prefs
}
