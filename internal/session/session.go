// Package session implements the Session (C9): the entity binding one
// client connection to its agents, driving turns through internal/agentrt,
// and handling slash commands and file references inline in user messages.
//
// Grounded on the teacher's session-locking discipline in
// internal/sessions/locker.go (one mutex per live session, held for the
// duration of a turn) generalized here to a single in-process
// sync.Mutex per Session rather than a pluggable local/DB-backed Locker —
// this runtime has no multi-process deployment story (spec §5 names only
// "parallel threads of execution at the session level").
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexus-contrib/agentmesh/internal/agentrt"
	"github.com/nexus-contrib/agentmesh/internal/channelrouter"
	"github.com/nexus-contrib/agentmesh/internal/continuation"
	"github.com/nexus-contrib/agentmesh/internal/mailbox"
	"github.com/nexus-contrib/agentmesh/internal/modelclient"
	"github.com/nexus-contrib/agentmesh/internal/prompts"
	"github.com/nexus-contrib/agentmesh/internal/structuredoutput"
	"github.com/nexus-contrib/agentmesh/internal/switching"
	"github.com/nexus-contrib/agentmesh/internal/tools"
	"github.com/nexus-contrib/agentmesh/pkg/models"
)

// NotificationSink receives the out-of-band notifications a Session emits
// (spec §6): agent.created, agent.switched, context.updated,
// continuation.progress, session.saved/loaded, errors. Delivery is
// best-effort; a nil sink disables notifications entirely.
type NotificationSink interface {
	Notify(method string, params map[string]any)
}

// Registry resolves AgentConfig by id for lazy agent creation
// (switchAgent / startSession's default agent).
type Registry interface {
	Get(agentID string) (*models.AgentConfig, bool)
	Default() (*models.AgentConfig, bool)
	Names() map[string]string
}

// Deps bundles the process-wide collaborators a Session needs, shared
// across every session in the process (spec §5 "shared across all
// sessions").
type Deps struct {
	Registry  Registry
	Tools     *tools.Registry
	Mailbox   *mailbox.Mailbox
	Prompts   *prompts.Assembler
	Providers map[string]modelclient.Provider
	Workspace string
	Log       *slog.Logger
	Metrics   MetricsRecorder
	Snapshots SnapshotStore
	// SchemaPolicy drives structured-output schema selection (spec §4.10)
	// for every agent this session creates. The zero Policy requests no
	// schema beyond provider defaults.
	SchemaPolicy structuredoutput.Policy
}

// SnapshotStore is the subset of *snapshot.Store a Session persists to
// when opt-in durable snapshotting is configured. A nil Snapshots leaves
// /save and /load writing plain JSON files only (spec.md's Non-goals:
// "beyond opt-in snapshotting").
type SnapshotStore interface {
	Save(ctx context.Context, sessionID, userID string, data []byte, savedAt time.Time) error
	Load(ctx context.Context, sessionID string) ([]byte, error)
}

// MetricsRecorder is the subset of *observability.Metrics a Session and
// its agents report to. Kept narrow so this package never imports
// internal/observability directly.
type MetricsRecorder interface {
	agentrt.RequestRecorder
	RecordChannelMessage(channel string)
}

// Session is one client connection's conversational state.
type Session struct {
	ID        string
	UserID    string
	Status    models.SessionStatus
	Workspace string

	deps Deps
	sink NotificationSink

	mu                sync.Mutex // serializes turns, per spec §5
	agents            map[string]*agentrt.Agent
	activeAgentID     string
	contDepth         int
	introducedAgents  map[string]bool
	switchStack       []models.SwitchFrame
	switchHandler     *switching.Handler
	debugOptions      map[string]bool
	debugEnabled      bool
	channelStats      channelStats
	visibility        models.VisibilityPrefs
	history           []models.ChannelMessage
	cancel            context.CancelFunc
}

// maxHistoryRetained bounds the in-memory channel.history buffer per
// session; spec.md's Non-goals exclude durable cross-restart history, so
// this is a bounded ring, not an unbounded log.
const maxHistoryRetained = 1000

type channelStats struct {
	Analysis   int
	Commentary int
	Final      int
}

// New creates a session bound to deps, with status Starting.
func New(userID string, deps Deps, sink NotificationSink) *Session {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return &Session{
		ID:               uuid.NewString(),
		UserID:           userID,
		Status:           models.SessionStarting,
		Workspace:        deps.Workspace,
		deps:             deps,
		sink:             sink,
		agents:           make(map[string]*agentrt.Agent),
		introducedAgents: make(map[string]bool),
		debugOptions:     make(map[string]bool),
		switchHandler:    switching.NewHandler(),
	}
}

func (s *Session) notify(method string, params map[string]any) {
	if s.sink == nil {
		return
	}
	if params == nil {
		params = map[string]any{}
	}
	params["sessionId"] = s.ID
	s.sink.Notify(method, params)
}

// Start creates the default agent and marks the session Active
// (spec §4.9 startSession).
func (s *Session) Start(systemPromptOverride string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.deps.Registry.Default()
	if !ok {
		return fmt.Errorf("session: no default agent configured")
	}
	cfg = cfg.Clone()
	if systemPromptOverride != "" {
		cfg.SystemPrompt = systemPromptOverride
	}
	if _, err := s.activateLocked(cfg); err != nil {
		return err
	}
	s.Status = models.SessionActive
	return nil
}

// activateLocked creates (if absent) and marks active the agent described
// by cfg. Caller must hold s.mu.
func (s *Session) activateLocked(cfg *models.AgentConfig) (*agentrt.Agent, error) {
	id := models.CanonicalID(cfg.ID)
	agent, exists := s.agents[id]
	if !exists {
		provider, ok := s.deps.Providers[cfg.Provider]
		if !ok {
			return nil, fmt.Errorf("session: unknown provider %q for agent %q", cfg.Provider, id)
		}
		router := channelrouter.New(s.ID, s.visibility)
		router.SetAgent(id)
		contn := continuation.New(continuation.DefaultMaxDepth)
		contn.SetDepth(s.contDepth)
		agent = agentrt.New(cfg, s.deps.Tools, provider, router, contn, s.makeSwitchConsult(id))
		agent.SetSchemaPolicy(s.deps.SchemaPolicy)
		if s.deps.Metrics != nil {
			agent.SetMetrics(s.deps.Metrics)
		}
		s.agents[id] = agent
		s.notify("agent.created", map[string]any{"agentId": id, "name": cfg.Name})
	}
	s.activeAgentID = id
	return agent, nil
}

// makeSwitchConsult returns the SwitchConsult hook bound to callerAgentID,
// bridging agentrt's tool-result round to the Agent-Switch Handler (C8)
// without agentrt importing switching directly.
func (s *Session) makeSwitchConsult(callerAgentID string) agentrt.SwitchConsult {
	return func(ctx context.Context, calls []models.ToolCall, results []models.ToolResult) string {
		for _, res := range results {
			target, ok := switchHintFrom(res)
			if !ok {
				continue
			}
			reply := s.switchHandler.Switch(s, s.deps.Registry, callerAgentID, target)
			return reply
		}
		return ""
	}
}

// switchHintFrom looks for a `_switch_to_agent` field in a tool result's
// content, per the Tool invariant in spec §3.
func switchHintFrom(res models.ToolResult) (string, bool) {
	var probe struct {
		SwitchTo string `json:"_switch_to_agent"`
	}
	if res.Content == "" {
		return "", false
	}
	if err := jsonUnmarshalLenient(res.Content, &probe); err != nil || probe.SwitchTo == "" {
		return "", false
	}
	return probe.SwitchTo, true
}

// SwitchAgent satisfies switching.SessionPort.
func (s *Session) SwitchAgent(agentID string) error {
	cfg, ok := s.deps.Registry.Get(agentID)
	if !ok {
		return fmt.Errorf("session: unknown agent %q", agentID)
	}
	if cfg.SystemPrompt == "" {
		if rendered, err := s.deps.Prompts.Assemble(prompts.AssembleOptions{Category: "agents", Name: agentID}); err == nil {
			cfg = cfg.Clone()
			cfg.SystemPrompt = rendered
		}
	}
	if _, err := s.activateLocked(cfg); err != nil {
		return err
	}
	s.notify("agent.switched", map[string]any{"agentId": agentID})
	return nil
}

// SendUserMessageAsContinuation satisfies switching.SessionPort: delivers a
// synthesized notification message to the now-active agent as a
// continuation turn, returning its reply text.
func (s *Session) SendUserMessageAsContinuation(agentID string, message string) (string, error) {
	agent, ok := s.agents[models.CanonicalID(agentID)]
	if !ok {
		return "", fmt.Errorf("session: agent %q not active", agentID)
	}
	result := agent.Process(context.Background(), message, nil, agentrt.Options{})
	if result.Error != nil {
		return "", result.Error
	}
	return result.Response, nil
}

// ContinuationDepth / SetContinuationDepth satisfy switching.SessionPort.
func (s *Session) ContinuationDepth() int      { return s.contDepth }
func (s *Session) SetContinuationDepth(d int) { s.contDepth = d }

// ActiveAgentID reports the currently active agent, or "" if none.
func (s *Session) ActiveAgentID() string { return s.activeAgentID }

// SendUserMessage is the primary turn driver (spec §4.9). It acquires the
// session's turn lock for its entire duration, including tool execution,
// continuation rounds, and nested switches (spec §5).
func (s *Session) SendUserMessage(ctx context.Context, message string, stream agentrt.StreamCallback) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reply, handled, err := s.handleSlashCommand(message); handled {
		return reply, err
	}

	resolved, refs := resolveFileReferences(message, s.Workspace)
	if len(refs) > 0 {
		s.notify("context.updated", map[string]any{"references": refs})
	}

	agent, ok := s.agents[s.activeAgentID]
	if !ok {
		return "", fmt.Errorf("session: no active agent")
	}

	turnCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer func() { s.cancel = nil }()

	result := agent.Process(turnCtx, resolved, func(m models.ChannelMessage) {
		if stream != nil && s.visibility.Allows(m.Channel) {
			stream(m)
		}
	}, agentrt.Options{
		Progress: func(iteration, maxIterations int) {
			s.notify("continuation.progress", map[string]any{
				"agent_id":       s.activeAgentID,
				"iteration":      iteration,
				"max_iterations": maxIterations,
			})
		},
	})

	// result.Messages carries the non-partial analysis/commentary/final
	// ChannelMessages the Channel Router finalized this turn (spec §4.4),
	// distinct from the partial deltas streamed above. These are the ones
	// that count toward channel.stats and channel.history.
	for _, m := range result.Messages {
		s.countChannel(m.Channel)
		s.recordHistory(m)
		if stream != nil && s.visibility.Allows(m.Channel) {
			stream(m)
		}
	}

	if result.Error != nil {
		s.notify("session.error", map[string]any{"reason": result.Error.Error()})
		return "", result.Error
	}

	reply := mailbox.Annotate(result.Response, s.deps.Mailbox, s.activeAgentID)
	return reply, nil
}

// Stop cancels any in-flight turn cooperatively and marks the session
// Stopped (spec §5 "stopSession").
func (s *Session) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.Status = models.SessionStopped
	s.mu.Unlock()
}

func (s *Session) countChannel(ch models.Channel) {
	switch ch {
	case models.ChannelAnalysis:
		s.channelStats.Analysis++
	case models.ChannelCommentary:
		s.channelStats.Commentary++
	case models.ChannelFinal:
		s.channelStats.Final++
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordChannelMessage(string(ch))
	}
}

// Stats returns a snapshot of this session's per-channel emission counts.
func (s *Session) Stats() (analysis, commentary, final int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelStats.Analysis, s.channelStats.Commentary, s.channelStats.Final
}

// recordHistory appends m to the bounded channel.history ring. Caller must
// hold s.mu (invoked only from within the turn lock).
func (s *Session) recordHistory(m models.ChannelMessage) {
	s.history = append(s.history, m)
	if len(s.history) > maxHistoryRetained {
		s.history = s.history[len(s.history)-maxHistoryRetained:]
	}
}

// SetVisibility updates the per-session channel visibility preference
// (spec §4.4, §6 channel.updateVisibility). `final` is always delivered
// regardless of this setting.
func (s *Session) SetVisibility(prefs models.VisibilityPrefs) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visibility = prefs
	for _, agent := range s.agents {
		agent.SetVisibility(prefs)
	}
}

// History returns the channel.history result (spec §6): messages filtered
// to the requested channels (or all, if channels is empty) and to
// sequence numbers > sinceSequence, most-recent-first-truncated to limit
// (0 means unbounded). Per the Open Question decision in SPEC_FULL.md,
// this filters by the visibility preference active now, not retroactively
// by whatever was active when each message was emitted.
func (s *Session) History(channels []models.Channel, limit int, sinceSequence int64) ([]models.ChannelMessage, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[models.Channel]bool, len(channels))
	for _, ch := range channels {
		want[ch] = true
	}

	var out []models.ChannelMessage
	for _, m := range s.history {
		if m.Sequence <= sinceSequence {
			continue
		}
		if len(want) > 0 && !want[m.Channel] {
			continue
		}
		if !s.visibility.Allows(m.Channel) {
			continue
		}
		out = append(out, m)
	}
	total := len(out)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, total
}

// AgentList renders agent.list's result shape (spec §6).
func (s *Session) AgentList() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		cfg := s.agents[id].Config
		out = append(out, map[string]any{
			"agent_id":    cfg.ID,
			"name":        cfg.Name,
			"description": cfg.Description,
			"color":       cfg.Color,
			"shortcut":    cfg.Shortcut,
			"icon":        cfg.Icon,
		})
	}
	return out
}
