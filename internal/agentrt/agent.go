// Package agentrt implements the Agent Instance (C6) and Agent Loop (C7):
// one call to Agent.Process executes one turn — a single model call, or a
// model call plus a tool-result round — against a fixed context, tool
// view, and continuation strategy (spec §4.6, §4.7).
//
// Grounded on the teacher's AgenticLoop state machine
// (internal/agent/loop.go: Stream → Execute Tools → Continue/Complete)
// adapted to this system's synchronous per-session turn model (no
// parallel tool executor — spec §4.7 step 5 executes tool calls "in
// declaration order") and its explicit ModelTurnResult tagged union
// (spec.md §9) instead of the teacher's ResponseChunk stream of mixed
// event kinds.
package agentrt

import (
	"context"
	"fmt"
	"time"

	"github.com/nexus-contrib/agentmesh/internal/channelrouter"
	"github.com/nexus-contrib/agentmesh/internal/continuation"
	"github.com/nexus-contrib/agentmesh/internal/modelclient"
	"github.com/nexus-contrib/agentmesh/internal/structuredoutput"
	"github.com/nexus-contrib/agentmesh/internal/tools"
	"github.com/nexus-contrib/agentmesh/internal/tools/mail"
	"github.com/nexus-contrib/agentmesh/pkg/models"
)

// StreamCallback receives ChannelMessages as they are produced, for
// clients that want incremental delivery. May be nil.
type StreamCallback func(models.ChannelMessage)

// SwitchConsult is called once per tool-execution batch so the caller can
// run the Agent-Switch Handler (C8) without this package importing it
// directly (it would otherwise need the Session port switching.Handler
// already depends on, creating a cycle). Returns extra text to append to
// the turn's response, or "" if no switch occurred.
type SwitchConsult func(ctx context.Context, toolCalls []models.ToolCall, results []models.ToolResult) string

// Options adjusts a single Process call, composing over AgentConfig
// defaults (spec §4.6 "merging per-call options over agent defaults").
type Options struct {
	Temperature   *float64
	MaxTokens     *int
	StoreMessages *bool // nil means true; point at false to suppress context append
	// Progress, if set, is called once per continuation re-entry (spec §6
	// continuation.progress), after the round that requested CONTINUE and
	// before the re-entry round runs. iteration is the continuation depth
	// reached (1 on the first re-entry); maxIterations is the controller's
	// depth ceiling.
	Progress func(iteration, maxIterations int)
}

// Result is the outcome of one Agent.Process call (spec §4.6).
type Result struct {
	Response     string
	ToolCalls    []models.ToolCall
	FinishReason string
	Error        error
	Continuation *models.ContinuationState
	// Messages holds every non-partial ChannelMessage the Channel Router
	// emitted for this turn (one per populated analysis/commentary/final
	// channel, spec §4.4), in emission order across every round including
	// continuation re-entries. Callers deliver these to the client as
	// ChannelMessageNotifications; they are never streamed mid-turn.
	Messages []models.ChannelMessage
}

// Agent is one C6 instance: context, config, tool view, and continuation
// strategy bound together behind a single Process entry point.
type Agent struct {
	Config  *models.AgentConfig
	Context *models.Context

	provider modelclient.Provider
	toolView *tools.View
	registry *tools.Registry
	router   *channelrouter.Router
	contn    *continuation.Controller
	onSwitch SwitchConsult
	metrics  RequestRecorder
	schemas  structuredoutput.Policy
	turnMsg  string
}

// RequestRecorder receives one observation per model provider call.
// Satisfied by *observability.Metrics; kept narrow so this package never
// imports internal/observability directly.
type RequestRecorder interface {
	RecordModelRequest(provider, model, status string, durationSeconds float64)
	RecordContinuationDepth(depth int)
}

// SetMetrics attaches a recorder for model-call and continuation-depth
// observations. A nil recorder (the default) disables recording.
func (a *Agent) SetMetrics(m RequestRecorder) {
	a.metrics = m
}

// SetSchemaPolicy attaches the structured-output schema policy (spec
// §4.10) this agent's model calls consult. The zero Policy (ChannelEnabled
// false) requests no schema beyond provider defaults.
func (a *Agent) SetSchemaPolicy(p structuredoutput.Policy) {
	a.schemas = p
}

// New constructs an Agent, resolving its tool view once (spec §4.6
// "Resolve tool view once at construction").
func New(cfg *models.AgentConfig, registry *tools.Registry, provider modelclient.Provider, router *channelrouter.Router, contn *continuation.Controller, onSwitch SwitchConsult) *Agent {
	ctx := models.NewContext(cfg.SystemPrompt)
	return &Agent{
		Config:   cfg,
		Context:  ctx,
		provider: provider,
		toolView: registry.FilterForAgent(cfg.Tools),
		registry: registry,
		router:   router,
		contn:    contn,
		onSwitch: onSwitch,
	}
}

// Clear resets the agent's context back to just its system prompt.
func (a *Agent) Clear() {
	a.Context = models.NewContext(a.Config.SystemPrompt)
}

// Snapshot returns a deep copy of the agent's context for persistence.
func (a *Agent) Snapshot() *models.Context {
	return a.Context.Clone()
}

// Restore replaces the agent's context with a previously snapshotted one.
func (a *Agent) Restore(ctx *models.Context) {
	if ctx != nil {
		a.Context = ctx
	}
}

// SetVisibility updates this agent's Channel Router visibility preferences,
// which govern partial-delta streaming (spec §4.4). Session.SetVisibility
// keeps this in sync with the session-level preference used to gate
// finalized ChannelMessages.
func (a *Agent) SetVisibility(prefs models.VisibilityPrefs) {
	a.router.SetVisibility(prefs)
}

func (a *Agent) generation(opts Options) (float64, int) {
	temp := a.Config.Generation.Temperature
	if opts.Temperature != nil {
		temp = *opts.Temperature
	}
	maxTokens := a.Config.Generation.MaxTokens
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}
	return temp, maxTokens
}

// Process executes one turn (spec §4.6, §4.7).
func (a *Agent) Process(ctx context.Context, message string, stream StreamCallback, opts Options) Result {
	storeMessages := true
	if opts.StoreMessages != nil && !*opts.StoreMessages {
		storeMessages = false
	}

	if storeMessages {
		a.Context.Append(models.ContextMessage{Role: models.RoleUser, Content: message, CreatedAt: time.Now()})
	}
	a.turnMsg = message

	result, err := a.runRound(ctx, stream, opts, 0)
	if err != nil {
		return Result{Error: err, FinishReason: "error"}
	}

	decision := a.contn.Evaluate(result.Continuation, result.Response)
	for decision.Continue {
		if opts.Progress != nil {
			opts.Progress(a.contn.Depth(), a.contn.MaxDepth)
		}
		a.Context.Append(models.ContextMessage{Role: models.RoleUser, Content: decision.Message, CreatedAt: time.Now()})
		a.turnMsg = decision.Message
		more, err := a.runRound(ctx, stream, opts, 0)
		if err != nil {
			result.Error = err
			break
		}
		result.Response += "\n\n" + more.Response
		result.ToolCalls = append(result.ToolCalls, more.ToolCalls...)
		result.Messages = append(result.Messages, more.Messages...)
		result.Continuation = more.Continuation
		decision = a.contn.Evaluate(result.Continuation, more.Response)
	}

	if a.metrics != nil {
		a.metrics.RecordContinuationDepth(a.contn.Depth())
	}
	return result
}

// runRound performs step 2-6 of spec §4.7: one model call, optionally
// followed by exactly one tool-result round (toolRounds bounds recursion
// to 1, matching "do NOT recurse further on tool-calls from the second
// round unless the Continuation Controller re-enters").
func (a *Agent) runRound(ctx context.Context, stream StreamCallback, opts Options, toolRounds int) (Result, error) {
	temp, maxTokens := a.generation(opts)
	_, schema := a.schemas.Select(a.Config, a.provider, len(a.toolView.Names()) > 0, a.turnMsg)
	req := &modelclient.Request{
		Model:          a.Config.Model,
		System:         a.Config.SystemPrompt,
		Messages:       toProviderMessages(a.Context.Messages),
		Tools:          toProviderTools(a.toolView),
		Temperature:    temp,
		MaxTokens:      maxTokens,
		ResponseSchema: schema,
	}

	callStart := time.Now()
	chunks, err := a.provider.Complete(ctx, req)
	if a.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		a.metrics.RecordModelRequest(a.provider.Name(), a.Config.Model, status, time.Since(callStart).Seconds())
	}
	if err != nil {
		return Result{}, fmt.Errorf("agentrt: model call: %w", err)
	}

	var text string
	var toolCalls []models.ToolCall
	a.router.ResetTurn()

	for chunk := range chunks {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}
		if chunk.Error != nil {
			return Result{}, fmt.Errorf("agentrt: stream: %w", chunk.Error)
		}
		if chunk.Text != "" {
			text += chunk.Text
			if stream != nil {
				for _, m := range a.router.Deliverable(a.router.Feed(chunk.Text)) {
					stream(m)
				}
			}
		}
		if chunk.ToolCall != nil {
			toolCalls = append(toolCalls, *chunk.ToolCall)
		}
		if chunk.Done {
			break
		}
	}

	a.Context.Append(models.ContextMessage{
		Role:      models.RoleAssistant,
		Content:   text,
		ToolCalls: toolCalls,
		CreatedAt: time.Now(),
	})

	if len(toolCalls) == 0 {
		return a.finish(text)
	}

	results := a.executeTools(ctx, toolCalls)
	for i, tc := range toolCalls {
		res := results[i]
		content := res.Content
		if res.IsError {
			content = res.Error
		}
		a.Context.Append(models.ContextMessage{
			Role:       models.RoleTool,
			Content:    content,
			ToolCallID: tc.ID,
			CreatedAt:  time.Now(),
		})
	}

	extra := ""
	if a.onSwitch != nil {
		extra = a.onSwitch(ctx, toolCalls, results)
	}

	if toolRounds >= 1 {
		out, err := a.finish(text + extra)
		out.ToolCalls = toolCalls
		return out, err
	}

	next, err := a.runRound(ctx, stream, opts, toolRounds+1)
	if err != nil {
		return Result{}, err
	}
	next.Response += extra
	next.ToolCalls = append(toolCalls, next.ToolCalls...)
	return next, nil
}

// executeTools runs each tool call in declaration order (spec §4.7 step
// 5). Tool errors become tool-role messages, never propagate out of the
// loop.
func (a *Agent) executeTools(ctx context.Context, calls []models.ToolCall) []models.ToolResult {
	ctx = mail.WithCaller(ctx, a.Config.ID)
	out := make([]models.ToolResult, len(calls))
	for i, tc := range calls {
		res, err := a.registry.Execute(ctx, tc.Name, tc.Input)
		if err != nil {
			out[i] = models.ToolResult{ToolCallID: tc.ID, IsError: true, Error: err.Error()}
			continue
		}
		out[i] = models.ToolResult{
			ToolCallID: tc.ID,
			Content:    res.Content,
			IsError:    res.IsError,
			Error:      res.Error,
		}
	}
	return out
}

func (a *Agent) finish(text string) (Result, error) {
	msgs, cont := a.router.Finish(text)
	response := text
	for _, m := range msgs {
		if m.Channel == models.ChannelFinal {
			response = m.Content
			break
		}
	}
	return Result{Response: response, FinishReason: "stop", Continuation: cont, Messages: msgs}, nil
}

func toProviderMessages(msgs []models.ContextMessage) []modelclient.Message {
	out := make([]modelclient.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == models.RoleSystem {
			continue
		}
		out = append(out, modelclient.Message{
			Role:       m.Role,
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		})
	}
	return out
}

func toProviderTools(view *tools.View) []modelclient.ToolSpec {
	descs := view.DescribeForModel()
	out := make([]modelclient.ToolSpec, len(descs))
	for i, d := range descs {
		out[i] = modelclient.ToolSpec{Name: d.Name, Description: d.Description, Schema: d.Schema}
	}
	return out
}
