package rpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nexus-contrib/agentmesh/internal/mailbox"
	"github.com/nexus-contrib/agentmesh/internal/modelclient"
	"github.com/nexus-contrib/agentmesh/internal/prompts"
	"github.com/nexus-contrib/agentmesh/internal/session"
	"github.com/nexus-contrib/agentmesh/internal/sessionmgr"
	"github.com/nexus-contrib/agentmesh/internal/tools"
	"github.com/nexus-contrib/agentmesh/pkg/models"
)

type fakeRegistry struct {
	cfgs map[string]*models.AgentConfig
}

func (r *fakeRegistry) Get(id string) (*models.AgentConfig, bool) {
	c, ok := r.cfgs[models.CanonicalID(id)]
	return c, ok
}
func (r *fakeRegistry) Default() (*models.AgentConfig, bool) { return r.Get("a") }
func (r *fakeRegistry) Names() map[string]string {
	out := make(map[string]string, len(r.cfgs))
	for id, c := range r.cfgs {
		out[id] = c.Name
	}
	return out
}

type fakeProvider struct{}

func (fakeProvider) Name() string                  { return "fake" }
func (fakeProvider) SupportsTools() bool            { return false }
func (fakeProvider) SupportsStructuredOutput() bool { return false }
func (fakeProvider) Complete(ctx context.Context, req *modelclient.Request) (<-chan *modelclient.Chunk, error) {
	ch := make(chan *modelclient.Chunk, 2)
	ch <- &modelclient.Chunk{Text: "hi from " + req.Model}
	ch <- &modelclient.Chunk{Done: true}
	close(ch)
	return ch, nil
}

func newTestServer(t *testing.T) (*Server, *conn1) {
	t.Helper()
	reg := &fakeRegistry{cfgs: map[string]*models.AgentConfig{
		"a": {ID: "a", Name: "Alice", Provider: "fake", Model: "m1"},
		"b": {ID: "b", Name: "Bob", Provider: "fake", Model: "m1"},
	}}
	deps := func() session.Deps {
		return session.Deps{
			Registry:  reg,
			Tools:     tools.NewRegistry(nil),
			Mailbox:   mailbox.New(),
			Prompts:   prompts.NewAssembler(nil),
			Providers: map[string]modelclient.Provider{"fake": fakeProvider{}},
			Workspace: t.TempDir(),
		}
	}
	srv := NewServer(Deps{
		Sessions:  sessionmgr.New(nil),
		AgentDeps: deps,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c := &conn1{server: srv, ctx: ctx, cancel: cancel, send: make(chan []byte, 64)}
	return srv, c
}

func rawParams(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return b
}

func TestHandle_UnknownMethod(t *testing.T) {
	_, c := newTestServer(t)
	_, rpcErr := c.handle(Request{Method: "nonexistent.method"})
	if rpcErr == nil || rpcErr.Code != CodeMethodNotFound {
		t.Fatalf("expected CodeMethodNotFound, got %+v", rpcErr)
	}
}

func TestHandle_StartSessionThenSendMessage(t *testing.T) {
	_, c := newTestServer(t)

	startResult, rpcErr := c.handle(Request{Method: "startSession", Params: rawParams(t, startSessionParams{UserID: "u1"})})
	if rpcErr != nil {
		t.Fatalf("startSession: %v", rpcErr)
	}
	out := startResult.(map[string]any)
	sessionID, _ := out["sessionId"].(string)
	if sessionID == "" {
		t.Fatalf("expected a non-empty sessionId, got %+v", out)
	}

	currentResult, rpcErr := c.handle(Request{Method: "session.current_agent", Params: rawParams(t, sessionIDParams{SessionID: sessionID})})
	if rpcErr != nil {
		t.Fatalf("session.current_agent: %v", rpcErr)
	}
	if got := currentResult.(map[string]any)["current_agent"]; got != "a" {
		t.Fatalf("expected default agent \"a\", got %v", got)
	}

	sendResult, rpcErr := c.handle(Request{Method: "sendUserMessage", Params: rawParams(t, sendUserMessageParams{SessionID: sessionID, Message: "hello"})})
	if rpcErr != nil {
		t.Fatalf("sendUserMessage: %v", rpcErr)
	}
	resp := sendResult.(map[string]any)
	if resp["status"] != models.MessageOK {
		t.Fatalf("expected MessageOK status, got %+v", resp)
	}
	if resp["ai_response"] == "" {
		t.Fatalf("expected a non-empty ai_response, got %+v", resp)
	}
}

func TestHandle_SessionNotFound(t *testing.T) {
	_, c := newTestServer(t)
	_, rpcErr := c.handle(Request{Method: "session.current_agent", Params: rawParams(t, sessionIDParams{SessionID: "ghost"})})
	if rpcErr == nil || rpcErr.Code != CodeSessionNotFound {
		t.Fatalf("expected CodeSessionNotFound, got %+v", rpcErr)
	}
}

func TestHandle_SwitchAgent(t *testing.T) {
	_, c := newTestServer(t)
	startResult, _ := c.handle(Request{Method: "startSession", Params: rawParams(t, startSessionParams{UserID: "u1"})})
	sessionID := startResult.(map[string]any)["sessionId"].(string)

	result, rpcErr := c.handle(Request{Method: "session.switch_agent", Params: rawParams(t, switchAgentParams{AgentID: "b", SessionID: sessionID})})
	if rpcErr != nil {
		t.Fatalf("session.switch_agent: %v", rpcErr)
	}
	out := result.(map[string]any)
	if out["success"] != true {
		t.Fatalf("expected success=true, got %+v", out)
	}
	if out["current_agent"] != "b" {
		t.Fatalf("expected current_agent=b, got %+v", out)
	}
}

func TestHandle_AsyncWithoutManagerConfigured(t *testing.T) {
	_, c := newTestServer(t)
	_, rpcErr := c.handle(Request{Method: "async.startAgent", Params: rawParams(t, asyncAgentIDParams{AgentID: "a"})})
	if rpcErr == nil || rpcErr.Code != CodeInternalError {
		t.Fatalf("expected CodeInternalError when async manager is unconfigured, got %+v", rpcErr)
	}
}

func TestBindParams_EmptyIsZeroValue(t *testing.T) {
	p, rpcErr := bindParams[sessionIDParams](nil)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	if p.SessionID != "" {
		t.Fatalf("expected zero value, got %+v", p)
	}
}

func TestBindParams_InvalidJSON(t *testing.T) {
	_, rpcErr := bindParams[sessionIDParams](json.RawMessage(`{not json`))
	if rpcErr == nil || rpcErr.Code != CodeInvalidParams {
		t.Fatalf("expected CodeInvalidParams, got %+v", rpcErr)
	}
}
