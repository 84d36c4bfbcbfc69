package session

import (
	"context"
	"testing"

	"github.com/nexus-contrib/agentmesh/internal/mailbox"
	"github.com/nexus-contrib/agentmesh/internal/modelclient"
	"github.com/nexus-contrib/agentmesh/internal/prompts"
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

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	reg := &fakeRegistry{cfgs: map[string]*models.AgentConfig{
		"a": {ID: "a", Name: "Alice", Provider: "fake", Model: "m1"},
		"b": {ID: "b", Name: "Bob", Provider: "fake", Model: "m1"},
	}}
	return Deps{
		Registry:  reg,
		Tools:     tools.NewRegistry(nil),
		Mailbox:   mailbox.New(),
		Prompts:   prompts.NewAssembler(nil),
		Providers: map[string]modelclient.Provider{"fake": fakeProvider{}},
		Workspace: t.TempDir(),
	}
}

func TestSession_StartAndSendMessage(t *testing.T) {
	s := New("user-1", newTestDeps(t), nil)
	if err := s.Start(""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	reply, err := s.SendUserMessage(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("SendUserMessage: %v", err)
	}
	if reply == "" {
		t.Fatal("expected non-empty reply")
	}
}

func TestSession_ClearCommand(t *testing.T) {
	s := New("user-1", newTestDeps(t), nil)
	s.Start("")
	s.SendUserMessage(context.Background(), "hello", nil)
	reply, err := s.SendUserMessage(context.Background(), "/clear", nil)
	if err != nil {
		t.Fatalf("/clear: %v", err)
	}
	if reply == "" {
		t.Fatal("expected confirmation reply")
	}
}

func TestSession_HelpCommand(t *testing.T) {
	s := New("user-1", newTestDeps(t), nil)
	s.Start("")
	reply, err := s.SendUserMessage(context.Background(), "/help", nil)
	if err != nil {
		t.Fatalf("/help: %v", err)
	}
	if reply != helpText {
		t.Fatalf("reply = %q", reply)
	}
}

func TestSession_SaveAndLoad(t *testing.T) {
	s := New("user-1", newTestDeps(t), nil)
	s.Start("")
	s.SendUserMessage(context.Background(), "hello", nil)

	path := s.defaultSnapshotPath()
	if _, err := s.SendUserMessage(context.Background(), "/save "+path, nil); err != nil {
		t.Fatalf("/save: %v", err)
	}

	s2 := New("user-1", newTestDeps(t), nil)
	s2.Start("")
	if _, err := s2.SendUserMessage(context.Background(), "/load "+path, nil); err != nil {
		t.Fatalf("/load: %v", err)
	}
}

func TestSession_SwitchAgent(t *testing.T) {
	s := New("user-1", newTestDeps(t), nil)
	s.Start("")
	if err := s.SwitchAgent("b"); err != nil {
		t.Fatalf("SwitchAgent: %v", err)
	}
	if s.ActiveAgentID() != "b" {
		t.Fatalf("active agent = %q", s.ActiveAgentID())
	}
}

func TestResolveFileReferences_AbsentFileLeftLiteral(t *testing.T) {
	out, refs := resolveFileReferences("check @missing.txt please", t.TempDir())
	if out != "check @missing.txt please" {
		t.Fatalf("out = %q", out)
	}
	if len(refs) != 0 {
		t.Fatalf("expected no resolved references, got %v", refs)
	}
}
