package sessionmgr

import (
	"context"
	"testing"

	"github.com/nexus-contrib/agentmesh/internal/agentregistry"
	"github.com/nexus-contrib/agentmesh/internal/mailbox"
	"github.com/nexus-contrib/agentmesh/internal/modelclient"
	"github.com/nexus-contrib/agentmesh/internal/prompts"
	"github.com/nexus-contrib/agentmesh/internal/session"
	"github.com/nexus-contrib/agentmesh/internal/tools"
	"github.com/nexus-contrib/agentmesh/pkg/models"
)

// stubProvider returns a single "hello" chunk for every call, enough to
// exercise Session.Start without a real model backend.
type stubProvider struct{}

func (stubProvider) Name() string                  { return "stub" }
func (stubProvider) SupportsTools() bool            { return false }
func (stubProvider) SupportsStructuredOutput() bool { return false }
func (stubProvider) Complete(_ context.Context, _ *modelclient.Request) (<-chan *modelclient.Chunk, error) {
	ch := make(chan *modelclient.Chunk, 2)
	ch <- &modelclient.Chunk{Text: "hello"}
	ch <- &modelclient.Chunk{Done: true}
	close(ch)
	return ch, nil
}

func testDeps(t *testing.T) session.Deps {
	t.Helper()
	reg := agentregistry.New([]models.AgentConfig{{ID: "a", Name: "Alice", Provider: "stub"}}, "a")
	return session.Deps{
		Registry:  reg,
		Tools:     tools.NewRegistry(nil),
		Mailbox:   mailbox.New(),
		Prompts:   prompts.NewAssembler(nil),
		Providers: map[string]modelclient.Provider{"stub": stubProvider{}},
		Workspace: t.TempDir(),
	}
}

func TestManager_CreateGetDestroy(t *testing.T) {
	m := New(nil)
	sess, err := m.Create("u1", testDeps(t), nil, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", m.Count())
	}
	got, ok := m.Get(sess.ID)
	if !ok || got != sess {
		t.Fatalf("Get(%q) = %v, %v", sess.ID, got, ok)
	}

	m.Destroy(sess.ID)
	if m.Count() != 0 {
		t.Fatalf("Count() after Destroy = %d, want 0", m.Count())
	}
	if _, ok := m.Get(sess.ID); ok {
		t.Fatal("Get should fail after Destroy")
	}
}

func TestManager_DestroyUnknownIsNoop(t *testing.T) {
	m := New(nil)
	m.Destroy("does-not-exist")
}

func TestManager_Each(t *testing.T) {
	m := New(nil)
	a, _ := m.Create("u1", testDeps(t), nil, "")
	b, _ := m.Create("u2", testDeps(t), nil, "")

	seen := map[string]bool{}
	m.Each(func(s *session.Session) { seen[s.ID] = true })
	if !seen[a.ID] || !seen[b.ID] {
		t.Fatalf("Each did not visit both sessions: %v", seen)
	}
}
