package asyncagent

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nexus-contrib/agentmesh/internal/agentrt"
	"github.com/nexus-contrib/agentmesh/internal/channelrouter"
	"github.com/nexus-contrib/agentmesh/internal/continuation"
	"github.com/nexus-contrib/agentmesh/internal/modelclient"
	"github.com/nexus-contrib/agentmesh/internal/tools"
	"github.com/nexus-contrib/agentmesh/pkg/models"
)

type stubProvider struct{}

func (stubProvider) Name() string                  { return "stub" }
func (stubProvider) SupportsTools() bool            { return false }
func (stubProvider) SupportsStructuredOutput() bool { return false }
func (stubProvider) Complete(_ context.Context, _ *modelclient.Request) (<-chan *modelclient.Chunk, error) {
	ch := make(chan *modelclient.Chunk, 2)
	ch <- &modelclient.Chunk{Text: "done"}
	ch <- &modelclient.Chunk{Done: true}
	close(ch)
	return ch, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorkerAgent() *agentrt.Agent {
	cfg := &models.AgentConfig{ID: "w", Name: "Worker", Provider: "stub"}
	reg := tools.NewRegistry(testLogger())
	router := channelrouter.New("s1", models.VisibilityPrefs{})
	return agentrt.New(cfg, reg, stubProvider{}, router, continuation.New(0), nil)
}

func TestManager_CreateStartSendTaskProcesses(t *testing.T) {
	m := New(testLogger())
	w := m.CreateAgent("w", newTestWorkerAgent())
	if w.State() != StateIdle {
		t.Fatalf("initial state = %v, want IDLE", w.State())
	}
	if err := m.StartAgent("w"); err != nil {
		t.Fatalf("StartAgent: %v", err)
	}
	if err := m.SendTask("w", "do the thing"); err != nil {
		t.Fatalf("SendTask: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.State() == StateIdle && len(w.tasks) == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := m.StopAgent("w"); err != nil {
		t.Fatalf("StopAgent: %v", err)
	}
	if w.State() != StateStopped {
		t.Fatalf("state after StopAgent = %v, want STOPPED", w.State())
	}
}

func TestManager_SleepIgnoresTasksUntilWake(t *testing.T) {
	m := New(testLogger())
	w := m.CreateAgent("w", newTestWorkerAgent())
	if err := m.StartAgent("w"); err != nil {
		t.Fatalf("StartAgent: %v", err)
	}
	if err := m.SleepAgent("w", 0, []string{"ping"}); err != nil {
		t.Fatalf("SleepAgent: %v", err)
	}
	if w.State() != StateSleeping {
		t.Fatalf("state = %v, want SLEEPING", w.State())
	}
	if err := m.SendTask("w", "ignored while asleep"); err != nil {
		t.Fatalf("SendTask: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if w.State() != StateSleeping {
		t.Fatalf("state after queued task while sleeping = %v, want still SLEEPING", w.State())
	}

	m.BroadcastEvent(Event{Name: "ping"})
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && w.State() == StateSleeping {
		time.Sleep(5 * time.Millisecond)
	}
	if w.State() == StateSleeping {
		t.Fatal("expected BroadcastEvent to wake the worker")
	}
}

func TestManager_States(t *testing.T) {
	m := New(testLogger())
	m.CreateAgent("a", newTestWorkerAgent())
	m.CreateAgent("b", newTestWorkerAgent())
	states := m.States()
	if states["a"] != StateIdle || states["b"] != StateIdle {
		t.Fatalf("States() = %v, want both IDLE", states)
	}
}
