package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nexus-contrib/agentmesh/pkg/models"
)

type mockTool struct {
	name     string
	category string
	tags     []string
	sets     []string
	execFunc func(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

func (m *mockTool) Name() string              { return m.name }
func (m *mockTool) Description() string       { return "mock tool " + m.name }
func (m *mockTool) Category() string          { return m.category }
func (m *mockTool) Tags() []string            { return m.tags }
func (m *mockTool) Sets() []string            { return m.sets }
func (m *mockTool) Schema() json.RawMessage   { return json.RawMessage(`{"type":"object"}`) }
func (m *mockTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, params)
	}
	return &ToolResult{Content: "ok"}, nil
}

func declareMock(r *Registry, built *int, t mockTool) {
	r.Declare(Spec{
		Name:     t.name,
		Category: t.category,
		Tags:     t.tags,
		Sets:     t.sets,
		New: func() (Tool, error) {
			if built != nil {
				*built++
			}
			tc := t
			return &tc, nil
		},
	})
}

func TestRegistry_GetBuildsLazily(t *testing.T) {
	r := NewRegistry(nil)
	built := 0
	declareMock(r, &built, mockTool{name: "alpha"})

	if built != 0 {
		t.Fatalf("declared tool was built before first Get, built=%d", built)
	}
	if _, ok := r.Get("alpha"); !ok {
		t.Fatal("expected alpha to be found")
	}
	if built != 1 {
		t.Fatalf("built = %d, want 1", built)
	}
	if _, ok := r.Get("alpha"); !ok {
		t.Fatal("expected alpha to be found on second Get")
	}
	if built != 1 {
		t.Fatalf("built = %d after second Get, want 1 (no re-instantiation)", built)
	}
}

func TestRegistry_FilterForAgent(t *testing.T) {
	r := NewRegistry(nil)
	declareMock(r, nil, mockTool{name: "read_file", sets: []string{"fs"}, tags: []string{"readonly"}})
	declareMock(r, nil, mockTool{name: "write_file", sets: []string{"fs"}, tags: []string{"mutating"}})
	declareMock(r, nil, mockTool{name: "check_mail", sets: []string{"core"}})
	declareMock(r, nil, mockTool{name: "dangerous_shell", sets: []string{"shell"}})

	view := r.FilterForAgent(models.ToolFilters{
		ToolSets: []string{"fs"},
		Deny:     []string{"write_file"},
	})

	names := view.Names()
	if len(names) != 1 || names[0] != "read_file" {
		t.Fatalf("names = %v, want [read_file]", names)
	}

	full := r.FilterForAgent(models.ToolFilters{})
	if len(full.Names()) != 4 {
		t.Fatalf("agent with no positive filters should see full catalog minus deny, got %v", full.Names())
	}

	byTag := r.FilterForAgent(models.ToolFilters{Tags: []string{"mutating"}, Allow: []string{"check_mail"}})
	wantTag := map[string]bool{"write_file": true, "check_mail": true}
	for _, n := range byTag.Names() {
		if !wantTag[n] {
			t.Errorf("unexpected tool %q in tag+allow view", n)
		}
	}
	if len(byTag.Names()) != len(wantTag) {
		t.Fatalf("names = %v, want %v", byTag.Names(), wantTag)
	}
}

func TestRegistry_FilterForAgentIsStableAcrossCalls(t *testing.T) {
	r := NewRegistry(nil)
	declareMock(r, nil, mockTool{name: "a", sets: []string{"x"}})
	declareMock(r, nil, mockTool{name: "b", sets: []string{"x"}})

	v1 := r.FilterForAgent(models.ToolFilters{ToolSets: []string{"x"}})
	r.Declare(Spec{Name: "c", Sets: []string{"x"}, New: func() (Tool, error) {
		return &mockTool{name: "c", sets: []string{"x"}}, nil
	}})
	if len(v1.Names()) != 2 {
		t.Fatalf("a previously computed View must not observe later Declare calls, got %v", v1.Names())
	}
}

func TestRegistry_ExecuteNotFound(t *testing.T) {
	r := NewRegistry(nil)
	result, err := r.Execute(context.Background(), "missing", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError for missing tool")
	}
}

func TestRegistry_ExecuteConstructionFailure(t *testing.T) {
	r := NewRegistry(nil)
	r.Declare(Spec{
		Name: "broken",
		New: func() (Tool, error) {
			return nil, errors.New("boom")
		},
	})
	if _, ok := r.Get("broken"); ok {
		t.Fatal("expected broken tool to be omitted after construction failure")
	}
}

func TestRegistry_DescribeForModel(t *testing.T) {
	r := NewRegistry(nil)
	declareMock(r, nil, mockTool{name: "zeta", sets: []string{"core"}})
	declareMock(r, nil, mockTool{name: "alpha", sets: []string{"core"}})

	view := r.FilterForAgent(models.ToolFilters{ToolSets: []string{"core"}})
	descs := view.DescribeForModel()
	if len(descs) != 2 || descs[0].Name != "alpha" || descs[1].Name != "zeta" {
		t.Fatalf("descriptions not sorted by name: %v", descs)
	}
}
