package prompts

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestAssembler_ResolvePriorityOrder(t *testing.T) {
	override := t.TempDir()
	appDefault := t.TempDir()

	writeFile(t, appDefault, "agents/coder.md", "default coder prompt")
	writeFile(t, override, "agents/coder.md", "override coder prompt")

	a := NewAssembler(nil, override, appDefault)
	got, err := a.Resolve("agents", "coder")
	if err != nil {
		t.Fatal(err)
	}
	if got != "override coder prompt" {
		t.Fatalf("Resolve = %q, want override to win", got)
	}
}

func TestAssembler_ResolveNotFound(t *testing.T) {
	a := NewAssembler(nil, t.TempDir())
	_, err := a.Resolve("agents", "missing")
	if !errors.Is(err, ErrPromptNotFound) {
		t.Fatalf("err = %v, want ErrPromptNotFound", err)
	}
}

func TestAssembler_AssembleOrderAndFiltering(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "agents/coder.md", "Base prompt for {{{agent_name}}}.")

	a := NewAssembler(nil, dir)
	out, err := a.Assemble(AssembleOptions{
		Category: "agents",
		Name:     "coder",
		Vars:     map[string]string{"agent_name": "Patricia"},
		Components: []Component{
			{Name: "zzz-continuation", Content: "Continuation protocol text."},
			{Name: "aaa-channels", Content: "Channel protocol text."},
		},
		ToolInstructions: "Tool instructions here.",
		DebugSections: []DebugSection{
			{Option: "verbose", Content: "Verbose debug section."},
			{Option: "trace", Content: "Trace debug section."},
		},
		DebugOptions: map[string]bool{"verbose": true},
	})
	if err != nil {
		t.Fatal(err)
	}

	want := "Base prompt for Patricia.\n\n" +
		"Channel protocol text.\n\n" +
		"Continuation protocol text.\n\n" +
		"Tool instructions here.\n\n" +
		"Verbose debug section."
	if out != want {
		t.Fatalf("Assemble =\n%q\nwant\n%q", out, want)
	}
}

func TestSubstitute_LeavesUnknownKeysVerbatim(t *testing.T) {
	got := Substitute("hello {{{name}}} and {{{unknown}}}", map[string]string{"name": "world"})
	want := "hello world and {{{unknown}}}"
	if got != want {
		t.Fatalf("Substitute = %q, want %q", got, want)
	}
}
