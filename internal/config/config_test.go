package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agentmesh.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "server:\n  host: localhost\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8787 {
		t.Fatalf("Server.Port = %d, want default 8787", cfg.Server.Port)
	}
	if cfg.Session.MaxContinuationDepth != 3 {
		t.Fatalf("Session.MaxContinuationDepth = %d, want default 3", cfg.Session.MaxContinuationDepth)
	}
	if cfg.Session.Workspace != "." {
		t.Fatalf("Session.Workspace = %q, want default \".\"", cfg.Session.Workspace)
	}
}

func TestLoad_ExpandsEnvAndParsesAgents(t *testing.T) {
	t.Setenv("AGENTMESH_MODEL", "claude-test")
	path := writeTempConfig(t, `
agents:
  - id: a
    name: Alice
    model: ${AGENTMESH_MODEL}
    provider: anthropic
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Agents) != 1 {
		t.Fatalf("len(Agents) = %d, want 1", len(cfg.Agents))
	}
	if cfg.Agents[0].Model != "claude-test" {
		t.Fatalf("Agents[0].Model = %q, want expanded env value", cfg.Agents[0].Model)
	}
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	path := writeTempConfig(t, "bogus_top_level_field: true\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
