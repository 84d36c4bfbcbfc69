package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nexus-contrib/agentmesh/internal/prompts"
	"github.com/nexus-contrib/agentmesh/pkg/models"
)

func jsonUnmarshalLenient(s string, v any) error {
	return json.Unmarshal([]byte(s), v)
}

const helpText = `Available commands:
  /clear [agent|all]              clear context for one agent or all agents
  /save [path]                    snapshot all agents' context and config
  /load <path>                    restore a prior snapshot
  /debug on|off [options...]      toggle debug sections in the system prompt
  /help                           show this message`

// handleSlashCommand recognizes and dispatches the five slash commands
// (spec §4.9, §6). Caller must hold s.mu. Returns handled=false for any
// message that is not a recognized command.
func (s *Session) handleSlashCommand(message string) (reply string, handled bool, err error) {
	trimmed := strings.TrimSpace(message)
	if !strings.HasPrefix(trimmed, "/") {
		return "", false, nil
	}
	fields := strings.Fields(trimmed)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "/clear":
		return s.cmdClear(args), true, nil
	case "/save":
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		return s.cmdSave(path)
	case "/load":
		if len(args) == 0 {
			return "usage: /load <path>", true, nil
		}
		return s.cmdLoad(args[0])
	case "/debug":
		return s.cmdDebug(args), true, nil
	case "/help":
		return helpText, true, nil
	default:
		return "", false, nil
	}
}

func (s *Session) cmdClear(args []string) string {
	if len(args) == 0 || args[0] == "all" {
		for _, a := range s.agents {
			a.Clear()
		}
		s.notify("context.cleared", map[string]any{"scope": "all"})
		return "Cleared context for all agents."
	}
	target := models.CanonicalID(args[0])
	a, ok := s.agents[target]
	if !ok {
		return fmt.Sprintf("unknown agent: %s", args[0])
	}
	a.Clear()
	s.notify("context.cleared", map[string]any{"scope": target})
	return fmt.Sprintf("Cleared context for agent %s.", target)
}

// snapshotFile mirrors the persisted state layout in spec §6.
type snapshotFile struct {
	SessionID        string                         `json:"session_id"`
	IsStarted        bool                           `json:"is_started"`
	ActiveAgent      string                         `json:"active_agent"`
	IntroducedAgents []string                       `json:"introduced_agents"`
	Agents           map[string]snapshotAgentRecord `json:"agents"`
	SavedAt          string                         `json:"saved_at"`
	Version          string                         `json:"version"`
}

type snapshotAgentRecord struct {
	Config  *models.AgentConfig `json:"config"`
	Context *models.Context     `json:"context"`
}

func (s *Session) defaultSnapshotPath() string {
	return filepath.Join(s.Workspace, fmt.Sprintf(".agentmesh-session-%s.json", s.ID))
}

func (s *Session) cmdSave(path string) (string, bool, error) {
	if path == "" {
		path = s.defaultSnapshotPath()
	}
	introduced := make([]string, 0, len(s.introducedAgents))
	for id := range s.introducedAgents {
		introduced = append(introduced, id)
	}
	snap := snapshotFile{
		SessionID:        s.ID,
		IsStarted:        s.Status == models.SessionActive,
		ActiveAgent:      s.activeAgentID,
		IntroducedAgents: introduced,
		Agents:           make(map[string]snapshotAgentRecord, len(s.agents)),
		SavedAt:          time.Now().Format(time.RFC3339),
		Version:          "1.0",
	}
	for id, agent := range s.agents {
		snap.Agents[id] = snapshotAgentRecord{Config: agent.Config, Context: agent.Snapshot()}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", true, fmt.Errorf("session: marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", true, fmt.Errorf("session: write snapshot: %w", err)
	}
	if s.deps.Snapshots != nil {
		if err := s.deps.Snapshots.Save(context.Background(), s.ID, s.UserID, data, time.Now()); err != nil {
			s.deps.Log.Warn("session: durable snapshot save failed", "session_id", s.ID, "error", err)
		}
	}
	s.notify("session.saved", map[string]any{"path": path})
	return fmt.Sprintf("Saved session to %s.", path), true, nil
}

// snapshotStorePrefix marks a /load argument as a durable-store session
// id rather than a file path, e.g. "/load snapshot:abc123".
const snapshotStorePrefix = "snapshot:"

func (s *Session) cmdLoad(path string) (string, bool, error) {
	var data []byte
	var err error
	if storedID, ok := strings.CutPrefix(path, snapshotStorePrefix); ok {
		if s.deps.Snapshots == nil {
			return "", true, fmt.Errorf("session: no durable snapshot store configured")
		}
		data, err = s.deps.Snapshots.Load(context.Background(), storedID)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", true, fmt.Errorf("session: read snapshot: %w", err)
	}
	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return "", true, fmt.Errorf("session: parse snapshot: %w", err)
	}
	for id, rec := range snap.Agents {
		agent, err := s.activateLocked(rec.Config)
		if err != nil {
			continue
		}
		agent.Restore(rec.Context)
		s.agents[id] = agent
	}
	if snap.ActiveAgent != "" {
		s.activeAgentID = models.CanonicalID(snap.ActiveAgent)
	}
	s.notify("session.loaded", map[string]any{"path": path})
	return fmt.Sprintf("Loaded session from %s.", path), true, nil
}

var debugOptionNames = map[string]bool{
	"single_tool":          true,
	"verbose_progress":     true,
	"force_sequential":     true,
	"explicit_continuation": true,
}

func (s *Session) cmdDebug(args []string) string {
	if len(args) == 0 {
		return "usage: /debug on|off [single_tool|verbose_progress|force_sequential|explicit_continuation]"
	}
	on := args[0] == "on"
	if args[0] != "on" && args[0] != "off" {
		return "usage: /debug on|off [options...]"
	}
	s.debugEnabled = on
	opts := args[1:]
	if len(opts) == 0 {
		for name := range debugOptionNames {
			s.debugOptions[name] = on
		}
	} else {
		for _, o := range opts {
			if debugOptionNames[o] {
				s.debugOptions[o] = on
			}
		}
	}
	s.rebuildActivePrompt()
	return fmt.Sprintf("Debug options updated (on=%v).", on)
}

func (s *Session) rebuildActivePrompt() {
	agent, ok := s.agents[s.activeAgentID]
	if !ok || s.deps.Prompts == nil {
		return
	}
	rendered, err := s.deps.Prompts.Assemble(prompts.AssembleOptions{
		Category:      "agents",
		Name:          s.activeAgentID,
		DebugOptions:  s.debugOptions,
	})
	if err != nil {
		return
	}
	agent.Config.SystemPrompt = rendered
}

// fileRefPattern matches @path or @path:start-end references (spec §6).
var fileRefPattern = regexp.MustCompile(`@([^\s:]+)(?::(\d+)-(\d+))?`)

// resolveFileReferences splices referenced file content inline for every
// @path[:start-end] reference in message, resolved against workspace.
// Absent files are left as literal text (spec §4.9).
func resolveFileReferences(message, workspace string) (string, []string) {
	var refs []string
	out := fileRefPattern.ReplaceAllStringFunc(message, func(match string) string {
		groups := fileRefPattern.FindStringSubmatch(match)
		relPath := groups[1]
		full := filepath.Join(workspace, relPath)
		content, err := readFileRange(full, groups[2], groups[3])
		if err != nil {
			return match
		}
		refs = append(refs, relPath)
		return fmt.Sprintf("%s\n```\n%s\n```", match, content)
	})
	return out, refs
}

func readFileRange(path, startStr, endStr string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if startStr == "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	start, _ := strconv.Atoi(startStr)
	end, _ := strconv.Atoi(endStr)
	var lines []string
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if lineNum >= start && lineNum <= end {
			lines = append(lines, scanner.Text())
		}
		if lineNum > end {
			break
		}
	}
	return strings.Join(lines, "\n"), nil
}
