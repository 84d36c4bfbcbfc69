package prompts

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrPromptNotFound is returned when no file exists at any location in the
// priority search list for a (category, name) pair (spec §4.3).
var ErrPromptNotFound = errors.New("prompts: not found")

// Component is a named, enableable shared prompt section (e.g. "channel
// protocol", "continuation protocol"). Components are rendered in
// sorted-name order for stable output across runs (spec §4.3 step 2).
type Component struct {
	Name    string
	Content string
}

// DebugSection is a prompt fragment only included when its named debug
// option is toggled on for the session (spec §4.9 "/debug on|off
// <option>"; SUPPLEMENTED FEATURES item 4, grounded on original_source's
// prompt_system.py).
type DebugSection struct {
	Option  string
	Content string
}

// AssembleOptions carries everything Assemble layers onto the base prompt.
type AssembleOptions struct {
	Category        string
	Name            string
	Vars            map[string]string
	Components      []Component
	ToolInstructions string
	DebugSections   []DebugSection
	DebugOptions    map[string]bool
}

// Assembler resolves and composes prompts from a priority-ordered set of
// search directories: project override, project prompts dir, app prompts
// dir, category default — first existing file wins, mirroring the
// teacher's readPromptFileLimited/resolveWorkspaceFile fallthrough chain.
type Assembler struct {
	mu   sync.RWMutex
	dirs []string
	log  *slog.Logger

	watcher  *fsnotify.Watcher
	onChange func()
}

// NewAssembler returns an Assembler that searches dirs in order, most
// specific first (e.g. []string{projectOverrideDir, projectPromptsDir,
// appPromptsDir, categoryDefaultDir}).
func NewAssembler(log *slog.Logger, dirs ...string) *Assembler {
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{dirs: append([]string(nil), dirs...), log: log}
}

// Watch starts an fsnotify watch over the assembler's search directories
// and invokes onChange whenever a prompt file is created, written, or
// removed. Errors from missing directories are logged, not fatal, since
// not every search location is expected to exist.
func (a *Assembler) Watch(onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("prompts: create watcher: %w", err)
	}
	a.mu.Lock()
	a.watcher = w
	a.onChange = onChange
	dirs := append([]string(nil), a.dirs...)
	a.mu.Unlock()

	for _, d := range dirs {
		if d == "" {
			continue
		}
		if err := w.Add(d); err != nil {
			a.log.Warn("prompts: cannot watch directory", "dir", d, "error", err)
		}
	}

	go a.watchLoop(w)
	return nil
}

func (a *Assembler) watchLoop(w *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				a.mu.RLock()
				cb := a.onChange
				a.mu.RUnlock()
				if cb != nil {
					cb()
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			a.log.Warn("prompts: watcher error", "error", err)
		}
	}
}

// Close stops the hot-reload watcher, if one was started.
func (a *Assembler) Close() error {
	a.mu.Lock()
	w := a.watcher
	a.watcher = nil
	a.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close()
}

// candidates expands the search list into the paths Resolve tries in
// order: for each directory, "<dir>/<category>/<name>.md" and then
// "<dir>/<name>.md".
func (a *Assembler) candidates(category, name string) []string {
	a.mu.RLock()
	dirs := append([]string(nil), a.dirs...)
	a.mu.RUnlock()

	out := make([]string, 0, len(dirs)*2)
	for _, d := range dirs {
		if d == "" {
			continue
		}
		out = append(out, filepath.Join(d, category, name+".md"))
		out = append(out, filepath.Join(d, name+".md"))
	}
	return out
}

// Resolve reads the base prompt text for (category, name), returning
// ErrPromptNotFound if no candidate path exists.
func (a *Assembler) Resolve(category, name string) (string, error) {
	for _, path := range a.candidates(category, name) {
		data, err := os.ReadFile(path)
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("prompts: read %s: %w", path, err)
		}
	}
	return "", fmt.Errorf("%w: %s/%s", ErrPromptNotFound, category, name)
}

// Assemble resolves the base prompt and layers shared components, tool
// instructions, and active debug sections per spec §4.3's fixed order,
// then applies template substitution.
func (a *Assembler) Assemble(opts AssembleOptions) (string, error) {
	base, err := a.Resolve(opts.Category, opts.Name)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "\n"))

	components := append([]Component(nil), opts.Components...)
	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })
	for _, c := range components {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		b.WriteString("\n\n")
		b.WriteString(strings.TrimRight(c.Content, "\n"))
	}

	if strings.TrimSpace(opts.ToolInstructions) != "" {
		b.WriteString("\n\n")
		b.WriteString(strings.TrimRight(opts.ToolInstructions, "\n"))
	}

	for _, d := range opts.DebugSections {
		if !opts.DebugOptions[d.Option] {
			continue
		}
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		b.WriteString("\n\n")
		b.WriteString(strings.TrimRight(d.Content, "\n"))
	}

	return Substitute(b.String(), opts.Vars), nil
}

var templateKey = regexp.MustCompile(`\{\{\{([a-zA-Z0-9_.]+)\}\}\}`)

// Substitute replaces `{{{key}}}` markers with caller-supplied values.
// Unsubstituted markers are left verbatim — this never errors (spec §4.3).
func Substitute(tmpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tmpl
	}
	return templateKey.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := match[3 : len(match)-3]
		if v, ok := vars[key]; ok {
			return v
		}
		return match
	})
}
