// Package prompts implements the Prompt Assembler (spec §4.3): resolution
// of a (category, name) prompt by priority-ordered search location,
// deterministic layering of shared components, tool instructions, and
// debug-gated sections, and `{{{key}}}` template substitution. It follows
// the teacher's file-backed prompt loading in
// internal/gateway/system_prompt_loader.go, generalized from a single
// fixed system prompt to the lookup-by-name scheme this system needs, and
// adds fsnotify-based hot reload of the search directories.
package prompts
