package modelclient

// Quirk names a known provider-specific structured-output misbehavior,
// grounded on the original implementation's model_capabilities quirk table
// (ai_whisperer.model_capabilities.has_quirk, referenced from
// api/stateless_session_manager.py's structured-output selection).
const (
	// QuirkNoToolsWithStructuredOutput marks models that silently drop tool
	// definitions (or refuse the call) when JSON-schema structured output is
	// also requested, so the caller must fall back to plain/tool-call mode
	// whenever the agent has any tools in view.
	QuirkNoToolsWithStructuredOutput = "no_tools_with_structured_output"
)

// modelQuirks maps a model identifier to the set of quirks it is known to
// have. Unlisted models have none.
var modelQuirks = map[string]map[string]bool{
	"gpt-4-turbo": {QuirkNoToolsWithStructuredOutput: true},
}

// HasQuirk reports whether model is known to have the named quirk.
func HasQuirk(model, quirk string) bool {
	quirks, ok := modelQuirks[model]
	if !ok {
		return false
	}
	return quirks[quirk]
}
