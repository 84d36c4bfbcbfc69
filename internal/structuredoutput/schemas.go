package structuredoutput

import "encoding/json"

// ChannelSchema constrains a model response to the {analysis, commentary,
// final} object the Channel Router (spec §4.4) expects, with an embedded
// continuation object per spec §4.10 priority 2.
var ChannelSchema = mustCompact(`{
	"type": "object",
	"properties": {
		"analysis": {"type": "string"},
		"commentary": {"type": "string"},
		"final": {"type": "string"},
		"continuation": {
			"type": "object",
			"properties": {
				"status": {"type": "string", "enum": ["CONTINUE", "TERMINATE"]},
				"reason": {"type": "string"}
			},
			"required": ["status"]
		}
	},
	"required": ["final"]
}`)

// ContinuationSchema wraps a plain response string with the continuation
// object, for agents that don't use the analysis/commentary channels
// (spec §4.10 priority 3, the default when structured output is supported).
var ContinuationSchema = mustCompact(`{
	"type": "object",
	"properties": {
		"response": {"type": "string"},
		"continuation": {
			"type": "object",
			"properties": {
				"status": {"type": "string", "enum": ["CONTINUE", "TERMINATE"]},
				"reason": {"type": "string"}
			},
			"required": ["status"]
		}
	},
	"required": ["response", "continuation"]
}`)

// PlanGenerationSchema constrains the planner agent's response to an
// RFC/project-plan document shape (spec §4.10 priority 1), grounded on the
// original's project_plan_generator.py plan document fields.
var PlanGenerationSchema = mustCompact(`{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"description": {"type": "string"},
		"tasks": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"description": {"type": "string"},
					"dependencies": {"type": "array", "items": {"type": "string"}},
					"agent_type": {"type": "string"}
				},
				"required": ["name", "description"]
			}
		}
	},
	"required": ["title", "tasks"]
}`)

// mustCompact re-marshals a JSON literal to drop insignificant whitespace,
// panicking on malformed literals (a programmer error, not a runtime one).
func mustCompact(raw string) json.RawMessage {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		panic("structuredoutput: invalid schema literal: " + err.Error())
	}
	out, err := json.Marshal(v)
	if err != nil {
		panic("structuredoutput: schema re-marshal: " + err.Error())
	}
	return out
}
