package modelclient

import (
	"encoding/json"
	"testing"

	"github.com/nexus-contrib/agentmesh/pkg/models"
)

func TestAnthropicProvider_ConvertMessages(t *testing.T) {
	p := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	msgs, err := p.convertMessages([]Message{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "t1", Name: "check_mail", Input: json.RawMessage(`{"agent":"a"}`)},
		}},
		{Role: models.RoleTool, Content: "no mail", ToolCallID: "t1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
}

func TestAnthropicProvider_ConvertMessages_InvalidToolInput(t *testing.T) {
	p := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	_, err := p.convertMessages([]Message{
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "t1", Name: "x", Input: json.RawMessage(`not json`)},
		}},
	})
	if err == nil {
		t.Fatal("expected error decoding malformed tool call input")
	}
}

func TestAnthropicProvider_ConvertTools(t *testing.T) {
	p := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key"})
	tools, err := p.convertTools([]ToolSpec{
		{Name: "check_mail", Description: "reads mail", Schema: json.RawMessage(`{"type":"object","properties":{}}`)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(tools) != 1 || tools[0].OfTool.Name != "check_mail" {
		t.Fatalf("tools = %+v", tools)
	}
}

func TestAnthropicProvider_DefaultModel(t *testing.T) {
	p := NewAnthropicProvider(AnthropicConfig{APIKey: "k"})
	if got := p.model(&Request{}); got != "claude-sonnet-4-20250514" {
		t.Fatalf("default model = %q", got)
	}
	if got := p.model(&Request{Model: "claude-opus-4-20250514"}); got != "claude-opus-4-20250514" {
		t.Fatalf("explicit model = %q", got)
	}
}
