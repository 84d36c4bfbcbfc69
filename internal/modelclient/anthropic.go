package modelclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/nexus-contrib/agentmesh/pkg/models"
)

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxTokens    int
}

// AnthropicProvider implements Provider against Anthropic's Messages API,
// grounded on internal/agent/providers/anthropic.go's non-beta streaming
// path (createStream/processStream).
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int
}

// NewAnthropicProvider builds a client from cfg.
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: model,
		maxTokens:    maxTokens,
	}
}

func (p *AnthropicProvider) Name() string                  { return "anthropic" }
func (p *AnthropicProvider) SupportsTools() bool           { return true }
func (p *AnthropicProvider) SupportsStructuredOutput() bool { return false }

func (p *AnthropicProvider) model(req *Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *AnthropicProvider) maxTokensFor(req *Request) int64 {
	if req.MaxTokens > 0 {
		return int64(req.MaxTokens)
	}
	return int64(p.maxTokens)
}

func (p *AnthropicProvider) convertMessages(messages []Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion
		switch msg.Role {
		case models.RoleTool:
			content = append(content, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		default:
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]any
				if len(tc.Input) > 0 {
					if err := json.Unmarshal(tc.Input, &input); err != nil {
						return nil, fmt.Errorf("modelclient: decode tool call input: %w", err)
					}
				}
				content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
		}
		if len(content) == 0 {
			continue
		}
		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func (p *AnthropicProvider) convertTools(tools []ToolSpec) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.Schema) > 0 {
			if err := json.Unmarshal(t.Schema, &schema); err != nil {
				return nil, fmt.Errorf("modelclient: decode tool schema for %s: %w", t.Name, err)
			}
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		})
	}
	return out, nil
}

// Complete streams one model round-trip.
func (p *AnthropicProvider) Complete(ctx context.Context, req *Request) (<-chan *Chunk, error) {
	messages, err := p.convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(req)),
		Messages:  messages,
		MaxTokens: p.maxTokensFor(req),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := p.convertTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	chunks := make(chan *Chunk)
	go processAnthropicStream(stream, chunks)
	return chunks, nil
}

func processAnthropicStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- *Chunk) {
	defer close(chunks)

	var currentToolCall *models.ToolCall
	var currentToolInput strings.Builder

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "content_block_start":
			contentBlock := event.AsContentBlockStart().ContentBlock
			if contentBlock.Type == "tool_use" {
				toolUse := contentBlock.AsToolUse()
				currentToolCall = &models.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentToolInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					chunks <- &Chunk{Text: delta.Text}
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentToolInput.WriteString(delta.PartialJSON)
				}
			}

		case "content_block_stop":
			if currentToolCall != nil {
				currentToolCall.Input = json.RawMessage(currentToolInput.String())
				chunks <- &Chunk{ToolCall: currentToolCall}
				currentToolCall = nil
			}

		case "message_stop":
			chunks <- &Chunk{Done: true}
			return

		case "error":
			chunks <- &Chunk{Error: fmt.Errorf("anthropic stream error"), Done: true}
			return
		}
	}
	if err := stream.Err(); err != nil {
		chunks <- &Chunk{Error: err, Done: true}
		return
	}
	chunks <- &Chunk{Done: true}
}
