package modelclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/nexus-contrib/agentmesh/pkg/models"
)

// OpenAIProvider implements Provider against the Chat Completions API,
// grounded on internal/agent/providers/openai.go's processStream.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

// NewOpenAIProvider builds a client for apiKey.
func NewOpenAIProvider(apiKey, defaultModel string) *OpenAIProvider {
	if defaultModel == "" {
		defaultModel = "gpt-4o"
	}
	return &OpenAIProvider{client: openai.NewClient(apiKey), defaultModel: defaultModel}
}

func (p *OpenAIProvider) Name() string                  { return "openai" }
func (p *OpenAIProvider) SupportsTools() bool           { return true }
func (p *OpenAIProvider) SupportsStructuredOutput() bool { return true }

func (p *OpenAIProvider) model(req *Request) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *OpenAIProvider) convertMessages(messages []Message, system string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content}
			if len(msg.ToolCalls) > 0 {
				oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					oaiMsg.ToolCalls[i] = openai.ToolCall{
						ID:   tc.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      tc.Name,
							Arguments: string(tc.Input),
						},
					}
				}
			}
			out = append(out, oaiMsg)
		default:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content})
		}
	}
	return out
}

func (p *OpenAIProvider) convertTools(tools []ToolSpec) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var params any
		if len(t.Schema) > 0 {
			_ = json.Unmarshal(t.Schema, &params)
		}
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		}
	}
	return out
}

// Complete streams one model round-trip.
func (p *OpenAIProvider) Complete(ctx context.Context, req *Request) (<-chan *Chunk, error) {
	if p.client == nil {
		return nil, errors.New("modelclient: OpenAI API key not configured")
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    p.model(req),
		Messages: p.convertMessages(req.Messages, req.System),
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = p.convertTools(req.Tools)
	}
	if len(req.ResponseSchema) > 0 {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "agentmesh_turn",
				Schema: req.ResponseSchema,
				Strict: false,
			},
		}
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, err
	}

	chunks := make(chan *Chunk)
	go processOpenAIStream(ctx, stream, chunks)
	return chunks, nil
}

func processOpenAIStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *Chunk) {
	defer close(chunks)
	defer stream.Close()

	toolCalls := make(map[int]*models.ToolCall)

	for {
		select {
		case <-ctx.Done():
			chunks <- &Chunk{Error: ctx.Err(), Done: true}
			return
		default:
		}

		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				for _, tc := range toolCalls {
					if tc.ID != "" && tc.Name != "" {
						chunks <- &Chunk{ToolCall: tc}
					}
				}
				chunks <- &Chunk{Done: true}
				return
			}
			chunks <- &Chunk{Error: err, Done: true}
			return
		}

		if len(response.Choices) == 0 {
			continue
		}
		delta := response.Choices[0].Delta

		if delta.Content != "" {
			chunks <- &Chunk{Text: delta.Content}
		}

		if len(delta.ToolCalls) > 0 {
			for _, tc := range delta.ToolCalls {
				index := 0
				if tc.Index != nil {
					index = *tc.Index
				}
				if toolCalls[index] == nil {
					toolCalls[index] = &models.ToolCall{}
				}
				if tc.ID != "" {
					toolCalls[index].ID = tc.ID
				}
				if tc.Function.Name != "" {
					toolCalls[index].Name = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					current := string(toolCalls[index].Input)
					toolCalls[index].Input = json.RawMessage(current + tc.Function.Arguments)
				}
			}
		}

		if response.Choices[0].FinishReason == openai.FinishReasonToolCalls {
			for _, tc := range toolCalls {
				if tc.ID != "" && tc.Name != "" {
					chunks <- &Chunk{ToolCall: tc}
				}
			}
			toolCalls = make(map[int]*models.ToolCall)
		}
	}
}
