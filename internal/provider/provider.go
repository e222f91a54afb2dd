// Package provider abstracts LLM providers behind Eino chat models and a
// normalized stream event vocabulary.
package provider

import (
	"context"
	"encoding/json"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/cadenza-ai/cadenza/pkg/types"
)

// Provider is one LLM backend. Implementations wrap an Eino
// ToolCallingChatModel.
type Provider interface {
	// ID returns the provider identifier.
	ID() string

	// Name returns the human-readable provider name.
	Name() string

	// Models returns the models this provider offers.
	Models() []types.Model

	// ChatModel returns the underlying Eino chat model.
	ChatModel() model.ToolCallingChatModel

	// CreateCompletion opens a streaming completion.
	CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error)
}

// CompletionRequest is one call to a chat model.
type CompletionRequest struct {
	Model       string             `json:"model"`
	Messages    []*schema.Message  `json:"messages"`
	Tools       []*schema.ToolInfo `json:"tools,omitempty"`
	MaxTokens   int                `json:"maxTokens,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
	TopP        float64            `json:"topP,omitempty"`
}

// CompletionStream wraps an Eino stream reader.
type CompletionStream struct {
	reader *schema.StreamReader[*schema.Message]
}

// NewCompletionStream wraps a stream reader.
func NewCompletionStream(reader *schema.StreamReader[*schema.Message]) *CompletionStream {
	return &CompletionStream{reader: reader}
}

// Recv returns the next chunk; io.EOF ends the stream.
func (s *CompletionStream) Recv() (*schema.Message, error) {
	return s.reader.Recv()
}

// Close releases the stream.
func (s *CompletionStream) Close() {
	s.reader.Close()
}

// ToolInfo is a provider-neutral tool definition with a JSON Schema
// parameter block.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ConvertToEinoTools converts tool definitions to Eino format.
func ConvertToEinoTools(tools []ToolInfo) []*schema.ToolInfo {
	result := make([]*schema.ToolInfo, len(tools))
	for i, t := range tools {
		var params map[string]*schema.ParameterInfo
		if len(t.Parameters) > 0 {
			params = parseJSONSchemaParams(t.Parameters)
		}
		result[i] = &schema.ToolInfo{
			Name:        t.Name,
			Desc:        t.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		}
	}
	return result
}

func parseJSONSchemaParams(raw json.RawMessage) map[string]*schema.ParameterInfo {
	var js struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(raw, &js); err != nil {
		return nil
	}

	required := make(map[string]bool)
	for _, r := range js.Required {
		required[r] = true
	}

	params := make(map[string]*schema.ParameterInfo)
	for name, prop := range js.Properties {
		t := schema.String
		switch prop.Type {
		case "integer":
			t = schema.Integer
		case "number":
			t = schema.Number
		case "boolean":
			t = schema.Boolean
		case "array":
			t = schema.Array
		case "object":
			t = schema.Object
		}
		params[name] = &schema.ParameterInfo{
			Type:     t,
			Desc:     prop.Description,
			Required: required[name],
		}
	}
	return params
}

// BuildModelMessages converts stored messages and their parts to the Eino
// wire shape. Compacted messages must already be filtered out by the
// caller; this function is a pure format conversion.
func BuildModelMessages(messages []*types.Message, parts map[string][]types.Part) []*schema.Message {
	result := make([]*schema.Message, 0, len(messages))

	for _, msg := range messages {
		role := schema.Assistant
		if msg.Role == types.RoleUser {
			role = schema.User
		}

		var content string
		var toolCalls []schema.ToolCall
		var toolResults []*schema.Message

		for _, part := range parts[msg.ID] {
			switch p := part.(type) {
			case *types.TextPart:
				content += p.Text
			case *types.ToolPart:
				input, _ := json.Marshal(p.Input)
				toolCalls = append(toolCalls, schema.ToolCall{
					ID: p.CallID,
					Function: schema.FunctionCall{
						Name:      p.Tool,
						Arguments: string(input),
					},
				})
				if p.State.Status == types.ToolCompleted || p.State.Status == types.ToolError {
					output := p.State.Output
					if p.State.Status == types.ToolError {
						output = p.State.Error
					}
					toolResults = append(toolResults, &schema.Message{
						Role:       schema.Tool,
						ToolCallID: p.CallID,
						Content:    output,
					})
				}
			}
		}

		result = append(result, &schema.Message{
			Role:      role,
			Content:   content,
			ToolCalls: toolCalls,
		})
		result = append(result, toolResults...)
	}

	return result
}
