// Package tool provides the tool framework: definitions the model can
// call, and the execution context the session loop hands them.
package tool

import (
	"context"
	"encoding/json"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// Tool is one capability offered to the model.
type Tool interface {
	// ID returns the tool identifier the model calls it by.
	ID() string

	// Description returns the prompt-visible description.
	Description() string

	// Parameters returns the JSON Schema for the input.
	Parameters() json.RawMessage

	// Permission derives the consent requirement for a concrete input.
	// A nil spec means the call needs no consent.
	Permission(input map[string]any) *PermissionSpec

	// Execute runs the tool.
	Execute(ctx context.Context, input map[string]any, tc *Context) (*Result, error)
}

// PermissionSpec names what a call wants to do, for rule matching and for
// the consent prompt.
type PermissionSpec struct {
	// ID is the permission name rules match on, e.g. "bash" or "edit".
	ID string

	// Patterns are the values submitted to the evaluator, one rule check
	// per pattern.
	Patterns []string

	// Title is the human-readable prompt line.
	Title string

	Metadata map[string]any
}

// Context carries per-call execution state into a tool.
type Context struct {
	SessionID string
	MessageID string
	CallID    string
	Agent     string
	WorkDir   string

	// Metadata streams progress to the part while the tool runs.
	Metadata func(title string, meta map[string]any)
}

// SetMetadata reports progress when a sink is attached.
func (c *Context) SetMetadata(title string, meta map[string]any) {
	if c.Metadata != nil {
		c.Metadata(title, meta)
	}
}

// Result is a finished tool execution.
type Result struct {
	Title    string         `json:"title"`
	Output   string         `json:"output"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// FuncTool builds a Tool from plain functions. Most tools in this package
// are FuncTools.
type FuncTool struct {
	ToolID      string
	Desc        string
	Params      json.RawMessage
	PermFunc    func(input map[string]any) *PermissionSpec
	ExecuteFunc func(ctx context.Context, input map[string]any, tc *Context) (*Result, error)
}

func (t *FuncTool) ID() string                  { return t.ToolID }
func (t *FuncTool) Description() string         { return t.Desc }
func (t *FuncTool) Parameters() json.RawMessage { return t.Params }

func (t *FuncTool) Permission(input map[string]any) *PermissionSpec {
	if t.PermFunc == nil {
		return nil
	}
	return t.PermFunc(input)
}

func (t *FuncTool) Execute(ctx context.Context, input map[string]any, tc *Context) (*Result, error) {
	return t.ExecuteFunc(ctx, input, tc)
}

// ToolInfo converts a tool definition to the Eino wire shape.
func ToolInfo(t Tool) *schema.ToolInfo {
	return &schema.ToolInfo{
		Name:        t.ID(),
		Desc:        t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(parseJSONSchemaParams(t.Parameters())),
	}
}

// einoWrapper adapts a Tool to Eino's InvokableTool for graph composition.
type einoWrapper struct {
	tool Tool
}

// EinoTool wraps a tool as an Eino InvokableTool. Permission checks are
// the executor's job; this path is for direct graph use.
func EinoTool(t Tool) einotool.InvokableTool {
	return &einoWrapper{tool: t}
}

func (w *einoWrapper) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return ToolInfo(w.tool), nil
}

func (w *einoWrapper) InvokableRun(ctx context.Context, argsJSON string, opts ...einotool.Option) (string, error) {
	var input map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &input); err != nil {
		return "", err
	}

	result, err := w.tool.Execute(ctx, input, &Context{})
	if err != nil {
		return "", err
	}
	return result.Output, nil
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

func stringArg(input map[string]any, key string) string {
	if v, ok := input[key].(string); ok {
		return v
	}
	return ""
}

func intArg(input map[string]any, key string) int {
	switch v := input[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
