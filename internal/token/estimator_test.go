package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cadenza-ai/cadenza/pkg/types"
)

func TestCountEmpty(t *testing.T) {
	e := NewEstimator()
	assert.Zero(t, e.Count(""))
}

func TestCountGrowsWithText(t *testing.T) {
	e := NewEstimator()

	short := e.Count("hello world")
	long := e.Count(strings.Repeat("hello world ", 100))

	assert.Greater(t, short, 0)
	assert.Greater(t, long, short)
}

func TestCountPartText(t *testing.T) {
	e := NewEstimator()

	p := &types.TextPart{Type: "text", Text: strings.Repeat("word ", 50)}
	assert.Greater(t, e.CountPart(p), 0)
}

func TestCountPartTool(t *testing.T) {
	e := NewEstimator()

	bare := &types.ToolPart{
		Type: "tool", Tool: "bash",
		Input: map[string]any{"command": "ls"},
		State: types.ToolState{Status: types.ToolCompleted},
	}
	withOutput := &types.ToolPart{
		Type: "tool", Tool: "bash",
		Input: map[string]any{"command": "ls"},
		State: types.ToolState{
			Status: types.ToolCompleted,
			Output: strings.Repeat("file.txt\n", 200),
		},
	}

	assert.Greater(t, e.CountPart(withOutput), e.CountPart(bare),
		"tool output must contribute to the estimate")
}

func TestCountParts(t *testing.T) {
	e := NewEstimator()

	parts := []types.Part{
		&types.TextPart{Type: "text", Text: "one two three"},
		&types.TextPart{Type: "text", Text: "four five six"},
	}
	sum := e.CountParts(parts)
	assert.Equal(t, e.CountPart(parts[0])+e.CountPart(parts[1]), sum)
}
