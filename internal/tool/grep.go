package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const grepDescription = `A content search tool built on ripgrep.

Usage:
- Supports full regex syntax (e.g., "log.*Error", "function\\s+\\w+")
- Filter files with the include parameter (e.g., "*.js", "**/*.tsx")
- Returns matching lines with file paths and line numbers`

const maxGrepMatches = 100

// GrepTool searches file contents with ripgrep.
type GrepTool struct {
	workDir string
}

// NewGrepTool creates the grep tool.
func NewGrepTool(workDir string) *GrepTool {
	return &GrepTool{workDir: workDir}
}

func (t *GrepTool) ID() string          { return "grep" }
func (t *GrepTool) Description() string { return grepDescription }

func (t *GrepTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "The regex pattern to search for in file contents"
			},
			"path": {
				"type": "string",
				"description": "The directory to search in (default: working directory)"
			},
			"include": {
				"type": "string",
				"description": "File pattern to include (e.g. \"*.js\")"
			}
		},
		"required": ["pattern"]
	}`)
}

// Permission returns nil: searching inside the workspace needs no consent.
func (t *GrepTool) Permission(input map[string]any) *PermissionSpec {
	return nil
}

// Match is one grep hit.
type Match struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

func (t *GrepTool) Execute(ctx context.Context, input map[string]any, tc *Context) (*Result, error) {
	pattern := stringArg(input, "pattern")
	if pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}

	args := []string{"--line-number", "--with-filename", "--color=never"}
	if include := stringArg(input, "include"); include != "" {
		args = append(args, "--glob", include)
	}
	args = append(args, pattern)

	searchPath := t.workDir
	if tc != nil && tc.WorkDir != "" {
		searchPath = tc.WorkDir
	}
	if p := stringArg(input, "path"); p != "" {
		searchPath = p
	}
	args = append(args, searchPath)

	cmd := exec.CommandContext(ctx, "rg", args...)
	output, _ := cmd.Output()

	if len(output) == 0 {
		return &Result{
			Title:    "grep " + pattern,
			Output:   "No matches found",
			Metadata: map[string]any{"count": 0},
		}, nil
	}

	var matches []Match
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 3 {
			continue
		}
		lineNum, _ := strconv.Atoi(parts[1])
		matches = append(matches, Match{File: parts[0], Line: lineNum, Content: parts[2]})
	}

	truncated := false
	if len(matches) > maxGrepMatches {
		matches = matches[:maxGrepMatches]
		truncated = true
	}

	var sb strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&sb, "%s:%d:%s\n", m.File, m.Line, m.Content)
	}

	return &Result{
		Title:  "grep " + pattern,
		Output: sb.String(),
		Metadata: map[string]any{
			"count":     len(matches),
			"truncated": truncated,
		},
	}, nil
}
