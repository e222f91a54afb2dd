package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const writeDescription = `Writes a file to the local filesystem, creating
parent directories as needed. Overwrites any existing content.`

// WriteTool writes files.
type WriteTool struct {
	workDir string
}

// NewWriteTool creates the write tool.
func NewWriteTool(workDir string) *WriteTool {
	return &WriteTool{workDir: workDir}
}

func (t *WriteTool) ID() string          { return "write" }
func (t *WriteTool) Description() string { return writeDescription }

func (t *WriteTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filePath": {
				"type": "string",
				"description": "The absolute path to the file to write"
			},
			"content": {
				"type": "string",
				"description": "The content to write"
			}
		},
		"required": ["filePath", "content"]
	}`)
}

func (t *WriteTool) Permission(input map[string]any) *PermissionSpec {
	path := stringArg(input, "filePath")
	return &PermissionSpec{
		ID:       "edit",
		Patterns: []string{filepath.Base(path), path},
		Title:    "Write " + path,
	}
}

func (t *WriteTool) Execute(ctx context.Context, input map[string]any, tc *Context) (*Result, error) {
	path := stringArg(input, "filePath")
	content := stringArg(input, "content")
	if path == "" {
		return nil, fmt.Errorf("filePath is required")
	}
	if !filepath.IsAbs(path) {
		root := t.workDir
		if tc != nil && tc.WorkDir != "" {
			root = tc.WorkDir
		}
		path = filepath.Join(root, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, err
	}

	return &Result{
		Title:  path,
		Output: fmt.Sprintf("Wrote %d bytes to %s", len(content), path),
		Metadata: map[string]any{
			"bytes": len(content),
		},
	}, nil
}
