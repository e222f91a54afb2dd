package tool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const readDescription = `Reads a file from the local filesystem.

Usage:
- The filePath parameter must be an absolute path
- By default, reads up to 2000 lines from the beginning
- You can optionally specify offset and limit for pagination
- Returns file contents with line numbers`

const defaultReadLimit = 2000

// ReadTool reads text files.
type ReadTool struct {
	workDir string
}

// NewReadTool creates the read tool.
func NewReadTool(workDir string) *ReadTool {
	return &ReadTool{workDir: workDir}
}

func (t *ReadTool) ID() string          { return "read" }
func (t *ReadTool) Description() string { return readDescription }

func (t *ReadTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"filePath": {
				"type": "string",
				"description": "The absolute path to the file to read"
			},
			"offset": {
				"type": "integer",
				"description": "Line number to start reading from"
			},
			"limit": {
				"type": "integer",
				"description": "Number of lines to read (default: 2000)"
			}
		},
		"required": ["filePath"]
	}`)
}

func (t *ReadTool) Permission(input map[string]any) *PermissionSpec {
	path := stringArg(input, "filePath")
	return &PermissionSpec{
		ID:       "read",
		Patterns: []string{filepath.Base(path), path},
		Title:    "Read " + path,
	}
}

func (t *ReadTool) Execute(ctx context.Context, input map[string]any, tc *Context) (*Result, error) {
	path := stringArg(input, "filePath")
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

	offset := intArg(input, "offset")
	limit := intArg(input, "limit")
	if limit <= 0 {
		limit = defaultReadLimit
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var sb strings.Builder
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	lineNum := 0
	read := 0
	for scanner.Scan() {
		lineNum++
		if offset > 0 && lineNum < offset {
			continue
		}
		if read >= limit {
			break
		}
		fmt.Fprintf(&sb, "%d\t%s\n", lineNum, scanner.Text())
		read++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &Result{
		Title:  path,
		Output: sb.String(),
		Metadata: map[string]any{
			"lines": read,
		},
	}, nil
}
