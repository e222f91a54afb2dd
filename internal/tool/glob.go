package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const globDescription = `Fast file pattern matching tool.

Usage:
- Supports glob patterns like "**/*.js" or "src/**/*.ts"
- Returns matching file paths sorted by modification time, newest first`

const maxGlobResults = 200

// GlobTool matches files by glob pattern.
type GlobTool struct {
	workDir string
}

// NewGlobTool creates the glob tool.
func NewGlobTool(workDir string) *GlobTool {
	return &GlobTool{workDir: workDir}
}

func (t *GlobTool) ID() string          { return "glob" }
func (t *GlobTool) Description() string { return globDescription }

func (t *GlobTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "The glob pattern to match files against"
			},
			"path": {
				"type": "string",
				"description": "Directory to search in (default: working directory)"
			}
		},
		"required": ["pattern"]
	}`)
}

// Permission returns nil: listing files inside the workspace needs no
// consent.
func (t *GlobTool) Permission(input map[string]any) *PermissionSpec {
	return nil
}

func (t *GlobTool) Execute(ctx context.Context, input map[string]any, tc *Context) (*Result, error) {
	pattern := stringArg(input, "pattern")
	if pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}

	searchDir := t.workDir
	if tc != nil && tc.WorkDir != "" {
		searchDir = tc.WorkDir
	}
	if p := stringArg(input, "path"); p != "" {
		if filepath.IsAbs(p) {
			searchDir = p
		} else {
			searchDir = filepath.Join(searchDir, p)
		}
	}

	matches, err := doublestar.Glob(os.DirFS(searchDir), pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	type fileInfo struct {
		path    string
		modTime int64
	}
	infos := make([]fileInfo, 0, len(matches))
	for _, m := range matches {
		st, err := os.Stat(filepath.Join(searchDir, m))
		if err != nil || st.IsDir() {
			continue
		}
		infos = append(infos, fileInfo{path: m, modTime: st.ModTime().UnixMilli()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].modTime > infos[j].modTime })

	truncated := false
	if len(infos) > maxGlobResults {
		infos = infos[:maxGlobResults]
		truncated = true
	}

	if len(infos) == 0 {
		return &Result{
			Title:    "glob " + pattern,
			Output:   "No files matched the pattern",
			Metadata: map[string]any{"count": 0},
		}, nil
	}

	paths := make([]string, len(infos))
	for i, fi := range infos {
		paths[i] = fi.path
	}

	return &Result{
		Title:  "glob " + pattern,
		Output: strings.Join(paths, "\n"),
		Metadata: map[string]any{
			"count":     len(paths),
			"truncated": truncated,
		},
	}, nil
}
