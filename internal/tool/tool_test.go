package tool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(t.TempDir())
	r.RegisterDefaults()

	for _, id := range []string{"bash", "read", "write", "glob", "grep"} {
		_, ok := r.Get(id)
		assert.True(t, ok, id)
	}

	_, ok := r.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"bash", "glob", "grep", "read", "write"}, r.IDs())
}

func TestRegistryToolInfosRespectsEnabledMap(t *testing.T) {
	r := NewRegistry(t.TempDir())
	r.RegisterDefaults()

	all := r.ToolInfos(nil)
	assert.Len(t, all, 5)

	filtered := r.ToolInfos(map[string]bool{"bash": false})
	assert.Len(t, filtered, 4)
	for _, info := range filtered {
		assert.NotEqual(t, "bash", info.Name)
	}
}

func TestBashPermissionSpecUsesShellPatterns(t *testing.T) {
	bash := NewBashTool(t.TempDir())
	spec := bash.Permission(map[string]any{
		"command":     "git status && rm -rf build",
		"description": "clean rebuild",
	})

	require.NotNil(t, spec)
	assert.Equal(t, "bash", spec.ID)
	assert.Contains(t, spec.Patterns, "git status *")
	assert.Contains(t, spec.Patterns, "rm build *")
	assert.Equal(t, "clean rebuild", spec.Title)
}

func TestBashExecute(t *testing.T) {
	bash := NewBashTool(t.TempDir())
	result, err := bash.Execute(context.Background(), map[string]any{
		"command":     "echo hello",
		"description": "say hello",
	}, &Context{})

	require.NoError(t, err)
	assert.Contains(t, result.Output, "hello")
	assert.Equal(t, 0, result.Metadata["exitCode"])
}

func TestBashExecuteNonZeroExit(t *testing.T) {
	bash := NewBashTool(t.TempDir())
	result, err := bash.Execute(context.Background(), map[string]any{
		"command":     "exit 3",
		"description": "fail",
	}, &Context{})

	require.NoError(t, err)
	assert.Equal(t, 3, result.Metadata["exitCode"])
}

func TestReadExecute(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o644))

	read := NewReadTool(dir)
	result, err := read.Execute(context.Background(), map[string]any{"filePath": path}, &Context{})
	require.NoError(t, err)

	assert.Contains(t, result.Output, "1\tone")
	assert.Contains(t, result.Output, "3\tthree")
	assert.Equal(t, 3, result.Metadata["lines"])
}

func TestReadExecuteOffsetAndLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lines.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\nd\n"), 0o644))

	read := NewReadTool(dir)
	result, err := read.Execute(context.Background(), map[string]any{
		"filePath": path,
		"offset":   float64(2),
		"limit":    float64(2),
	}, &Context{})
	require.NoError(t, err)

	assert.Contains(t, result.Output, "2\tb")
	assert.Contains(t, result.Output, "3\tc")
	assert.NotContains(t, result.Output, "4\td")
}

func TestReadExecuteMissingFile(t *testing.T) {
	read := NewReadTool(t.TempDir())
	_, err := read.Execute(context.Background(), map[string]any{"filePath": "/nonexistent/x.txt"}, &Context{})
	assert.Error(t, err)
}

func TestWriteExecuteCreatesDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "out.txt")

	write := NewWriteTool(dir)
	result, err := write.Execute(context.Background(), map[string]any{
		"filePath": path,
		"content":  "payload",
	}, &Context{})
	require.NoError(t, err)
	assert.Equal(t, 7, result.Metadata["bytes"])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestWritePermissionIsEdit(t *testing.T) {
	write := NewWriteTool(t.TempDir())
	spec := write.Permission(map[string]any{"filePath": "/x/y.go"})
	require.NotNil(t, spec)
	assert.Equal(t, "edit", spec.ID)
	assert.Contains(t, spec.Patterns, "y.go")
}

func TestGlobExecute(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "util.go"), []byte("package sub"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("# hi"), 0o644))

	glob := NewGlobTool(dir)
	result, err := glob.Execute(context.Background(), map[string]any{"pattern": "**/*.go"}, &Context{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Metadata["count"])
	assert.Contains(t, result.Output, "main.go")
	assert.Contains(t, result.Output, "util.go")
	assert.NotContains(t, result.Output, "readme.md")
}

func TestGlobExecuteNoMatches(t *testing.T) {
	glob := NewGlobTool(t.TempDir())
	result, err := glob.Execute(context.Background(), map[string]any{"pattern": "*.rs"}, &Context{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Metadata["count"])
}

func TestReadOnlyToolsNeedNoPermission(t *testing.T) {
	dir := t.TempDir()
	assert.Nil(t, NewGlobTool(dir).Permission(map[string]any{"pattern": "*"}))
	assert.Nil(t, NewGrepTool(dir).Permission(map[string]any{"pattern": "x"}))
}

func TestEinoToolWrapper(t *testing.T) {
	ft := &FuncTool{
		ToolID: "echo",
		Desc:   "echoes its input",
		Params: json.RawMessage(`{
			"type": "object",
			"properties": {
				"text": {"type": "string", "description": "text to echo"}
			},
			"required": ["text"]
		}`),
		ExecuteFunc: func(ctx context.Context, input map[string]any, tc *Context) (*Result, error) {
			return &Result{Output: strings.ToUpper(stringArg(input, "text"))}, nil
		},
	}

	et := EinoTool(ft)
	info, err := et.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "echo", info.Name)

	out, err := et.InvokableRun(context.Background(), `{"text":"hi"}`)
	require.NoError(t, err)
	assert.Equal(t, "HI", out)
}
