package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	"github.com/cadenza-ai/cadenza/internal/permission"
)

const (
	defaultBashTimeout = 120 * time.Second
	maxBashTimeout     = 10 * time.Minute
	maxOutputLength    = 30000
)

const bashDescription = `Executes a shell command.

Usage:
- Command is required
- Optional timeout in milliseconds (max 600000)
- Provide a brief description of what the command does
- Output is captured from stdout and stderr`

// BashTool runs shell commands. Each distinct command in the line is
// submitted as its own permission pattern, so "git status && rm -rf x"
// needs consent for both git and rm.
type BashTool struct {
	workDir string
	shell   string
}

// NewBashTool creates the bash tool.
func NewBashTool(workDir string) *BashTool {
	return &BashTool{workDir: workDir, shell: detectShell()}
}

func detectShell() string {
	if s := os.Getenv("SHELL"); s != "" {
		return s
	}
	if runtime.GOOS == "windows" {
		if comspec := os.Getenv("COMSPEC"); comspec != "" {
			return comspec
		}
		return "cmd.exe"
	}
	if bash, err := exec.LookPath("bash"); err == nil {
		return bash
	}
	return "/bin/sh"
}

func (t *BashTool) ID() string          { return "bash" }
func (t *BashTool) Description() string { return bashDescription }

func (t *BashTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {
				"type": "string",
				"description": "The command to execute"
			},
			"timeout": {
				"type": "integer",
				"description": "Optional timeout in milliseconds (max 600000)"
			},
			"description": {
				"type": "string",
				"description": "Brief description of what this command does"
			}
		},
		"required": ["command", "description"]
	}`)
}

func (t *BashTool) Permission(input map[string]any) *PermissionSpec {
	command := stringArg(input, "command")
	patterns, _ := permission.ShellPatterns(command)

	title := stringArg(input, "description")
	if title == "" {
		title = command
	}

	return &PermissionSpec{
		ID:       "bash",
		Patterns: patterns,
		Title:    title,
		Metadata: map[string]any{"command": command},
	}
}

func (t *BashTool) Execute(ctx context.Context, input map[string]any, tc *Context) (*Result, error) {
	command := stringArg(input, "command")
	if command == "" {
		return nil, fmt.Errorf("command is required")
	}

	timeout := defaultBashTimeout
	if ms := intArg(input, "timeout"); ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
		if timeout > maxBashTimeout {
			timeout = maxBashTimeout
		}
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(cmdCtx, t.shell, "/c", command)
	} else {
		cmd = exec.CommandContext(cmdCtx, t.shell, "-c", command)
	}

	if tc != nil && tc.WorkDir != "" {
		cmd.Dir = tc.WorkDir
	} else if t.workDir != "" {
		cmd.Dir = t.workDir
	}
	cmd.Env = os.Environ()
	if runtime.GOOS != "windows" {
		// Process group so child processes die with the command.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	output, err := cmd.CombinedOutput()
	timedOut := cmdCtx.Err() == context.DeadlineExceeded

	result := string(output)
	if len(result) > maxOutputLength {
		result = result[:maxOutputLength] + "\n\n(Output truncated)"
	}
	if timedOut {
		result += fmt.Sprintf("\n\n(Command timed out after %v)", timeout)
	}

	exitCode := 0
	if err != nil && !timedOut {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, err
		}
	}

	title := stringArg(input, "description")
	if title == "" {
		title = "Run command"
	}

	return &Result{
		Title:  title,
		Output: result,
		Metadata: map[string]any{
			"exitCode": exitCode,
			"timedOut": timedOut,
		},
	}, nil
}
