// Package headless runs a single prompt to completion without the HTTP
// server, printing progress to the terminal. It is the engine behind
// `cadenza run`.
package headless

import (
	"time"

	"github.com/cadenza-ai/cadenza/pkg/types"
)

// OutputFormat selects how run progress and results are printed.
type OutputFormat string

const (
	// OutputText streams human-readable text.
	OutputText OutputFormat = "text"
	// OutputJSON prints a single JSON result when the run finishes.
	OutputJSON OutputFormat = "json"
	// OutputJSONL streams one JSON event per line.
	OutputJSONL OutputFormat = "jsonl"
)

// ExitCode maps run outcomes to process exit codes.
type ExitCode int

const (
	ExitSuccess          ExitCode = 0
	ExitError            ExitCode = 1
	ExitTimeout          ExitCode = 2
	ExitPermissionDenied ExitCode = 3
	ExitProviderError    ExitCode = 4
	ExitInvalidInput     ExitCode = 5
	ExitSessionNotFound  ExitCode = 6
)

// Config holds the knobs for one headless run.
type Config struct {
	// Prompt is the user instruction. Required unless continuing a
	// session with no new input.
	Prompt string
	// WorkDir is the project directory the session is scoped to.
	WorkDir string
	// AutoApprove grants every permission ask without prompting.
	AutoApprove bool
	// OutputFormat is text, json or jsonl.
	OutputFormat OutputFormat
	// Timeout bounds the whole run. Zero means no limit.
	Timeout time.Duration
	// SessionID continues an existing session.
	SessionID string
	// ContinueLast continues the most recently updated session in
	// WorkDir.
	ContinueLast bool
	// Files are attached to the prompt as inline context.
	Files []string
	// Model overrides the configured default, provider/model format.
	Model string
	// Agent names the agent profile to run under.
	Agent string
	// Title names the session when a new one is created.
	Title string
	// Quiet suppresses progress output, printing only streamed text.
	Quiet bool
	// Verbose includes tool lifecycle and permission events in output.
	Verbose bool
}

// DefaultConfig returns the defaults for a headless run.
func DefaultConfig() *Config {
	return &Config{
		OutputFormat: OutputText,
		Timeout:      30 * time.Minute,
	}
}

// ToolCall summarizes one tool execution for the JSON result.
type ToolCall struct {
	Tool   string         `json:"tool"`
	Input  map[string]any `json:"input,omitempty"`
	Output string         `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Result is the final outcome of a headless run.
type Result struct {
	SessionID    string            `json:"sessionID"`
	Status       string            `json:"status"`
	Model        string            `json:"model,omitempty"`
	DurationMS   int64             `json:"durationMS"`
	Tokens       *types.TokenUsage `json:"tokens,omitempty"`
	ToolCalls    []ToolCall        `json:"toolCalls,omitempty"`
	FinalMessage string            `json:"finalMessage,omitempty"`
	Error        string            `json:"error,omitempty"`
	ExitCode     ExitCode          `json:"exitCode"`
}
