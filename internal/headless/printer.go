package headless

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cadenza-ai/cadenza/internal/event"
	"github.com/cadenza-ai/cadenza/pkg/types"
)

// jsonlEvent is one line of jsonl output.
type jsonlEvent struct {
	Type string    `json:"type"`
	TS   time.Time `json:"ts"`
	Data any       `json:"data"`
}

// Printer renders bus events for a single session and accumulates the
// final Result.
type Printer struct {
	mu          sync.Mutex
	w           io.Writer
	format      OutputFormat
	quiet       bool
	verbose     bool
	sessionID   string
	start       time.Time
	unsubscribe func()

	result    Result
	toolCalls []ToolCall
	seenTools map[string]bool
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer, format OutputFormat, quiet, verbose bool) *Printer {
	return &Printer{
		w:         w,
		format:    format,
		quiet:     quiet,
		verbose:   verbose,
		start:     time.Now(),
		result:    Result{Status: "running"},
		seenTools: make(map[string]bool),
	}
}

// Watch subscribes the printer to the bus, filtered to sessionID.
func (p *Printer) Watch(sessionID string) {
	p.mu.Lock()
	p.sessionID = sessionID
	p.result.SessionID = sessionID
	p.mu.Unlock()
	p.unsubscribe = event.SubscribeAll(p.handle)
}

// Close unsubscribes from the bus.
func (p *Printer) Close() {
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
}

// Finish records the terminal outcome and returns the completed result.
func (p *Printer) Finish(status string, code ExitCode, err error) *Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.result.Status = status
	p.result.ExitCode = code
	if err != nil {
		p.result.Error = err.Error()
	}
	p.result.DurationMS = time.Since(p.start).Milliseconds()
	p.result.ToolCalls = p.toolCalls

	out := p.result
	return &out
}

// PrintResult emits the final JSON document for json format runs.
func (p *Printer) PrintResult(result *Result) {
	if p.format != OutputJSON {
		return
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintln(p.w, string(data))
}

func (p *Printer) handle(e event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.matches(e) {
		return
	}
	p.track(e)

	switch p.format {
	case OutputText:
		p.printText(e)
	case OutputJSONL:
		p.printJSONL(e)
	}
}

func (p *Printer) matches(e event.Event) bool {
	switch data := e.Data.(type) {
	case event.SessionData:
		return data.Session != nil && data.Session.ID == p.sessionID
	case event.SessionErrorData:
		return data.SessionID == p.sessionID
	case event.SessionIdleData:
		return data.SessionID == p.sessionID
	case event.SessionCompactedData:
		return data.SessionID == p.sessionID
	case event.MessageData:
		return data.Message != nil && data.Message.SessionID == p.sessionID
	case event.PartData:
		return data.SessionID == p.sessionID
	case event.PermissionAskedData:
		return data.SessionID == p.sessionID
	}
	return true
}

// track folds events into the accumulating result regardless of format.
func (p *Printer) track(e event.Event) {
	switch data := e.Data.(type) {
	case event.MessageData:
		msg := data.Message
		if msg.Role != types.RoleAssistant || msg.Summary {
			return
		}
		if msg.Tokens != nil {
			p.result.Tokens = msg.Tokens
		}
		if msg.ModelID != "" {
			p.result.Model = msg.ModelID
		}

	case event.PartData:
		switch part := data.Part.(type) {
		case *types.TextPart:
			if data.Delta == "" && part.Text != "" {
				p.result.FinalMessage = part.Text
			}
		case *types.ToolPart:
			p.trackTool(part)
		}
	}
}

func (p *Printer) trackTool(part *types.ToolPart) {
	done := part.State.Status == types.ToolCompleted || part.State.Status == types.ToolError
	if !done || p.seenTools[part.ID] {
		return
	}
	p.seenTools[part.ID] = true
	p.toolCalls = append(p.toolCalls, ToolCall{
		Tool:   part.Tool,
		Input:  part.Input,
		Output: clip(part.State.Output, 500),
		Error:  part.State.Error,
	})
}

func (p *Printer) printText(e event.Event) {
	if p.quiet {
		if data, ok := e.Data.(event.PartData); ok && data.Delta != "" {
			if _, isText := data.Part.(*types.TextPart); isText {
				fmt.Fprint(p.w, data.Delta)
			}
		}
		return
	}

	switch data := e.Data.(type) {
	case event.PartData:
		switch part := data.Part.(type) {
		case *types.TextPart:
			if data.Delta != "" {
				fmt.Fprint(p.w, data.Delta)
			}
		case *types.ToolPart:
			p.printToolText(part)
		}

	case event.SessionErrorData:
		if data.Error != nil {
			fmt.Fprintf(p.w, "\n[error] %s\n", data.Error.Data.Message)
		}

	case event.SessionIdleData:
		fmt.Fprintf(p.w, "\n[done] %s", formatDuration(time.Since(p.start)))
		if p.result.Tokens != nil {
			fmt.Fprintf(p.w, " (input: %d, output: %d tokens)",
				p.result.Tokens.Input, p.result.Tokens.Output)
		}
		fmt.Fprintln(p.w)

	case event.PermissionAskedData:
		if p.verbose {
			fmt.Fprintf(p.w, "\n[permission] %s\n", data.Title)
		}
	}
}

func (p *Printer) printToolText(part *types.ToolPart) {
	switch part.State.Status {
	case types.ToolRunning:
		if info := describeToolCall(part); info != "" {
			fmt.Fprintf(p.w, "\n[%s] %s\n", part.Tool, info)
		}
	case types.ToolCompleted:
		if p.verbose {
			fmt.Fprintf(p.w, "[%s] done\n", part.Tool)
		}
	case types.ToolError:
		fmt.Fprintf(p.w, "[%s] error: %s\n", part.Tool, part.State.Error)
	}
}

func (p *Printer) printJSONL(e event.Event) {
	if !p.verbose && !importantEvent(e.Type) {
		return
	}
	data, err := json.Marshal(jsonlEvent{Type: string(e.Type), TS: time.Now(), Data: e.Data})
	if err != nil {
		return
	}
	fmt.Fprintln(p.w, string(data))
}

func importantEvent(t event.Type) bool {
	switch t {
	case event.SessionCreated, event.SessionError, event.SessionIdle,
		event.SessionCompacted, event.MessageCreated, event.PartUpdated,
		event.PermissionAsked, event.PermissionResolved:
		return true
	}
	return false
}

// describeToolCall renders a one-line summary of a running call from its
// well-known input fields.
func describeToolCall(part *types.ToolPart) string {
	input := part.Input
	if input == nil {
		return ""
	}

	switch part.Tool {
	case "read":
		if path, ok := input["filePath"].(string); ok {
			return "reading " + path
		}
	case "write":
		if path, ok := input["filePath"].(string); ok {
			return "writing " + path
		}
	case "bash":
		if cmd, ok := input["command"].(string); ok {
			cmd = strings.SplitN(cmd, "\n", 2)[0]
			return "$ " + clip(cmd, 60)
		}
	case "glob", "grep":
		if pattern, ok := input["pattern"].(string); ok {
			return "searching " + pattern
		}
	}
	return ""
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
