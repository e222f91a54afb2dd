package session

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/cadenza-ai/cadenza/internal/config"
	"github.com/cadenza-ai/cadenza/internal/provider"
	"github.com/cadenza-ai/cadenza/pkg/types"
)

// buildRequest assembles one completion request: system prompt, the
// model's view of the conversation and the agent's enabled tools.
func (r *Runner) buildRequest(ctx context.Context, sess *types.Session, agent *Agent, model *types.Model, msgs []*types.Message) (*provider.CompletionRequest, error) {
	system := buildSystemPrompt(sess, agent, model, r.cfg)

	einoMsgs := []*schema.Message{{Role: schema.System, Content: system}}

	parts := make(map[string][]types.Part, len(msgs))
	included := msgs[:0:0]
	for _, msg := range msgs {
		p, err := r.messages.Parts(ctx, msg.ID)
		if err != nil {
			return nil, err
		}
		// Errored messages with nothing streamed add noise, not context.
		if msg.Error != nil && len(p) == 0 {
			continue
		}
		parts[msg.ID] = p
		included = append(included, msg)
	}
	einoMsgs = append(einoMsgs, provider.BuildModelMessages(included, parts)...)

	var tools []*schema.ToolInfo
	if model.SupportsTools {
		tools = r.tools.ToolInfos(agent.Tools)
	}

	maxTokens := model.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	return &provider.CompletionRequest{
		Model:       model.ID,
		Messages:    einoMsgs,
		Tools:       tools,
		MaxTokens:   maxTokens,
		Temperature: agent.Temperature,
		TopP:        agent.TopP,
	}, nil
}

// buildSystemPrompt layers the agent prompt with environment context,
// project rules and configured instructions.
func buildSystemPrompt(sess *types.Session, agent *Agent, model *types.Model, cfg *config.Config) string {
	var sections []string

	if agent != nil && agent.Prompt != "" {
		sections = append(sections, agent.Prompt)
	}

	workDir := ""
	if sess != nil {
		workDir = sess.Directory
	}
	if workDir == "" {
		workDir, _ = os.Getwd()
	}

	sections = append(sections, environmentContext(workDir, model))

	if rules := loadProjectRules(workDir); rules != "" {
		sections = append(sections, rules)
	}

	if cfg != nil {
		for _, path := range cfg.Instructions {
			if !filepath.IsAbs(path) {
				path = filepath.Join(workDir, path)
			}
			if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
				sections = append(sections, string(content))
			}
		}
	}

	return strings.Join(sections, "\n\n")
}

func environmentContext(workDir string, model *types.Model) string {
	var b strings.Builder

	b.WriteString("# Environment\n\n")
	fmt.Fprintf(&b, "Working directory: %s\n", workDir)
	fmt.Fprintf(&b, "Date: %s\n", time.Now().Format("2006-01-02"))
	fmt.Fprintf(&b, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if model != nil {
		fmt.Fprintf(&b, "Model: %s\n", model.ID)
	}
	if branch := gitBranch(workDir); branch != "" {
		fmt.Fprintf(&b, "Git branch: %s\n", branch)
	}

	return b.String()
}

// loadProjectRules reads the first rules file found, nearest first.
func loadProjectRules(workDir string) string {
	locations := []string{
		filepath.Join(workDir, "AGENTS.md"),
		filepath.Join(workDir, ".cadenza", "rules.md"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		locations = append(locations, filepath.Join(home, ".config", "cadenza", "rules.md"))
	}

	for _, loc := range locations {
		if content, err := os.ReadFile(loc); err == nil && len(content) > 0 {
			return fmt.Sprintf("# Project Rules\n\n%s", string(content))
		}
	}
	return ""
}

func gitBranch(dir string) string {
	if dir == "" {
		return ""
	}
	cmd := exec.Command("git", "branch", "--show-current")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
