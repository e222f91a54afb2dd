// Package session runs the agentic loop: it turns a pending user message
// into a finished assistant message, executing tool calls along the way.
package session

import (
	"github.com/cadenza-ai/cadenza/internal/config"
	"github.com/cadenza-ai/cadenza/internal/permission"
)

// Agent is one behavior profile: prompt, sampling, tool access and
// permission policy.
type Agent struct {
	Name        string  `json:"name"`
	Prompt      string  `json:"prompt,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"topP,omitempty"`
	MaxSteps    int     `json:"maxSteps,omitempty"`

	// Tools enables or disables tools by id. Tools absent from the map
	// are enabled.
	Tools map[string]bool `json:"tools,omitempty"`

	// Rules is the agent's permission ruleset: first match wins, no
	// match means ask.
	Rules permission.Ruleset `json:"rules,omitempty"`
}

// ToolEnabled reports whether a tool is available to this agent.
func (a *Agent) ToolEnabled(toolID string) bool {
	if a.Tools == nil {
		return true
	}
	if on, ok := a.Tools[toolID]; ok {
		return on
	}
	return true
}

// DefaultAgent is the general-purpose profile: every gated action asks.
func DefaultAgent() *Agent {
	return &Agent{
		Name:        "default",
		Temperature: 0.7,
		TopP:        1.0,
		MaxSteps:    50,
	}
}

// CodeAgent is tuned for editing: writes inside the workspace are
// pre-approved, shell commands still ask.
func CodeAgent() *Agent {
	return &Agent{
		Name:        "code",
		Temperature: 0.3,
		TopP:        0.95,
		MaxSteps:    100,
		Prompt: `You are an expert software engineer helping with coding tasks.
Focus on writing clean, maintainable code. Follow the existing conventions in the codebase.
When making changes, prefer minimal modifications and explain your reasoning.`,
		Rules: permission.Ruleset{
			{Permission: "edit", Pattern: "*", Action: permission.ActionAllow},
			{Permission: "read", Pattern: "*", Action: permission.ActionAllow},
		},
	}
}

// PlanAgent is read-only: analysis and planning with mutation denied.
func PlanAgent() *Agent {
	return &Agent{
		Name:        "plan",
		Temperature: 0.5,
		TopP:        1.0,
		MaxSteps:    20,
		Prompt: `You are a helpful assistant focused on planning and analysis.
Break down complex tasks into manageable steps and provide clear explanations.
Focus on understanding the problem before suggesting solutions.`,
		Tools: map[string]bool{
			"write": false,
			"bash":  false,
		},
		Rules: permission.Ruleset{
			{Permission: "read", Pattern: "*", Action: permission.ActionAllow},
			{Permission: permission.Any, Pattern: "*", Action: permission.ActionDeny},
		},
	}
}

// Agents returns the built-in profiles, customized by config.
func Agents(cfg *config.Config) map[string]*Agent {
	agents := map[string]*Agent{
		"default": DefaultAgent(),
		"code":    CodeAgent(),
		"plan":    PlanAgent(),
	}

	if cfg == nil {
		return agents
	}

	for name, ac := range cfg.Agent {
		if ac.Disable {
			delete(agents, name)
			continue
		}

		agent, ok := agents[name]
		if !ok {
			agent = &Agent{Name: name, Temperature: 0.7, TopP: 1.0, MaxSteps: 50}
			agents[name] = agent
		}
		if ac.Prompt != "" {
			agent.Prompt = ac.Prompt
		}
		if ac.Temperature != nil {
			agent.Temperature = *ac.Temperature
		}
		if ac.TopP != nil {
			agent.TopP = *ac.TopP
		}
		if ac.Tools != nil {
			agent.Tools = ac.Tools
		}
		if ac.Permissions != nil {
			agent.Rules = ac.Permissions
		}
	}

	return agents
}
