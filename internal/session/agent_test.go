package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadenza-ai/cadenza/internal/config"
	"github.com/cadenza-ai/cadenza/internal/permission"
)

func TestToolEnabled(t *testing.T) {
	a := PlanAgent()
	assert.False(t, a.ToolEnabled("write"))
	assert.False(t, a.ToolEnabled("bash"))
	assert.True(t, a.ToolEnabled("read"))
	assert.True(t, a.ToolEnabled("glob"))

	assert.True(t, DefaultAgent().ToolEnabled("bash"))
}

func TestPlanAgentDeniesMutation(t *testing.T) {
	a := PlanAgent()
	assert.Equal(t, permission.ActionAllow, a.Rules.Evaluate("read", "main.go"))
	assert.Equal(t, permission.ActionDeny, a.Rules.Evaluate("edit", "main.go"))
	assert.Equal(t, permission.ActionDeny, a.Rules.Evaluate("bash", "rm -rf *"))
}

func TestAgentsBuiltins(t *testing.T) {
	agents := Agents(nil)
	require.Contains(t, agents, "default")
	require.Contains(t, agents, "code")
	require.Contains(t, agents, "plan")
}

func TestAgentsConfigOverrides(t *testing.T) {
	temp := 0.1
	cfg := &config.Config{
		Agent: map[string]config.AgentConfig{
			"code": {Temperature: &temp, Prompt: "custom prompt"},
			"plan": {Disable: true},
			"review": {
				Prompt: "review changes",
				Tools:  map[string]bool{"write": false},
				Permissions: []permission.Rule{
					{Permission: "read", Pattern: "*", Action: permission.ActionAllow},
				},
			},
		},
	}

	agents := Agents(cfg)

	assert.NotContains(t, agents, "plan")

	code := agents["code"]
	require.NotNil(t, code)
	assert.Equal(t, 0.1, code.Temperature)
	assert.Equal(t, "custom prompt", code.Prompt)
	// Untouched fields keep the builtin values.
	assert.Equal(t, 100, code.MaxSteps)

	review := agents["review"]
	require.NotNil(t, review)
	assert.False(t, review.ToolEnabled("write"))
	assert.Equal(t, permission.ActionAllow, review.Rules.Evaluate("read", "anything"))
}
