package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadenza-ai/cadenza/internal/permission"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadProjectConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "cadenza.json", `{
		"model": "anthropic/claude-sonnet-4-20250514",
		"provider": {
			"anthropic": {"apiKey": "sk-test"}
		}
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "anthropic/claude-sonnet-4-20250514", cfg.Model)
	assert.Equal(t, "sk-test", cfg.Provider["anthropic"].APIKey)
}

func TestLoadJSONCComments(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "cadenza.jsonc", `{
		// default model
		"model": "openai/gpt-4o",
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o", cfg.Model)
}

func TestLoadPermissionRules(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "cadenza.json", `{
		"permissions": [
			{"permission": "read", "pattern": "*.env", "action": "deny"},
			{"permission": "*", "pattern": "*", "action": "allow"}
		]
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	require.Len(t, cfg.Permissions, 2)
	rules := permission.Ruleset(cfg.Permissions)
	assert.Equal(t, permission.ActionDeny, rules.Evaluate("read", "secret.env"))
	assert.Equal(t, permission.ActionAllow, rules.Evaluate("read", "main.go"))
}

func TestProjectOverridesNestedDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".cadenza"), 0o755))
	writeConfig(t, dir, "cadenza.json", `{"model": "openai/gpt-4o", "username": "ada"}`)
	writeConfig(t, filepath.Join(dir, ".cadenza"), "cadenza.json", `{"model": "anthropic/claude-sonnet-4-20250514"}`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	// The nested project config loads after the root one and wins.
	assert.Equal(t, "anthropic/claude-sonnet-4-20250514", cfg.Model)
	assert.Equal(t, "ada", cfg.Username)
}

func TestEnvOverridesModel(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "cadenza.json", `{"model": "openai/gpt-4o"}`)
	t.Setenv("CADENZA_MODEL", "anthropic/claude-3-5-haiku-20241022")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-3-5-haiku-20241022", cfg.Model)
}

func TestEnvProvidesAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-from-env")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Provider["anthropic"].APIKey)
}

func TestEnvDoesNotOverrideFileAPIKey(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "cadenza.json", `{"provider": {"anthropic": {"apiKey": "sk-file"}}}`)
	t.Setenv("ANTHROPIC_API_KEY", "sk-env")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "sk-file", cfg.Provider["anthropic"].APIKey)
}

func TestInterpolateEnvPlaceholder(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_CADENZA_KEY", "sk-interp")
	writeConfig(t, dir, "cadenza.json", `{"provider": {"openai": {"apiKey": "{env:TEST_CADENZA_KEY}"}}}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "sk-interp", cfg.Provider["openai"].APIKey)
}

func TestInterpolateFilePlaceholder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "key.txt"), []byte("sk-from-file"), 0o600))
	writeConfig(t, dir, "cadenza.json", `{"provider": {"openai": {"apiKey": "{file:key.txt}"}}}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-file", cfg.Provider["openai"].APIKey)
}

func TestInlineConfigContent(t *testing.T) {
	t.Setenv("CADENZA_CONFIG_CONTENT", `{"small_model": "anthropic/claude-3-5-haiku-20241022"}`)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-3-5-haiku-20241022", cfg.SmallModel)
}

func TestDotEnvLoaded(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, ".env", "CADENZA_DOOM_LOOP_THRESHOLD=5\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.DoomLoopThreshold)

	os.Unsetenv("CADENZA_DOOM_LOOP_THRESHOLD")
}
