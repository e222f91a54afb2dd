// Package config loads layered configuration: global file, project file,
// .env, then environment overrides.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"

	"github.com/cadenza-ai/cadenza/internal/permission"
)

// Config is the resolved configuration.
type Config struct {
	Schema   string `json:"$schema,omitempty"`
	Username string `json:"username,omitempty"`

	// Model selects the default model as "provider/model". SmallModel is
	// used for cheap internal calls such as compaction summaries.
	Model      string `json:"model,omitempty"`
	SmallModel string `json:"small_model,omitempty"`

	// Instructions are extra prompt files appended to the system prompt.
	Instructions []string `json:"instructions,omitempty"`

	// Tools enables or disables tools globally by id.
	Tools map[string]bool `json:"tools,omitempty"`

	Provider map[string]ProviderConfig `json:"provider,omitempty"`
	Agent    map[string]AgentConfig    `json:"agent,omitempty"`

	// Permissions is the ordered rule list consulted after remembered
	// approvals. First match wins.
	Permissions []permission.Rule `json:"permissions,omitempty"`

	Compaction *CompactionConfig `json:"compaction,omitempty"`
	Retry      *RetryConfig      `json:"retry,omitempty"`

	// DoomLoopThreshold is how many identical consecutive tool calls
	// trigger the doom-loop gate. Zero means the default.
	DoomLoopThreshold int `json:"doomLoopThreshold,omitempty"`
}

// Redacted returns a copy safe to serve over the API: provider API keys
// are masked, everything else passes through.
func (c *Config) Redacted() *Config {
	out := *c
	if c.Provider != nil {
		out.Provider = make(map[string]ProviderConfig, len(c.Provider))
		for name, pc := range c.Provider {
			if pc.APIKey != "" {
				pc.APIKey = "(redacted)"
			}
			out.Provider[name] = pc
		}
	}
	return &out
}

// ProviderConfig holds credentials and endpoint settings for one provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`
	Model   string `json:"model,omitempty"`
	Disable bool   `json:"disable,omitempty"`
}

// AgentConfig customizes one agent profile.
type AgentConfig struct {
	Model       string            `json:"model,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	TopP        *float64          `json:"top_p,omitempty"`
	Prompt      string            `json:"prompt,omitempty"`
	Tools       map[string]bool   `json:"tools,omitempty"`
	Permissions []permission.Rule `json:"permissions,omitempty"`
	Description string            `json:"description,omitempty"`
	Disable     bool              `json:"disable,omitempty"`
}

// CompactionConfig tunes the context compactor.
type CompactionConfig struct {
	// ThresholdPercent of the context window at which a session counts
	// as overflowing. Zero means the default of 90.
	ThresholdPercent int `json:"thresholdPercent,omitempty"`

	// KeepRecent is how many of the newest messages survive a compaction
	// pass verbatim. Zero means the default of 10.
	KeepRecent int `json:"keepRecent,omitempty"`

	// ProtectedTokens is the token budget the prune pass will not cut
	// into, counted from the newest message backwards. Zero means the
	// default of 40000.
	ProtectedTokens int `json:"protectedTokens,omitempty"`
}

// RetryConfig tunes provider retry behavior.
type RetryConfig struct {
	// MaxAttempts including the first try. Zero means the default of 5.
	MaxAttempts int `json:"maxAttempts,omitempty"`
}

// Load resolves configuration for a project directory. Sources, lowest
// priority first: global cadenza.json(c), project cadenza.json(c), the
// project .env file, then process environment variables.
func Load(directory string) (*Config, error) {
	cfg := &Config{
		Provider: make(map[string]ProviderConfig),
		Agent:    make(map[string]AgentConfig),
	}

	loaded := make(map[string]bool)
	loadOnce := func(path, baseDir string) {
		abs, err := filepath.Abs(path)
		if err != nil || loaded[abs] {
			return
		}
		if loadFile(path, cfg, baseDir) == nil {
			loaded[abs] = true
		}
	}

	global := Paths().Config
	loadOnce(filepath.Join(global, "cadenza.json"), global)
	loadOnce(filepath.Join(global, "cadenza.jsonc"), global)

	if directory != "" {
		loadOnce(filepath.Join(directory, "cadenza.json"), directory)
		loadOnce(filepath.Join(directory, "cadenza.jsonc"), directory)
		projectDir := filepath.Join(directory, ".cadenza")
		loadOnce(filepath.Join(projectDir, "cadenza.json"), projectDir)
		loadOnce(filepath.Join(projectDir, "cadenza.jsonc"), projectDir)

		_ = godotenv.Load(filepath.Join(directory, ".env"))
	}

	if path := os.Getenv("CADENZA_CONFIG"); path != "" {
		loadOnce(path, filepath.Dir(path))
	}
	if content := os.Getenv("CADENZA_CONFIG_CONTENT"); content != "" {
		var inline Config
		if err := json.Unmarshal([]byte(content), &inline); err == nil {
			merge(cfg, &inline)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data, baseDir)

	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return err
	}
	merge(cfg, &fileCfg)
	return nil
}

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// interpolate expands {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		path := filePattern.FindStringSubmatch(match)[1]
		if strings.HasPrefix(path, "~/") {
			path = filepath.Join(os.Getenv("HOME"), path[2:])
		} else if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return match
		}
		escaped, _ := json.Marshal(string(content))
		// Marshal adds surrounding quotes; the placeholder sits inside a
		// JSON string already.
		return string(escaped[1 : len(escaped)-1])
	})

	return []byte(str)
}

func merge(target, source *Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.Username != "" {
		target.Username = source.Username
	}
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.SmallModel != "" {
		target.SmallModel = source.SmallModel
	}
	if len(source.Instructions) > 0 {
		target.Instructions = append(target.Instructions, source.Instructions...)
	}
	if source.Tools != nil {
		if target.Tools == nil {
			target.Tools = make(map[string]bool)
		}
		for k, v := range source.Tools {
			target.Tools[k] = v
		}
	}
	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}
	if source.Agent != nil {
		if target.Agent == nil {
			target.Agent = make(map[string]AgentConfig)
		}
		for k, v := range source.Agent {
			target.Agent[k] = v
		}
	}
	if source.Permissions != nil {
		target.Permissions = source.Permissions
	}
	if source.Compaction != nil {
		target.Compaction = source.Compaction
	}
	if source.Retry != nil {
		target.Retry = source.Retry
	}
	if source.DoomLoopThreshold != 0 {
		target.DoomLoopThreshold = source.DoomLoopThreshold
	}
}

func applyEnvOverrides(cfg *Config) {
	providerEnv := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"ark":       "ARK_API_KEY",
	}
	for name, envVar := range providerEnv {
		key := os.Getenv(envVar)
		if key == "" {
			continue
		}
		if cfg.Provider == nil {
			cfg.Provider = make(map[string]ProviderConfig)
		}
		p := cfg.Provider[name]
		if p.APIKey == "" {
			p.APIKey = key
			cfg.Provider[name] = p
		}
	}

	if model := os.Getenv("CADENZA_MODEL"); model != "" {
		cfg.Model = model
	}
	if model := os.Getenv("CADENZA_SMALL_MODEL"); model != "" {
		cfg.SmallModel = model
	}
	if v := os.Getenv("CADENZA_DOOM_LOOP_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DoomLoopThreshold = n
		}
	}
	if raw := os.Getenv("CADENZA_PERMISSIONS"); raw != "" {
		var rules []permission.Rule
		if err := json.Unmarshal([]byte(raw), &rules); err == nil {
			cfg.Permissions = rules
		}
	}
}
