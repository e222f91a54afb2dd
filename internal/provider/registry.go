package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cadenza-ai/cadenza/internal/config"
	"github.com/cadenza-ai/cadenza/internal/logging"
	"github.com/cadenza-ai/cadenza/pkg/types"
)

// Registry holds the configured providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	config    *config.Config
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg *config.Config) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		config:    cfg,
	}
}

// Register adds a provider.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

// Get retrieves a provider by id.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return provider, nil
}

// List returns all registered providers.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	return providers
}

// GetModel retrieves one model from one provider.
func (r *Registry) GetModel(providerID, modelID string) (*types.Model, error) {
	provider, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}
	for _, m := range provider.Models() {
		if m.ID == modelID {
			return &m, nil
		}
	}
	return nil, fmt.Errorf("model not found: %s/%s", providerID, modelID)
}

// AllModels returns every model from every provider, best first.
func (r *Registry) AllModels() []types.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var models []types.Model
	for _, p := range r.providers {
		models = append(models, p.Models()...)
	}
	sort.Slice(models, func(i, j int) bool {
		return modelPriority(models[i].ID) > modelPriority(models[j].ID)
	})
	return models
}

// DefaultModel resolves the configured model, falling back to the best
// registered one.
func (r *Registry) DefaultModel() (*types.Model, error) {
	if r.config != nil && r.config.Model != "" {
		providerID, modelID := ParseModelString(r.config.Model)
		return r.GetModel(providerID, modelID)
	}

	if m, err := r.GetModel("anthropic", "claude-sonnet-4-20250514"); err == nil {
		return m, nil
	}

	models := r.AllModels()
	if len(models) == 0 {
		return nil, fmt.Errorf("no models available")
	}
	return &models[0], nil
}

// ParseModelString splits "provider/model".
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

func modelPriority(modelID string) int {
	switch {
	case strings.Contains(modelID, "gpt-5"):
		return 100
	case strings.Contains(modelID, "claude-sonnet-4"):
		return 90
	case strings.Contains(modelID, "claude-opus"):
		return 85
	case strings.Contains(modelID, "gpt-4o"):
		return 80
	case strings.Contains(modelID, "claude-3-5"):
		return 75
	default:
		return 50
	}
}

// InitializeProviders builds a registry from the configured credentials.
// A provider whose construction fails is skipped with a warning so one bad
// key does not take the whole registry down.
func InitializeProviders(ctx context.Context, cfg *config.Config) (*Registry, error) {
	registry := NewRegistry(cfg)
	log := logging.Component("provider")

	if pc, ok := cfg.Provider["anthropic"]; ok && pc.APIKey != "" {
		p, err := NewAnthropicProvider(ctx, &AnthropicConfig{
			APIKey:    pc.APIKey,
			BaseURL:   pc.BaseURL,
			Model:     pc.Model,
			MaxTokens: 8192,
		})
		if err != nil {
			log.Warn().Err(err).Msg("skipping anthropic provider")
		} else {
			registry.Register(p)
		}
	}

	if pc, ok := cfg.Provider["openai"]; ok && pc.APIKey != "" {
		p, err := NewOpenAIProvider(ctx, &OpenAIConfig{
			APIKey:    pc.APIKey,
			BaseURL:   pc.BaseURL,
			Model:     pc.Model,
			MaxTokens: 4096,
		})
		if err != nil {
			log.Warn().Err(err).Msg("skipping openai provider")
		} else {
			registry.Register(p)
		}
	}

	if pc, ok := cfg.Provider["ark"]; ok && pc.APIKey != "" {
		p, err := NewArkProvider(ctx, &ArkConfig{
			APIKey:    pc.APIKey,
			BaseURL:   pc.BaseURL,
			Model:     pc.Model,
			MaxTokens: 4096,
		})
		if err != nil {
			log.Warn().Err(err).Msg("skipping ark provider")
		} else {
			registry.Register(p)
		}
	}

	return registry, nil
}
