package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/cadenza-ai/cadenza/pkg/types"
)

// ArkProvider implements Provider for Volcengine ARK endpoints.
type ArkProvider struct {
	chatModel model.ToolCallingChatModel
	models    []types.Model
	config    *ArkConfig
}

// ArkConfig holds configuration for the ARK provider. Model is the
// endpoint id on the ARK platform.
type ArkConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// NewArkProvider creates an ARK provider.
func NewArkProvider(ctx context.Context, config *ArkConfig) (*ArkProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ARK_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ARK_API_KEY not set")
	}

	modelID := config.Model
	if modelID == "" {
		modelID = os.Getenv("ARK_MODEL_ID")
	}
	if modelID == "" {
		return nil, fmt.Errorf("ARK_MODEL_ID not set")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("ARK_BASE_URL")
	}

	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	cfg := &ark.ChatModelConfig{
		APIKey:    apiKey,
		Model:     modelID,
		MaxTokens: &maxTokens,
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	chatModel, err := ark.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create ark model: %w", err)
	}

	return &ArkProvider{
		chatModel: chatModel,
		models: []types.Model{{
			ID:              modelID,
			Name:            "ARK Endpoint",
			ProviderID:      "ark",
			ContextWindow:   128000,
			MaxOutputTokens: maxTokens,
			SupportsTools:   true,
		}},
		config: config,
	}, nil
}

func (p *ArkProvider) ID() string { return "ark" }

func (p *ArkProvider) Name() string { return "ARK" }

func (p *ArkProvider) Models() []types.Model { return p.models }

func (p *ArkProvider) ChatModel() model.ToolCallingChatModel { return p.chatModel }

// CreateCompletion opens a streaming completion.
func (p *ArkProvider) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error) {
	chatModel := p.chatModel
	if len(req.Tools) > 0 {
		var err error
		chatModel, err = chatModel.WithTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("bind tools: %w", err)
		}
	}

	stream, err := chatModel.Stream(ctx, req.Messages,
		model.WithMaxTokens(req.MaxTokens),
		model.WithTemperature(float32(req.Temperature)),
	)
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}
	return NewCompletionStream(stream), nil
}
