package factory

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/config"
	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/llm/providers"
	"github.com/BaSui01/agentgraph/llm/providers/deepseek"
	"github.com/BaSui01/agentgraph/llm/providers/openaicompat"
	"github.com/BaSui01/agentgraph/llm/providers/zhipu"
)

// ProviderConfig is the generic configuration accepted by the factory function.
type ProviderConfig struct {
	APIKey            string        `json:"api_key" yaml:"api_key"`
	BaseURL           string        `json:"base_url" yaml:"base_url"`
	Model             string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout           time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	RequestsPerSecond float64       `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`
	MaxRetries        int           `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// SupportedProviders lists the names accepted by NewProviderFromConfig.
var SupportedProviders = []string{"deepseek", "zhipu", "openai"}

// NewProviderFromConfig creates a Provider instance based on the provider name.
// "openai" builds a generic OpenAI-compatible provider and requires BaseURL.
// A positive MaxRetries wraps the provider in a RetryableProvider.
func NewProviderFromConfig(name string, cfg ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	base := providers.BaseProviderConfig{
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		Model:             cfg.Model,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}

	var p llm.Provider
	switch name {
	case "deepseek":
		p = deepseek.NewDeepSeekProvider(providers.DeepSeekConfig{BaseProviderConfig: base}, logger)
	case "zhipu", "glm":
		p = zhipu.NewZhipuProvider(providers.ZhipuConfig{BaseProviderConfig: base}, logger)
	case "openai":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("provider %q requires a base URL", name)
		}
		p = openaicompat.New(openaicompat.Config{
			ProviderName:      "openai",
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			DefaultModel:      cfg.Model,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown provider %q (supported: %v)", name, SupportedProviders)
	}

	if cfg.MaxRetries > 0 {
		rc := providers.DefaultRetryConfig()
		rc.MaxRetries = cfg.MaxRetries
		p = providers.NewRetryableProvider(p, rc, logger)
	}
	return p, nil
}

// NewChatModel builds a provider from cfg and binds it to the configured model
// and generation parameters. Extra options are applied last.
func NewChatModel(cfg config.ModelConfig, logger *zap.Logger, opts ...llm.ChatModelOption) (*llm.ChatModel, error) {
	p, err := NewProviderFromConfig(cfg.Provider, ProviderConfig{
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		Model:             cfg.Model,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		MaxRetries:        cfg.MaxRetries,
	}, logger)
	if err != nil {
		return nil, err
	}

	base := []llm.ChatModelOption{
		llm.WithModel(cfg.Model),
		llm.WithParams(llm.GenerationParams{
			Temperature: cfg.Generation.Temperature,
			MaxTokens:   cfg.Generation.MaxTokens,
			TopP:        cfg.Generation.TopP,
			Stop:        cfg.Generation.Stop,
		}),
		llm.WithLogger(logger),
	}
	if cfg.ToolChoice != "" {
		base = append(base, llm.WithToolChoice(cfg.ToolChoice))
	}
	if cfg.ReasoningMode != "" {
		base = append(base, llm.WithMetadata("reasoning_mode", cfg.ReasoningMode))
	}
	return llm.NewChatModel(p, append(base, opts...)...), nil
}
