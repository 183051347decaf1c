package deepseek

import (
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/llm/providers"
	"github.com/BaSui01/agentgraph/llm/providers/openaicompat"
)

const (
	// DefaultBaseURL DeepSeek 官方 API 地址
	DefaultBaseURL = "https://api.deepseek.com"
	// DefaultModel 未指定模型时使用
	DefaultModel = "deepseek-chat"
	// ReasonerModel 推理模式下自动选择的模型
	ReasonerModel = "deepseek-reasoner"
)

// DeepSeekProvider 实现 DeepSeek LLM 提供者.
// DeepSeek 使用 OpenAI 兼容的 API 格式.
type DeepSeekProvider struct {
	*openaicompat.Provider
}

// NewDeepSeekProvider 创建新的 DeepSeek 提供者实例.
func NewDeepSeekProvider(cfg providers.DeepSeekConfig, logger *zap.Logger) *DeepSeekProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	return &DeepSeekProvider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName:      "deepseek",
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			DefaultModel:      cfg.Model,
			FallbackModel:     DefaultModel,
			Timeout:           cfg.Timeout,
			EndpointPath:      "/chat/completions",
			ModelsEndpoint:    "/models",
			RequestsPerSecond: cfg.RequestsPerSecond,
			RequestHook:       deepseekRequestHook,
		}, logger),
	}
}

// deepseekRequestHook 在 metadata 声明 reasoning_mode=thinking 且未指定模型时切换到 deepseek-reasoner
func deepseekRequestHook(req *llm.ChatRequest, body *providers.OpenAICompatRequest) {
	if req.Model != "" {
		return
	}
	switch req.Metadata["reasoning_mode"] {
	case "thinking", "extended":
		body.Model = ReasonerModel
	}
}
