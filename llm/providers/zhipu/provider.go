package zhipu

import (
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/llm/providers"
	"github.com/BaSui01/agentgraph/llm/providers/openaicompat"
)

const (
	DefaultBaseURL = "https://open.bigmodel.cn"
	DefaultModel   = "glm-4-flash"
)

// ZhipuProvider 智谱 AI GLM 提供者，使用 OpenAI 兼容的 API 格式.
type ZhipuProvider struct {
	*openaicompat.Provider
}

// NewZhipuProvider 创建智谱提供者实例.
func NewZhipuProvider(cfg providers.ZhipuConfig, logger *zap.Logger) *ZhipuProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	return &ZhipuProvider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName:      "zhipu",
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			DefaultModel:      cfg.Model,
			FallbackModel:     DefaultModel,
			Timeout:           cfg.Timeout,
			EndpointPath:      "/api/paas/v4/chat/completions",
			ModelsEndpoint:    "/api/paas/v4/models",
			RequestsPerSecond: cfg.RequestsPerSecond,
			RequestHook:       cleanEmptyTools,
		}, logger),
	}
}

// cleanEmptyTools GLM 拒绝空 tools 数组与孤立的 tool_choice
func cleanEmptyTools(_ *llm.ChatRequest, body *providers.OpenAICompatRequest) {
	if len(body.Tools) == 0 {
		body.Tools = nil
		body.ToolChoice = nil
	}
}
