// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 providers 提供跨模型服务商的通用适配能力，是具体 Provider 实现的公共基础层。

# 核心类型

  - BaseProviderConfig — Provider 共享的基础配置（APIKey、BaseURL、Model、Timeout、限流）
  - OpenAICompat* 系列 — OpenAI 兼容 API 的请求/响应/工具调用结构体
  - RetryableProvider — 带指数退避重试的 Provider 包装器

# 核心函数

  - MapHTTPError — 将 HTTP 状态码映射为带 Retryable 标记的 *types.Error
  - ReadErrorMessage — 解析上游错误响应体
  - ConvertMessagesToOpenAI / ConvertToolsToOpenAI / ToLLMChatResponse — 格式转换

# 子包

  - openaicompat — OpenAI 兼容协议的通用实现
  - deepseek / zhipu — 基于 openaicompat 的服务商预设
*/
package providers
