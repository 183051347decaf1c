// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// 包 deepseek 提供 DeepSeek 模型的 Provider 预设，基于 openaicompat 实现。
// 当请求 metadata 中 reasoning_mode 为 thinking/extended 且未指定模型时，自动选用 deepseek-reasoner。
package deepseek
