// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// 包 zhipu 提供智谱 GLM 模型的 Provider 预设，基于 openaicompat 实现。
package zhipu
