// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 agentgraph 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 workflow、agent、llm
等上层模块提供统一的类型契约，以避免循环依赖。

# 核心类型

  - Message / ToolCall — 对话消息与工具调用请求
  - ToolSchema         — 工具定义（name + description + JSON Schema parameters）
  - ToolResult         — 工具执行结果
  - Error / ErrorCode  — 结构化错误体系（图配置错误、运行期路由错误、连通性错误）

# 错误工具链

  - GetErrorCode / IsErrorCode 沿 errors.As 链提取错误码
  - IsRetryable 判断是否可重试
*/
package types
