// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package llm 定义语言模型协作方的统一接入契约。

# 概述

[Provider] 屏蔽不同服务商在接口、鉴权、错误语义与流式协议上的差异，
[ChatModel] 在其上绑定模型名、生成参数与工具集合，提供同步、异步与流式三种生成方式。

# 核心类型

  - [Provider]     — Completion / Stream / HealthCheck / Name / SupportsNativeFunctionCalling
  - [ChatModel]    — Generate / GenerateAsync / GenerateStream / WithTools
  - [Probe]        — 初始化期的存活探测：发送 "Hello"，要求非空回复
  - [Accumulate]   — 将流式分片合并为完整的助手消息

具体的 HTTP 实现位于 llm/providers 子包，按配置构造 Provider 见 llm/factory。
*/
package llm
