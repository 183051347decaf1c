// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package tlsutil 提供集中式 TLS 配置（TLS 1.2+，仅 AEAD 密码套件），
// 为 LLM Provider 的普通请求、SSE 流式请求以及 MCP WebSocket 握手提供安全加固的 HTTP 客户端。
package tlsutil
