// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package mcp 实现 Model Context Protocol (MCP) 的工具子集。
//
// 提供 tools 能力的服务端（DefaultMCPServer）与客户端（DefaultMCPClient），
// 消息为 JSON-RPC 2.0，传输层支持 stdio（Content-Length 分帧，可托管子进程）
// 和 WebSocket（心跳与指数退避重连）。工具参数按 inputSchema 做 JSON Schema 校验。
//
// DefaultMCPClient 满足 agent 包所需的工具服务端接口：Ping、ListTools、CallTool。
package mcp
