// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package config 提供 AgentGraph 的配置管理功能。
//
// 配置来源按优先级依次为：默认值、YAML 文件、环境变量（前缀 AGENTGRAPH，
// 例如 AGENTGRAPH_MODEL_API_KEY、AGENTGRAPH_TOOL_SERVER_URL）。
// 覆盖模型、工具服务器、图执行、日志、遥测与指标配置。
package config
