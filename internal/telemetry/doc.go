// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package telemetry 封装 OpenTelemetry SDK 初始化，为工作流引擎产生的
// span 提供 OTLP 导出。禁用时保持全局 noop 实现，不连接任何外部服务。
package telemetry
