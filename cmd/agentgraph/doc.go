// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
agentgraph 是类型化状态图 Agent 的命令行入口。

# 命令

  - run：加载配置，初始化 ReAct Agent（先探测工具服务端，再探测模型，
    最后编译图），回答一个问题后退出。问题取位置参数或 stdin。
  - health：只执行初始化门控，输出模型名与工具列表。
  - tools：通过 MCP 提供内置演示工具（calculator、current_time、
    word_count），支持 stdio 与 WebSocket 两种传输。
  - version：输出版本信息。

启用 metrics 时，run 在后台提供 /metrics 端点，收集工作流、LLM
与工具调用指标；启用 telemetry 时，工作流 span 通过 OTLP 导出。
*/
package main
