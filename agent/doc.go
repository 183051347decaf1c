// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package agent 把一个状态图定义绑定到语言模型与工具服务端。

# 生命周期

	init ──Initialize──▶ ready ──Close──▶ closed
	  │                    ▲
	  └──(compile error)──▶ failed ──Close──▶ closed

Initialize 依次执行：

 1. Ping 工具服务端；失败返回 TOOL_SERVER_UNAVAILABLE，Agent 保持 init，可重试。
 2. 用 "Hello" 探测模型，要求非空回复；失败返回 PROVIDER_UNAVAILABLE。
 3. 调用 Definition.Graph 并编译。编译至多发生一次，失败后进入 failed。

只有 ready 状态下 Invoke、InvokeAsync、Execute、Stream 可用，否则返回
AGENT_NOT_READY。

# 扩展

具体 Agent 实现 Definition[S]：Schema 声明状态键与合并规则，Graph 基于
Deps（模型、工具服务端、配置、日志）返回节点与边。agent/react 是内置的
ReAct 实现。

# 装配

FromConfig 按 config.Config 创建模型（llm/factory）并通过 DialToolServer
连接 MCP 工具服务端（stdio 子进程或 WebSocket）。
*/
package agent
