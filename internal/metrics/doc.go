// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖工作流、LLM、
工具服务端与 HTTP 四个维度。

# 核心类型

  - Collector：指标收集器，实现 workflow.Observer，可直接通过
    workflow.WithObserver / agent.WithObserver 挂到运行时。
  - InstrumentedToolServer：包装工具服务端，记录探测与调用。

# 主要能力

  - 工作流指标：运行总数与耗时、进行中的运行数、节点执行计数与耗时、
    边转移计数。状态标签取错误码，无错误码时为 error。
  - LLM 指标：通过 InstrumentProvider 配合 llm.WithMiddleware 采集
    请求数、耗时与 token 用量。
  - 工具指标：调用计数与耗时、存活探测结果。
  - HTTP 指标：HTTPMiddleware 记录请求计数与耗时，状态码归类为 1xx..5xx。
*/
package metrics
