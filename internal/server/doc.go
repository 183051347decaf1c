// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 server 提供 HTTP 服务器生命周期管理：先 Listen 拿到实际地址，
再 Run 阻塞服务直到 context 取消并优雅关闭。

命令行入口用它承载 Prometheus 指标端点与 WebSocket 工具服务端。
*/
package server
