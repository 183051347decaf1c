package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/agent/protocol/mcp"
	"github.com/BaSui01/agentgraph/config"
	"github.com/BaSui01/agentgraph/llm/factory"
)

// DialToolServer 按配置建立到工具服务端的 MCP 客户端
//
// stdio 启动子进程；websocket 拨号并启用心跳与重连。
// 握手在首次调用（通常是 Initialize 中的 Ping）时进行。
func DialToolServer(ctx context.Context, cfg config.ToolServerConfig, logger *zap.Logger, opts ...mcp.ClientOption) (*mcp.DefaultMCPClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var transport mcp.Transport
	switch cfg.Transport {
	case config.TransportStdio:
		// 子进程生命周期由 Close 管理，不绑定到 ctx
		t, err := mcp.NewCommandTransport(context.WithoutCancel(ctx), cfg.Command, cfg.Args, logger)
		if err != nil {
			return nil, fmt.Errorf("start tool server: %w", err)
		}
		transport = t
	case config.TransportWebSocket:
		t := mcp.NewWebSocketTransport(cfg.URL, logger)
		dialCtx := ctx
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}
		if err := t.Connect(dialCtx); err != nil {
			return nil, fmt.Errorf("connect tool server: %w", err)
		}
		transport = t
	default:
		return nil, fmt.Errorf("unknown tool server transport %q", cfg.Transport)
	}

	if cfg.Timeout > 0 {
		opts = append([]mcp.ClientOption{mcp.WithRequestTimeout(cfg.Timeout)}, opts...)
	}
	return mcp.NewMCPClient(transport, logger, opts...), nil
}

// FromConfig 按完整配置组装 Agent：模型来自 factory，工具服务端来自 DialToolServer
//
// 返回的 Agent 尚未初始化；Close 会一并关闭工具服务端连接。
func FromConfig[S any](ctx context.Context, cfg *config.Config, def Definition[S], opts ...Option) (*Agent[S], error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	model, err := factory.NewChatModel(cfg.Model, o.logger)
	if err != nil {
		return nil, err
	}
	tools, err := DialToolServer(ctx, cfg.ToolServer, o.logger)
	if err != nil {
		return nil, err
	}

	a, err := New(cfg.Agent, def, model, tools, opts...)
	if err != nil {
		_ = tools.Close()
		return nil, err
	}
	return a, nil
}
