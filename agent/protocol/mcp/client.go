package mcp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/types"
)

// ErrClientClosed is returned by calls made after Close.
var ErrClientClosed = errors.New("mcp: client is closed")

// ClientOption 客户端选项
type ClientOption func(*DefaultMCPClient)

// WithClientInfo 设置 initialize 握手中上报的客户端名称和版本
func WithClientInfo(name, version string) ClientOption {
	return func(c *DefaultMCPClient) {
		c.clientName = name
		c.clientVersion = version
	}
}

// WithRequestTimeout 设置单个请求的默认超时（ctx 无 deadline 时生效）
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *DefaultMCPClient) {
		c.requestTimeout = d
	}
}

type toolEntry struct {
	def       ToolDefinition
	validator *argumentValidator
}

// DefaultMCPClient MCP 客户端默认实现
//
// 首次调用时懒连接：完成 initialize 握手并发送 notifications/initialized，
// 之后由一个读循环按请求 id 分发响应。
type DefaultMCPClient struct {
	transport Transport
	logger    *zap.Logger

	clientName     string
	clientVersion  string
	requestTimeout time.Duration

	// 请求管理
	nextID    atomic.Int64
	pending   map[int64]chan *MCPMessage
	pendingMu sync.Mutex

	// 连接状态；connectMu 串行化握手，mu 只做短暂保护
	connectMu  sync.Mutex
	mu         sync.Mutex
	connected  bool
	closed     bool
	serverInfo *ServerInfo
	readErr    error
	done       chan struct{}
	cancel     context.CancelFunc

	// 工具缓存
	tools   map[string]toolEntry
	toolsMu sync.RWMutex
}

// NewMCPClient 创建 MCP 客户端
func NewMCPClient(transport Transport, logger *zap.Logger, opts ...ClientOption) *DefaultMCPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &DefaultMCPClient{
		transport:      transport,
		logger:         logger.With(zap.String("component", "mcp_client")),
		clientName:     "agentgraph",
		clientVersion:  "dev",
		requestTimeout: 30 * time.Second,
		pending:        make(map[int64]chan *MCPMessage),
		done:           make(chan struct{}),
		tools:          make(map[string]toolEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ServerInfo 返回握手得到的服务器信息，未连接时为 nil
func (c *DefaultMCPClient) ServerInfo() *ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// ensureConnected 在首次使用时启动读循环并完成握手
func (c *DefaultMCPClient) ensureConnected(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	if c.cancel == nil {
		// 读循环的生命周期跟随客户端，而不是某次调用的 ctx
		loopCtx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		go c.readLoop(loopCtx)
	}
	c.mu.Unlock()

	var result InitializeResult
	err := c.call(ctx, MethodInitialize, map[string]any{
		"protocolVersion": MCPVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    c.clientName,
			"version": c.clientVersion,
		},
	}, &result)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	if err := c.transport.Send(ctx, NewMCPNotification(MethodInitialized, nil)); err != nil {
		return fmt.Errorf("send initialized notification: %w", err)
	}

	info := result.ServerInfo
	if info.ProtocolVersion == "" {
		info.ProtocolVersion = result.ProtocolVersion
	}
	info.Capabilities = result.Capabilities

	c.mu.Lock()
	c.serverInfo = &info
	c.connected = c.readErr == nil && !c.closed
	c.mu.Unlock()

	c.logger.Info("connected to MCP server",
		zap.String("server", info.Name),
		zap.String("version", info.Version),
		zap.String("protocol", info.ProtocolVersion))
	return nil
}

func (c *DefaultMCPClient) readLoop(ctx context.Context) {
	for {
		msg, err := c.transport.Receive(ctx)
		if err != nil {
			var mcpErr *MCPError
			if errors.As(err, &mcpErr) && mcpErr.Code == ErrorCodeParseError {
				c.logger.Warn("dropping unparseable message", zap.Error(err))
				continue
			}
			c.fail(err)
			return
		}
		if !msg.IsResponse() {
			// 服务端主动通知（日志等）只记录
			c.logger.Debug("server notification", zap.String("method", msg.Method))
			continue
		}
		id, ok := requestID(msg.ID)
		if !ok {
			c.logger.Warn("response with unexpected id", zap.Any("id", msg.ID))
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[id]
		delete(c.pending, id)
		c.pendingMu.Unlock()
		if !ok {
			c.logger.Warn("response for unknown request", zap.Int64("id", id))
			continue
		}
		ch <- msg
	}
}

// fail 结束读循环：记录原因并唤醒所有等待中的请求
func (c *DefaultMCPClient) fail(err error) {
	c.mu.Lock()
	closed := c.closed
	if c.readErr == nil {
		c.readErr = err
		c.connected = false
		close(c.done)
	}
	c.mu.Unlock()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	if !closed {
		c.logger.Warn("MCP connection lost", zap.Error(err))
	}
}

func (c *DefaultMCPClient) connectionError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if c.readErr != nil {
		return fmt.Errorf("connection lost: %w", c.readErr)
	}
	return errors.New("connection lost")
}

// call 发送请求并等待响应，result 非 nil 时解码结果
func (c *DefaultMCPClient) call(ctx context.Context, method string, params map[string]any, result any) error {
	if _, ok := ctx.Deadline(); !ok && c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	id := c.nextID.Add(1)
	ch := make(chan *MCPMessage, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	cleanup := func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}

	select {
	case <-c.done:
		cleanup()
		return c.connectionError()
	default:
	}

	if err := c.transport.Send(ctx, NewMCPRequest(id, method, params)); err != nil {
		cleanup()
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		cleanup()
		return ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return c.connectionError()
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result == nil {
			return nil
		}
		return decodeResult(resp.Result, result)
	}
}

// Ping 探测服务器是否存活
func (c *DefaultMCPClient) Ping(ctx context.Context) (bool, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return false, err
	}
	if err := c.call(ctx, MethodPing, nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

// ListTools 列出服务器工具，并刷新本地参数校验缓存
func (c *DefaultMCPClient) ListTools(ctx context.Context) ([]types.ToolSchema, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	var result struct {
		Tools []ToolDefinition `json:"tools"`
	}
	if err := c.call(ctx, MethodToolsList, nil, &result); err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	tools := make(map[string]toolEntry, len(result.Tools))
	schemas := make([]types.ToolSchema, 0, len(result.Tools))
	for _, def := range result.Tools {
		v, err := newArgumentValidator(def.InputSchema)
		if err != nil {
			// 无法编译的 schema 不阻止调用，交由服务器校验
			c.logger.Warn("ignoring invalid tool schema",
				zap.String("tool", def.Name), zap.Error(err))
		}
		tools[def.Name] = toolEntry{def: def, validator: v}
		schemas = append(schemas, def.ToToolSchema())
	}

	c.toolsMu.Lock()
	c.tools = tools
	c.toolsMu.Unlock()

	return schemas, nil
}

// CallTool 调用工具并返回其文本结果
//
// 已通过 ListTools 获知的工具会先在本地校验参数。
func (c *DefaultMCPClient) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	c.toolsMu.RLock()
	entry, known := c.tools[name]
	c.toolsMu.RUnlock()
	if known {
		if err := entry.validator.validate(args); err != nil {
			return nil, types.Errorf(types.ErrToolValidation, "invalid arguments for tool %s", name).WithCause(err)
		}
	}

	if args == nil {
		args = map[string]any{}
	}
	var result CallToolResult
	err := c.call(ctx, MethodToolsCall, map[string]any{
		"name":      name,
		"arguments": args,
	}, &result)
	if err != nil {
		var mcpErr *MCPError
		if errors.As(err, &mcpErr) {
			switch mcpErr.Code {
			case ErrorCodeInvalidParams:
				return nil, types.Errorf(types.ErrToolValidation, "tool %s rejected arguments", name).WithCause(err)
			case ErrorCodeMethodNotFound:
				return nil, types.Errorf(types.ErrToolNotFound, "tool %s not found", name).WithCause(err)
			}
		}
		return nil, types.Errorf(types.ErrToolServerFailed, "call tool %s", name).WithCause(err)
	}
	if result.IsError {
		return nil, types.Errorf(types.ErrToolServerFailed, "tool %s failed: %s", name, result.Text())
	}
	return result.Text(), nil
}

// Close 关闭客户端和底层传输，等待中的请求返回 ErrClientClosed
func (c *DefaultMCPClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	cancel := c.cancel
	c.mu.Unlock()

	err := c.transport.Close()
	if cancel != nil {
		cancel()
	}
	c.fail(ErrClientClosed)
	return err
}
