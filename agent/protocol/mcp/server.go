package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ToolHandler 工具处理函数
//
// 返回 string 时作为文本内容；返回 *CallToolResult 时原样下发；
// 其他值编码为 JSON 文本。
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

type registeredTool struct {
	def       ToolDefinition
	handler   ToolHandler
	validator *argumentValidator
}

// ServerOption 服务器选项
type ServerOption func(*DefaultMCPServer)

// WithLogLevelControl 允许客户端通过 logging/setLevel 调整日志级别
func WithLogLevelControl(level zap.AtomicLevel) ServerOption {
	return func(s *DefaultMCPServer) {
		s.level = &level
		s.info.Capabilities.Logging = true
	}
}

// DefaultMCPServer 默认 MCP 服务器实现，只提供 tools 能力
type DefaultMCPServer struct {
	info ServerInfo

	tools   map[string]*registeredTool
	toolsMu sync.RWMutex

	level  *zap.AtomicLevel
	logger *zap.Logger
}

// NewMCPServer 创建 MCP 服务器
func NewMCPServer(name, version string, logger *zap.Logger, opts ...ServerOption) *DefaultMCPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &DefaultMCPServer{
		info: ServerInfo{
			Name:            name,
			Version:         version,
			ProtocolVersion: MCPVersion,
			Capabilities:    ServerCapabilities{Tools: true},
		},
		tools:  make(map[string]*registeredTool),
		logger: logger.With(zap.String("component", "mcp_server")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetServerInfo 获取服务器信息
func (s *DefaultMCPServer) GetServerInfo() ServerInfo {
	return s.info
}

// RegisterTool 注册工具，同名工具会被替换
func (s *DefaultMCPServer) RegisterTool(tool *ToolDefinition, handler ToolHandler) error {
	if tool == nil {
		return fmt.Errorf("tool definition is nil")
	}
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}
	if handler == nil {
		return fmt.Errorf("tool %s has no handler", tool.Name)
	}
	v, err := newArgumentValidator(tool.InputSchema)
	if err != nil {
		return fmt.Errorf("tool %s: %w", tool.Name, err)
	}

	s.toolsMu.Lock()
	defer s.toolsMu.Unlock()
	s.tools[tool.Name] = &registeredTool{def: *tool, handler: handler, validator: v}

	s.logger.Debug("tool registered", zap.String("name", tool.Name))
	return nil
}

// UnregisterTool 注销工具
func (s *DefaultMCPServer) UnregisterTool(name string) error {
	s.toolsMu.Lock()
	defer s.toolsMu.Unlock()

	if _, ok := s.tools[name]; !ok {
		return fmt.Errorf("tool not found: %s", name)
	}
	delete(s.tools, name)
	return nil
}

// ListTools 按名称排序列出工具
func (s *DefaultMCPServer) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	s.toolsMu.RLock()
	defer s.toolsMu.RUnlock()

	tools := make([]ToolDefinition, 0, len(s.tools))
	for _, t := range s.tools {
		tools = append(tools, t.def)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools, nil
}

// CallTool 校验参数并执行工具
//
// 未知工具返回 MethodNotFound，参数不符合 schema 返回 InvalidParams；
// 工具自身的错误放在结果中（IsError），不作为协议错误。
func (s *DefaultMCPServer) CallTool(ctx context.Context, name string, args map[string]any) (*CallToolResult, *MCPError) {
	s.toolsMu.RLock()
	tool, ok := s.tools[name]
	s.toolsMu.RUnlock()
	if !ok {
		return nil, &MCPError{Code: ErrorCodeMethodNotFound, Message: fmt.Sprintf("tool not found: %s", name)}
	}
	if err := tool.validator.validate(args); err != nil {
		return nil, &MCPError{Code: ErrorCodeInvalidParams, Message: err.Error()}
	}

	out, err := tool.handler(ctx, args)
	if err != nil {
		s.logger.Debug("tool returned error", zap.String("tool", name), zap.Error(err))
		return &CallToolResult{
			Content: []Content{{Type: "text", Text: err.Error()}},
			IsError: true,
		}, nil
	}

	result, err := toCallToolResult(out)
	if err != nil {
		return nil, &MCPError{Code: ErrorCodeInternalError, Message: err.Error()}
	}
	return result, nil
}

func toCallToolResult(out any) (*CallToolResult, error) {
	switch v := out.(type) {
	case *CallToolResult:
		return v, nil
	case CallToolResult:
		return &v, nil
	case string:
		return &CallToolResult{Content: []Content{{Type: "text", Text: v}}}, nil
	case nil:
		return &CallToolResult{Content: []Content{}}, nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return &CallToolResult{Content: []Content{{Type: "text", Text: string(data)}}}, nil
}

// HandleMessage 处理一条 JSON-RPC 2.0 消息并返回响应；通知返回 nil
func (s *DefaultMCPServer) HandleMessage(ctx context.Context, msg *MCPMessage) *MCPMessage {
	if msg == nil {
		return NewMCPError(nil, ErrorCodeInvalidRequest, "empty message", nil)
	}
	if msg.JSONRPC != "" && msg.JSONRPC != "2.0" {
		return NewMCPError(msg.ID, ErrorCodeInvalidRequest, "unsupported JSON-RPC version", nil)
	}

	s.logger.Debug("handling message",
		zap.String("method", msg.Method),
		zap.Any("id", msg.ID),
	)

	if msg.ID == nil {
		s.handleNotification(msg)
		return nil
	}
	if msg.Method == "" {
		return NewMCPError(msg.ID, ErrorCodeInvalidRequest, "missing method", nil)
	}

	result, mcpErr := s.dispatch(ctx, msg.Method, msg.Params)
	if mcpErr != nil {
		return &MCPMessage{JSONRPC: "2.0", ID: msg.ID, Error: mcpErr}
	}
	return NewMCPResponse(msg.ID, result)
}

func (s *DefaultMCPServer) handleNotification(msg *MCPMessage) {
	switch msg.Method {
	case MethodInitialized:
		s.logger.Info("client initialized")
	default:
		s.logger.Debug("unhandled notification", zap.String("method", msg.Method))
	}
}

func (s *DefaultMCPServer) dispatch(ctx context.Context, method string, params map[string]any) (any, *MCPError) {
	switch method {
	case MethodInitialize:
		return s.handleInitialize(params)
	case MethodPing:
		return nil, nil
	case MethodToolsList:
		tools, _ := s.ListTools(ctx)
		return map[string]any{"tools": tools}, nil
	case MethodToolsCall:
		return s.handleToolsCall(ctx, params)
	case MethodSetLogLevel:
		return s.handleSetLevel(params)
	default:
		return nil, &MCPError{
			Code:    ErrorCodeMethodNotFound,
			Message: fmt.Sprintf("method not found: %s", method),
		}
	}
}

func (s *DefaultMCPServer) handleInitialize(params map[string]any) (any, *MCPError) {
	if info, ok := params["clientInfo"].(map[string]any); ok {
		s.logger.Info("client connected",
			zap.Any("client", info["name"]),
			zap.Any("version", info["version"]),
			zap.Any("protocol", params["protocolVersion"]))
	}
	return InitializeResult{
		ProtocolVersion: MCPVersion,
		Capabilities:    s.info.Capabilities,
		ServerInfo:      s.info,
	}, nil
}

func (s *DefaultMCPServer) handleToolsCall(ctx context.Context, params map[string]any) (any, *MCPError) {
	name, _ := params["name"].(string)
	if name == "" {
		return nil, &MCPError{Code: ErrorCodeInvalidParams, Message: "missing required parameter: name"}
	}

	var args map[string]any
	switch raw := params["arguments"].(type) {
	case nil:
	case map[string]any:
		args = raw
	default:
		return nil, &MCPError{Code: ErrorCodeInvalidParams, Message: "arguments must be an object"}
	}

	result, mcpErr := s.CallTool(ctx, name, args)
	if mcpErr != nil {
		return nil, mcpErr
	}
	return result, nil
}

func (s *DefaultMCPServer) handleSetLevel(params map[string]any) (any, *MCPError) {
	if s.level == nil {
		return nil, &MCPError{Code: ErrorCodeMethodNotFound, Message: "logging is not supported"}
	}
	level, _ := params["level"].(string)
	if err := s.level.UnmarshalText([]byte(level)); err != nil {
		return nil, &MCPError{Code: ErrorCodeInvalidParams, Message: fmt.Sprintf("invalid level %q", level)}
	}
	s.logger.Info("log level changed", zap.String("level", level))
	return nil, nil
}

// Serve 在传输层上运行消息循环，直到 ctx 取消或对端关闭
//
// 对端正常关闭（EOF）返回 nil。
func (s *DefaultMCPServer) Serve(ctx context.Context, transport Transport) error {
	if transport == nil {
		return fmt.Errorf("transport cannot be nil")
	}

	s.logger.Info("MCP server starting",
		zap.String("name", s.info.Name),
		zap.String("version", s.info.Version),
	)

	for {
		msg, err := transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("MCP server stopping: context cancelled")
				return ctx.Err()
			}
			var mcpErr *MCPError
			if errors.As(err, &mcpErr) && mcpErr.Code == ErrorCodeParseError {
				s.logger.Warn("malformed message", zap.Error(err))
				if sendErr := transport.Send(ctx, NewMCPError(nil, ErrorCodeParseError, "parse error", nil)); sendErr != nil {
					return fmt.Errorf("send error response: %w", sendErr)
				}
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, ErrTransportClosed) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
				s.logger.Info("MCP server stopping: peer closed")
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}

		resp := s.HandleMessage(ctx, msg)
		if resp == nil {
			continue
		}
		if err := transport.Send(ctx, resp); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("send response: %w", err)
		}
	}
}
