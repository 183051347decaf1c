package mcp

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// MCPHandler HTTP 处理器，把每个 WebSocket 连接交给 MCP 服务器的消息循环
type MCPHandler struct {
	server *DefaultMCPServer
	logger *zap.Logger

	// AcceptOptions 透传给 websocket.Accept，为 nil 时仅接受同源连接
	AcceptOptions *websocket.AcceptOptions
}

// NewMCPHandler 创建 MCP HTTP 处理器
func NewMCPHandler(server *DefaultMCPServer, logger *zap.Logger) *MCPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MCPHandler{
		server: server,
		logger: logger.With(zap.String("component", "mcp_handler")),
		AcceptOptions: &websocket.AcceptOptions{
			Subprotocols: []string{"mcp"},
		},
	}
}

// ServeHTTP 实现 http.Handler
func (h *MCPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, h.AcceptOptions)
	if err != nil {
		// Accept 已写回错误响应
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	transport := NewServerWebSocketTransport(conn, h.logger)
	defer transport.Close()

	h.logger.Debug("MCP session opened", zap.String("remote", r.RemoteAddr))
	err = h.server.Serve(r.Context(), transport)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
	default:
		h.logger.Warn("MCP session ended", zap.Error(err))
		return
	}
	h.logger.Debug("MCP session closed", zap.String("remote", r.RemoteAddr))
}
