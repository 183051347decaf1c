package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/agentgraph/types"
)

// MCP (Model Context Protocol) 标准接口，JSON-RPC 2.0 承载

// MCPVersion MCP 协议版本
const MCPVersion = "2024-11-05"

// 方法名
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodPing        = "ping"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
	MethodSetLogLevel = "logging/setLevel"
)

// ToolDefinition MCP 工具定义
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"` // JSON Schema
}

// ServerInfo 服务器信息
type ServerInfo struct {
	Name            string             `json:"name"`
	Version         string             `json:"version"`
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
}

// ServerCapabilities 服务器能力
type ServerCapabilities struct {
	Tools   bool `json:"tools"`
	Logging bool `json:"logging"`
}

// InitializeResult initialize 响应
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
}

// Content 工具结果内容块
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallToolResult tools/call 响应
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Text 拼接所有文本内容块
func (r *CallToolResult) Text() string {
	var parts []string
	for _, c := range r.Content {
		if c.Type == "text" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// MCPMessage MCP 消息（JSON-RPC 2.0）
type MCPMessage struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id,omitempty"`
	Method  string         `json:"method,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
	Result  any            `json:"result,omitempty"`
	Error   *MCPError      `json:"error,omitempty"`
}

// IsResponse reports whether the message answers a request.
func (m *MCPMessage) IsResponse() bool {
	return m.ID != nil && m.Method == ""
}

// MCPError MCP 错误
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// 标准错误码
const (
	ErrorCodeParseError     = -32700
	ErrorCodeInvalidRequest = -32600
	ErrorCodeMethodNotFound = -32601
	ErrorCodeInvalidParams  = -32602
	ErrorCodeInternalError  = -32603
)

// ToToolSchema 将 MCP 工具定义转换为模型调用使用的工具描述
func (t *ToolDefinition) ToToolSchema() types.ToolSchema {
	params, _ := json.Marshal(t.InputSchema)
	if t.InputSchema == nil {
		params = nil
	}
	return types.ToolSchema{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  params,
	}
}

// FromToolSchema 从工具描述创建 MCP 工具定义
func FromToolSchema(schema types.ToolSchema) (ToolDefinition, error) {
	td := ToolDefinition{Name: schema.Name, Description: schema.Description}
	if len(schema.Parameters) == 0 {
		return td, nil
	}
	if err := json.Unmarshal(schema.Parameters, &td.InputSchema); err != nil {
		return td, fmt.Errorf("failed to unmarshal tool parameters for %s: %w", schema.Name, err)
	}
	return td, nil
}

// Validate 验证工具定义
func (t *ToolDefinition) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Description == "" {
		return fmt.Errorf("tool description is required")
	}
	if t.InputSchema == nil {
		return fmt.Errorf("tool input schema is required")
	}
	return nil
}

// MarshalJSON 固定 jsonrpc 字段为 "2.0"
func (m *MCPMessage) MarshalJSON() ([]byte, error) {
	type Alias MCPMessage
	return json.Marshal(&struct {
		JSONRPC string `json:"jsonrpc"`
		*Alias
	}{
		JSONRPC: "2.0",
		Alias:   (*Alias)(m),
	})
}

// NewMCPRequest 创建 MCP 请求
func NewMCPRequest(id any, method string, params map[string]any) *MCPMessage {
	return &MCPMessage{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// NewMCPNotification 创建无需响应的通知
func NewMCPNotification(method string, params map[string]any) *MCPMessage {
	return &MCPMessage{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	}
}

// NewMCPResponse 创建 MCP 响应
func NewMCPResponse(id any, result any) *MCPMessage {
	if result == nil {
		result = struct{}{}
	}
	return &MCPMessage{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
}

// NewMCPError 创建 MCP 错误响应
func NewMCPError(id any, code int, message string, data any) *MCPMessage {
	return &MCPMessage{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// requestID 将解码后的 JSON-RPC id 归一为 int64
func requestID(id any) (int64, bool) {
	switch v := id.(type) {
	case float64:
		return int64(v), v == float64(int64(v))
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

// decodeResult 将响应中的 result 解码到 out
func decodeResult(result any, out any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}
