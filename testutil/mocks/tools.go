// MockToolServer 的工具服务端测试模拟实现。
//
// 支持存活探测控制、工具注册、调用记录与错误场景测试。
package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/BaSui01/agentgraph/types"
)

// ToolFunc 工具执行函数类型
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// ToolCall 记录单次工具调用
type ToolCall struct {
	Name   string
	Args   map[string]any
	Result any
	Error  error
}

// MockToolServer 是工具服务端的模拟实现
type MockToolServer struct {
	mu sync.RWMutex

	alive     bool
	pingErr   error
	pingCount int
	listErr   error

	tools     map[string]types.ToolSchema
	toolFuncs map[string]ToolFunc
	calls     []ToolCall
}

// NewMockToolServer 创建一个存活、无工具的 MockToolServer
func NewMockToolServer() *MockToolServer {
	return &MockToolServer{
		alive:     true,
		tools:     make(map[string]types.ToolSchema),
		toolFuncs: make(map[string]ToolFunc),
	}
}

// WithAlive 设置 Ping 的返回值
func (m *MockToolServer) WithAlive(alive bool) *MockToolServer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alive = alive
	return m
}

// WithPingError 设置 Ping 返回的错误
func (m *MockToolServer) WithPingError(err error) *MockToolServer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
	return m
}

// WithListError 设置 ListTools 返回的错误
func (m *MockToolServer) WithListError(err error) *MockToolServer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
	return m
}

// WithTool 注册工具及其执行函数
func (m *MockToolServer) WithTool(name string, fn ToolFunc) *MockToolServer {
	params, _ := json.Marshal(map[string]any{"type": "object"})
	return m.WithToolDefinition(types.ToolSchema{
		Name:        name,
		Description: "Mock tool: " + name,
		Parameters:  params,
	}, fn)
}

// WithToolDefinition 注册完整的工具定义
func (m *MockToolServer) WithToolDefinition(tool types.ToolSchema, fn ToolFunc) *MockToolServer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools[tool.Name] = tool
	m.toolFuncs[tool.Name] = fn
	return m
}

// Ping 返回预设的存活状态
func (m *MockToolServer) Ping(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingCount++
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return m.alive, m.pingErr
}

// ListTools 按名称排序返回所有工具
func (m *MockToolServer) ListTools(ctx context.Context) ([]types.ToolSchema, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	tools := make([]types.ToolSchema, 0, len(m.tools))
	for _, tool := range m.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools, nil
}

// CallTool 执行工具
func (m *MockToolServer) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	m.mu.RLock()
	fn, ok := m.toolFuncs[name]
	m.mu.RUnlock()

	call := ToolCall{Name: name, Args: args}
	switch {
	case !ok:
		call.Error = types.Errorf(types.ErrToolNotFound, "tool not found: %s", name)
	case fn == nil:
		call.Error = errors.New("mock tool has no function: " + name)
	default:
		call.Result, call.Error = fn(ctx, args)
	}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
	return call.Result, call.Error
}

// --- 查询方法 ---

// GetPingCount 获取 Ping 调用次数
func (m *MockToolServer) GetPingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingCount
}

// GetCalls 获取所有调用记录
func (m *MockToolServer) GetCalls() []ToolCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ToolCall{}, m.calls...)
}

// GetCallsForTool 获取特定工具的调用记录
func (m *MockToolServer) GetCallsForTool(name string) []ToolCall {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var calls []ToolCall
	for _, call := range m.calls {
		if call.Name == name {
			calls = append(calls, call)
		}
	}
	return calls
}

// --- 预设工厂 ---

// NewCalculatorToolServer 创建带计算器工具的服务端
func NewCalculatorToolServer() *MockToolServer {
	return NewMockToolServer().
		WithTool("calculator", func(ctx context.Context, args map[string]any) (any, error) {
			a, _ := args["a"].(float64)
			b, _ := args["b"].(float64)
			op, _ := args["op"].(string)

			switch op {
			case "sub", "-":
				return a - b, nil
			case "mul", "*":
				return a * b, nil
			case "div", "/":
				if b == 0 {
					return nil, errors.New("division by zero")
				}
				return a / b, nil
			default:
				return a + b, nil
			}
		})
}

// NewDeadToolServer 创建 Ping 返回 false 的服务端
func NewDeadToolServer() *MockToolServer {
	return NewMockToolServer().WithAlive(false)
}
