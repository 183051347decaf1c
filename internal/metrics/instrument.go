package metrics

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/types"
)

// =============================================================================
// 🤖 Provider 包装
// =============================================================================

type instrumentedProvider struct {
	llm.Provider
	c *Collector
}

// InstrumentProvider 包装 provider，记录每次 Completion 的耗时、状态与 token 用量。
// 可作为 llm.WithMiddleware 的参数。
func (c *Collector) InstrumentProvider(p llm.Provider) llm.Provider {
	return &instrumentedProvider{Provider: p, c: c}
}

func (p *instrumentedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	start := time.Now()
	resp, err := p.Provider.Completion(ctx, req)

	model := req.Model
	var prompt, completion int
	if resp != nil {
		if resp.Model != "" {
			model = resp.Model
		}
		prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	p.c.RecordLLMRequest(p.Name(), model, status(err), time.Since(start), prompt, completion)
	return resp, err
}

// =============================================================================
// 🔧 工具服务端包装
// =============================================================================

// ToolServer 与 agent.ToolServer 同形
type ToolServer interface {
	Ping(ctx context.Context) (bool, error)
	ListTools(ctx context.Context) ([]types.ToolSchema, error)
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)
}

// InstrumentedToolServer 记录探测与工具调用指标；内层实现 io.Closer 时 Close 会转发
type InstrumentedToolServer struct {
	inner ToolServer
	c     *Collector
}

// InstrumentTools 包装工具服务端
func (c *Collector) InstrumentTools(ts ToolServer) *InstrumentedToolServer {
	return &InstrumentedToolServer{inner: ts, c: c}
}

// Ping 转发并记录探测结果
func (s *InstrumentedToolServer) Ping(ctx context.Context) (bool, error) {
	alive, err := s.inner.Ping(ctx)
	s.c.RecordToolPing(alive, err)
	return alive, err
}

// ListTools 直接转发
func (s *InstrumentedToolServer) ListTools(ctx context.Context) ([]types.ToolSchema, error) {
	return s.inner.ListTools(ctx)
}

// CallTool 转发并记录耗时与状态
func (s *InstrumentedToolServer) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	start := time.Now()
	out, err := s.inner.CallTool(ctx, name, args)
	s.c.RecordToolCall(name, status(err), time.Since(start))
	return out, err
}

// Close 关闭内层工具服务端
func (s *InstrumentedToolServer) Close() error {
	if c, ok := s.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// =============================================================================
// 🎯 HTTP 中间件
// =============================================================================

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack WebSocket 升级需要
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// HTTPMiddleware 记录请求计数与耗时，path 使用固定标签避免基数膨胀
func (c *Collector) HTTPMiddleware(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		c.RecordHTTPRequest(r.Method, path, rec.status, time.Since(start))
	})
}
