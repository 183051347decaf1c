package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
	_ "time/tzdata" // current_time 需要时区数据

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/agent/protocol/mcp"
	"github.com/BaSui01/agentgraph/config"
	"github.com/BaSui01/agentgraph/internal/metrics"
	"github.com/BaSui01/agentgraph/internal/server"
)

// =============================================================================
// 🔧 tools 命令：内置演示工具服务端
// =============================================================================

func runTools(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("tools", flag.ContinueOnError)
	transport := fs.String("transport", config.TransportStdio, "stdio or websocket")
	addr := fs.String("addr", ":8765", "Listen address for websocket transport")
	logLevel := fs.String("log-level", "info", "Log level")
	withMetrics := fs.Bool("metrics", false, "Expose /metrics next to /mcp (websocket only)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q", *logLevel)
	}
	// stdout 是 stdio 传输的数据通道，日志只能写 stderr
	logCfg := config.DefaultLogConfig()
	logCfg.OutputPaths = []string{"stderr"}
	logger := newLogger(logCfg, level)
	defer func() { _ = logger.Sync() }()

	srv, err := newToolServer(logger, level)
	if err != nil {
		return err
	}

	switch *transport {
	case config.TransportStdio:
		t := mcp.NewStdioTransport(stdin, stdout, logger)
		defer t.Close()
		return srv.Serve(ctx, t)
	case config.TransportWebSocket:
		mux := newToolsMux(srv, logger, *withMetrics)
		srvCfg := server.DefaultConfig()
		srvCfg.Addr = *addr
		m := server.NewManager("tools", mux, srvCfg, logger)
		if err := m.Listen(); err != nil {
			return err
		}
		logger.Info("tool server listening", zap.String("url", "ws://"+m.Addr()+"/mcp"))
		return m.Run(ctx)
	default:
		return fmt.Errorf("unknown transport %q", *transport)
	}
}

// newToolsMux 组装 WebSocket 模式的路由；withMetrics 时记录 HTTP 指标并暴露 /metrics
func newToolsMux(srv *mcp.DefaultMCPServer, logger *zap.Logger, withMetrics bool) *http.ServeMux {
	var mcpHandler http.Handler = mcp.NewMCPHandler(srv, logger)
	var health http.Handler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	mux := http.NewServeMux()
	if withMetrics {
		reg := prometheus.NewRegistry()
		collector := metrics.NewCollectorWith(reg, "agentgraph_tools", logger)
		mcpHandler = collector.HTTPMiddleware("/mcp", mcpHandler)
		health = collector.HTTPMiddleware("/health", health)
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	mux.Handle("/mcp", mcpHandler)
	mux.Handle("/health", health)
	return mux
}

// newToolServer 注册内置演示工具
func newToolServer(logger *zap.Logger, level zap.AtomicLevel) (*mcp.DefaultMCPServer, error) {
	srv := mcp.NewMCPServer("agentgraph-tools", Version, logger, mcp.WithLogLevelControl(level))
	for _, t := range demoTools() {
		if err := srv.RegisterTool(&t.def, t.handler); err != nil {
			return nil, err
		}
	}
	return srv, nil
}

type demoTool struct {
	def     mcp.ToolDefinition
	handler mcp.ToolHandler
}

func demoTools() []demoTool {
	return []demoTool{
		{
			def: mcp.ToolDefinition{
				Name:        "calculator",
				Description: "Apply a basic arithmetic operation to two numbers",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"a":  map[string]any{"type": "number"},
						"b":  map[string]any{"type": "number"},
						"op": map[string]any{"type": "string", "enum": []any{"+", "-", "*", "/", "^"}},
					},
					"required": []any{"a", "b", "op"},
				},
			},
			handler: calculate,
		},
		{
			def: mcp.ToolDefinition{
				Name:        "current_time",
				Description: "Current time in RFC 3339, optionally in an IANA time zone",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"timezone": map[string]any{"type": "string"},
					},
				},
			},
			handler: currentTime(time.Now),
		},
		{
			def: mcp.ToolDefinition{
				Name:        "word_count",
				Description: "Count the words and characters of a text",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"text": map[string]any{"type": "string"},
					},
					"required": []any{"text"},
				},
			},
			handler: wordCount,
		},
	}
}

func calculate(_ context.Context, args map[string]any) (any, error) {
	a, _ := args["a"].(float64)
	b, _ := args["b"].(float64)
	op, _ := args["op"].(string)

	var v float64
	switch op {
	case "+":
		v = a + b
	case "-":
		v = a - b
	case "*":
		v = a * b
	case "/":
		if b == 0 {
			return nil, errors.New("division by zero")
		}
		v = a / b
	case "^":
		v = math.Pow(a, b)
	default:
		return nil, fmt.Errorf("unsupported operator %q", op)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil, fmt.Errorf("result is not a finite number")
	}
	return json.Number(fmt.Sprint(v)), nil
}

func currentTime(now func() time.Time) mcp.ToolHandler {
	return func(_ context.Context, args map[string]any) (any, error) {
		t := now()
		if tz, _ := args["timezone"].(string); tz != "" {
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return nil, fmt.Errorf("unknown time zone %q", tz)
			}
			t = t.In(loc)
		}
		return t.Format(time.RFC3339), nil
	}
}

func wordCount(_ context.Context, args map[string]any) (any, error) {
	text, _ := args["text"].(string)
	return map[string]int{
		"words":      len(strings.Fields(text)),
		"characters": len([]rune(text)),
	}, nil
}
