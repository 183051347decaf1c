package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentgraph/agent"
	"github.com/BaSui01/agentgraph/agent/protocol/mcp"
	"github.com/BaSui01/agentgraph/agent/react"
	"github.com/BaSui01/agentgraph/config"
	"github.com/BaSui01/agentgraph/internal/metrics"
	"github.com/BaSui01/agentgraph/internal/server"
	"github.com/BaSui01/agentgraph/internal/telemetry"
	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/llm/factory"
)

// session 一次命令执行所需的全部协作者
type session struct {
	id        string
	cfg       *config.Config
	logger    *zap.Logger
	agent     *agent.Agent[react.State]
	otel      *telemetry.Providers
	metrics   *server.Manager // 未启用指标时为 nil
	collector *metrics.Collector
}

// newSession 加载配置并组装 Agent；不做初始化
func newSession(ctx context.Context, configPath string) (*session, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	s := &session{id: uuid.NewString(), cfg: cfg}
	s.logger = initLogger(cfg.Log).With(zap.String("session_id", s.id))

	s.otel, err = telemetry.Init(ctx, cfg.Telemetry, s.id, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	var modelOpts []llm.ChatModelOption
	agentOpts := []agent.Option{agent.WithLogger(s.logger)}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		s.collector = metrics.NewCollectorWith(reg, cfg.Metrics.Namespace, s.logger)

		mux := http.NewServeMux()
		mux.Handle("/metrics", s.collector.HTTPMiddleware("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
		srvCfg := server.DefaultConfig()
		srvCfg.Addr = cfg.Metrics.Addr
		s.metrics = server.NewManager("metrics", mux, srvCfg, s.logger)

		modelOpts = append(modelOpts, llm.WithMiddleware(s.collector.InstrumentProvider))
		agentOpts = append(agentOpts, agent.WithObserver(s.collector))
	}

	model, err := factory.NewChatModel(cfg.Model, s.logger, modelOpts...)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	client, err := agent.DialToolServer(ctx, cfg.ToolServer, s.logger, mcp.WithClientInfo("agentgraph", Version))
	if err != nil {
		return nil, err
	}
	var tools agent.ToolServer = client
	if s.collector != nil {
		tools = s.collector.InstrumentTools(client)
	}

	s.agent, err = agent.New(cfg.Agent, react.New(react.Config{}), model, tools, agentOpts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// serve 在后台运行指标端点（若启用）的同时执行 fn
func (s *session) serve(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if s.metrics != nil {
		if err := s.metrics.Listen(); err != nil {
			return err
		}
		s.logger.Info("metrics endpoint listening", zap.String("addr", s.metrics.Addr()))
		g.Go(func() error { return s.metrics.Run(gctx) })
	}
	g.Go(func() error {
		defer cancel()
		return fn(gctx)
	})
	return g.Wait()
}

func (s *session) close() {
	if err := s.agent.Close(); err != nil {
		s.logger.Warn("close agent", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.otel.Shutdown(ctx); err != nil {
		s.logger.Warn("shutdown telemetry", zap.Error(err))
	}
	_ = s.logger.Sync()
}

// =============================================================================
// 🤖 run 命令
// =============================================================================

func runAgent(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	showTrace := fs.Bool("trace", false, "Print the full message trace")
	if err := fs.Parse(args); err != nil {
		return err
	}

	question, err := readQuestion(fs.Args(), stdin)
	if err != nil {
		return err
	}

	s, err := newSession(ctx, *configPath)
	if err != nil {
		return err
	}
	defer s.close()

	return s.serve(ctx, func(ctx context.Context) error {
		if err := s.agent.Initialize(ctx); err != nil {
			return err
		}
		out, err := react.Ask(ctx, s.agent, question)
		if err != nil {
			return err
		}
		s.logger.Info("run finished", zap.Int("steps", out.Steps), zap.Int("messages", len(out.Messages)))

		if *showTrace {
			for _, m := range out.Messages {
				fmt.Fprintf(stdout, "[%s] %s\n", m.Role, traceLine(m.Content, len(m.ToolCalls)))
			}
			fmt.Fprintln(stdout)
		}
		fmt.Fprintln(stdout, out.Answer)
		return nil
	})
}

// readQuestion 取位置参数，没有时读取 stdin 全部内容
func readQuestion(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	var b strings.Builder
	sc := bufio.NewScanner(stdin)
	for sc.Scan() {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read question: %w", err)
	}
	q := strings.TrimSpace(b.String())
	if q == "" {
		return "", errors.New("no question given")
	}
	return q, nil
}

func traceLine(content string, toolCalls int) string {
	if toolCalls > 0 {
		return fmt.Sprintf("(%d tool calls) %s", toolCalls, content)
	}
	return content
}

// =============================================================================
// 🏥 health 命令
// =============================================================================

func runHealthCheck(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	timeout := fs.Duration("timeout", 30*time.Second, "Overall timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	s, err := newSession(ctx, *configPath)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.agent.Initialize(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	tools, err := s.agent.Tools().ListTools(ctx)
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	fmt.Fprintf(stdout, "OK model=%s tools=[%s]\n", s.agent.Model().Model(), strings.Join(names, ","))
	return nil
}
