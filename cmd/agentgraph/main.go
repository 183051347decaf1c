// =============================================================================
// AgentGraph 主入口
// =============================================================================
// 命令行入口：运行 ReAct Agent、检查连通性、启动演示工具服务端
//
// 使用方法:
//
//	agentgraph run --config config.yaml "What is 6*7?"   # 单次提问
//	agentgraph health --config config.yaml               # 初始化门控检查
//	agentgraph tools                                     # stdio 工具服务端
//	agentgraph tools --transport websocket --addr :8765  # WebSocket 工具服务端
//	agentgraph version                                   # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentgraph/config"
	"github.com/BaSui01/agentgraph/internal/telemetry"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "run":
		err = runAgent(ctx, os.Args[2:], os.Stdin, os.Stdout)
	case "health":
		err = runHealthCheck(ctx, os.Args[2:], os.Stdout)
	case "tools":
		err = runTools(ctx, os.Args[2:], os.Stdin, os.Stdout)
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	v := Version
	if v == "dev" {
		v = telemetry.BuildVersion()
	}
	fmt.Printf("AgentGraph %s\n", v)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`AgentGraph - typed state graph agents

Usage:
  agentgraph <command> [options]

Commands:
  run       Initialize the agent and answer one question
  health    Ping the tool server and probe the model
  tools     Serve the built-in demo tools over MCP
  version   Show version information
  help      Show this help message

Options for 'run' and 'health':
  --config <path>   Path to configuration file (YAML)

Options for 'tools':
  --transport <t>   stdio (default) or websocket
  --addr <addr>     Listen address for websocket (default :8765)
  --metrics         Expose /metrics next to /mcp (websocket only)
  --log-level <l>   debug, info, warn or error (default info)

Examples:
  agentgraph run --config agent.yaml "What is 6*7?"
  echo "What is 6*7?" | agentgraph run --config agent.yaml
  agentgraph tools --transport websocket --addr :8765
  agentgraph version`)
}

// =============================================================================
// 🔧 配置与日志初始化
// =============================================================================

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader().WithValidator(func(c *config.Config) error { return c.Validate() })
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	return loader.Load()
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}
	return newLogger(cfg, zap.NewAtomicLevelAt(level))
}

// newLogger 按配置构建 logger；level 可在运行中调整
func newLogger(cfg config.LogConfig, level zap.AtomicLevel) *zap.Logger {
	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             level,
		Development:       cfg.Format == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
