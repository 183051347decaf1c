// =============================================================================
// 📦 AgentGraph 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("agentgraph.yaml").
//	    WithEnvPrefix("AGENTGRAPH").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 环境变量默认前缀
const DefaultEnvPrefix = "AGENTGRAPH"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 AgentGraph 的完整配置结构
type Config struct {
	// Model 语言模型配置
	Model ModelConfig `yaml:"model" env:"MODEL"`

	// ToolServer 工具服务器（MCP）描述
	ToolServer ToolServerConfig `yaml:"tool_server" env:"TOOL_SERVER"`

	// Agent 图执行配置
	Agent AgentConfig `yaml:"agent" env:"AGENT"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics Prometheus 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// ModelConfig 语言模型配置
type ModelConfig struct {
	// Provider: deepseek, zhipu, openai（任意 OpenAI 兼容服务）
	Provider string `yaml:"provider" env:"PROVIDER"`
	// 模型名称，为空时使用 Provider 默认模型
	Model string `yaml:"model" env:"NAME"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（可选）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 每秒请求数上限，0 表示不限流
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	// 最大重试次数，0 表示不重试
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 工具选择策略：auto、none 或工具名，为空时由服务端决定
	ToolChoice string `yaml:"tool_choice" env:"TOOL_CHOICE"`
	// 推理模式（deepseek: thinking/extended），随请求 metadata 发送
	ReasoningMode string `yaml:"reasoning_mode" env:"REASONING_MODE"`
	// 生成参数
	Generation GenerationConfig `yaml:"generation" env:"GENERATION"`
}

// GenerationConfig 生成参数
type GenerationConfig struct {
	Temperature float32  `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens   int      `yaml:"max_tokens" env:"MAX_TOKENS"`
	TopP        float32  `yaml:"top_p" env:"TOP_P"`
	Stop        []string `yaml:"stop" env:"STOP"`
}

// Tool server transports.
const (
	TransportStdio     = "stdio"
	TransportWebSocket = "websocket"
)

// ToolServerConfig 工具服务器描述
type ToolServerConfig struct {
	// 传输方式: stdio, websocket
	Transport string `yaml:"transport" env:"TRANSPORT"`
	// stdio: 子进程命令
	Command string `yaml:"command" env:"COMMAND"`
	// stdio: 子进程参数
	Args []string `yaml:"args" env:"ARGS"`
	// websocket: 服务地址，如 ws://localhost:8765/mcp
	URL string `yaml:"url" env:"URL"`
	// 单次请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// AgentConfig 图执行配置
type AgentConfig struct {
	// 名称
	Name string `yaml:"name" env:"NAME"`
	// 系统提示词
	SystemPrompt string `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
	// 单次运行最多执行的节点数
	StepLimit int `yaml:"step_limit" env:"STEP_LIMIT"`
	// 跳过编译期可达性检查
	Permissive bool `yaml:"permissive" env:"PERMISSIVE"`
	// 单次运行超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 指标 HTTP 监听地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	lookupEnv  func(string) (string, bool)
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		lookupEnv:  os.LookupEnv,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithLookupEnv 替换环境变量来源，测试时使用
func (l *Loader) WithLookupEnv(fn func(string) (string, bool)) *Loader {
	l.lookupEnv = fn
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置，文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段，键为 PREFIX_SECTION_FIELD
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := l.lookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []error

	switch c.Model.Provider {
	case "":
		errs = append(errs, errors.New("model.provider is required"))
	case "deepseek", "zhipu":
	case "openai":
		if c.Model.BaseURL == "" {
			errs = append(errs, errors.New("model.base_url is required for openai-compatible providers"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown model.provider %q", c.Model.Provider))
	}
	if c.Model.Timeout < 0 {
		errs = append(errs, errors.New("model.timeout must not be negative"))
	}
	if c.Model.MaxRetries < 0 {
		errs = append(errs, errors.New("model.max_retries must not be negative"))
	}
	if t := c.Model.Generation.Temperature; t < 0 || t > 2 {
		errs = append(errs, errors.New("model.generation.temperature must be between 0 and 2"))
	}

	switch c.ToolServer.Transport {
	case TransportStdio:
		if c.ToolServer.Command == "" {
			errs = append(errs, errors.New("tool_server.command is required for stdio transport"))
		}
	case TransportWebSocket:
		if c.ToolServer.URL == "" {
			errs = append(errs, errors.New("tool_server.url is required for websocket transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown tool_server.transport %q", c.ToolServer.Transport))
	}

	if c.Agent.StepLimit <= 0 {
		errs = append(errs, errors.New("agent.step_limit must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %w", errors.Join(errs...))
	}
	return nil
}
