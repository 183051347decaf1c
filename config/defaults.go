// =============================================================================
// 📦 AgentGraph 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Model:      DefaultModelConfig(),
		ToolServer: DefaultToolServerConfig(),
		Agent:      DefaultAgentConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
		Metrics:    DefaultMetricsConfig(),
	}
}

// DefaultModelConfig 返回默认模型配置
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Provider:   "deepseek",
		Timeout:    2 * time.Minute,
		MaxRetries: 3,
		Generation: GenerationConfig{
			Temperature: 0.7,
			MaxTokens:   4096,
		},
	}
}

// DefaultToolServerConfig 返回默认工具服务器配置
func DefaultToolServerConfig() ToolServerConfig {
	return ToolServerConfig{
		Transport: TransportStdio,
		Command:   "agentgraph",
		Args:      []string{"tools"},
		Timeout:   30 * time.Second,
	}
}

// DefaultAgentConfig 返回默认 Agent 配置
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Name:         "react-agent",
		SystemPrompt: "You are a helpful AI assistant.",
		StepLimit:    25,
		Timeout:      5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentgraph",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Addr:      ":9091",
		Namespace: "agentgraph",
	}
}
