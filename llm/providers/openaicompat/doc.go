// Package openaicompat 提供 OpenAI 兼容协议的通用 Provider 实现，
// 支持同步补全、SSE 流式输出、工具调用与本地限流。
package openaicompat
