package deepseek

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/llm/providers"
	"github.com/BaSui01/agentgraph/types"
)

func TestNewDeepSeekProvider_Defaults(t *testing.T) {
	p := NewDeepSeekProvider(providers.DeepSeekConfig{}, zap.NewNop())
	assert.Equal(t, "deepseek", p.Name())
	assert.Equal(t, DefaultBaseURL, p.Cfg.BaseURL)
	assert.Equal(t, "/chat/completions", p.Cfg.EndpointPath)
	assert.Equal(t, DefaultModel, p.Cfg.FallbackModel)
	assert.True(t, p.SupportsNativeFunctionCalling())
}

func TestDeepSeekRequestHook(t *testing.T) {
	tests := []struct {
		name string
		req  llm.ChatRequest
		want string
	}{
		{"thinking picks reasoner", llm.ChatRequest{Metadata: map[string]string{"reasoning_mode": "thinking"}}, ReasonerModel},
		{"extended picks reasoner", llm.ChatRequest{Metadata: map[string]string{"reasoning_mode": "extended"}}, ReasonerModel},
		{"explicit model wins", llm.ChatRequest{Model: "deepseek-chat", Metadata: map[string]string{"reasoning_mode": "thinking"}}, "unchanged"},
		{"no metadata", llm.ChatRequest{}, "unchanged"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := providers.OpenAICompatRequest{Model: "unchanged"}
			deepseekRequestHook(&tt.req, &body)
			assert.Equal(t, tt.want, body.Model)
		})
	}
}

func TestDeepSeekProvider_Completion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var body providers.OpenAICompatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultModel, body.Model)
		fmt.Fprint(w, `{"model":"deepseek-chat","choices":[{"message":{"role":"assistant","content":"你好"}}]}`)
	}))
	defer srv.Close()

	p := NewDeepSeekProvider(providers.DeepSeekConfig{
		BaseProviderConfig: providers.BaseProviderConfig{APIKey: "sk", BaseURL: srv.URL},
	}, nil)
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("Hello")},
	})
	require.NoError(t, err)
	assert.Equal(t, "你好", llm.Content(resp))
	assert.Equal(t, "deepseek", resp.Provider)
}
