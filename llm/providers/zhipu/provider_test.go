package zhipu

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/llm/providers"
	"github.com/BaSui01/agentgraph/types"
)

func TestNewZhipuProvider_Defaults(t *testing.T) {
	p := NewZhipuProvider(providers.ZhipuConfig{}, nil)
	assert.Equal(t, "zhipu", p.Name())
	assert.Equal(t, DefaultBaseURL, p.Cfg.BaseURL)
	assert.Equal(t, "/api/paas/v4/chat/completions", p.Cfg.EndpointPath)
	assert.Equal(t, "/api/paas/v4/models", p.Cfg.ModelsEndpoint)
}

func TestCleanEmptyTools(t *testing.T) {
	body := providers.OpenAICompatRequest{Tools: []providers.OpenAICompatTool{}, ToolChoice: "auto"}
	cleanEmptyTools(&llm.ChatRequest{}, &body)
	assert.Nil(t, body.Tools)
	assert.Nil(t, body.ToolChoice)

	body = providers.OpenAICompatRequest{Tools: []providers.OpenAICompatTool{{Type: "function"}}, ToolChoice: "auto"}
	cleanEmptyTools(&llm.ChatRequest{}, &body)
	assert.Len(t, body.Tools, 1)
	assert.Equal(t, "auto", body.ToolChoice)
}

func TestZhipuProvider_Completion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/paas/v4/chat/completions", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(raw), `"model":"glm-4-plus"`)
		assert.NotContains(t, string(raw), `"tools"`)
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"pong"}}]}`)
	}))
	defer srv.Close()

	p := NewZhipuProvider(providers.ZhipuConfig{
		BaseProviderConfig: providers.BaseProviderConfig{APIKey: "k", BaseURL: srv.URL, Model: "glm-4-plus"},
	}, nil)
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("ping")},
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", llm.Content(resp))
}
