package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentgraph/internal/ctxkeys"
	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/testutil"
	"github.com/BaSui01/agentgraph/testutil/mocks"
	"github.com/BaSui01/agentgraph/types"
)

func TestChatModel_Generate(t *testing.T) {
	provider := mocks.NewSuccessProvider("hi there")
	m := llm.NewChatModel(provider,
		llm.WithModel("test-model"),
		llm.WithParams(llm.GenerationParams{Temperature: 0.2, MaxTokens: 64, TopP: 0.9, Stop: []string{"\n\n"}}),
		llm.WithLogger(zaptest.NewLogger(t)),
	)

	resp, err := m.Generate(testutil.TestContext(t), []types.Message{types.NewUserMessage("hello")})
	require.NoError(t, err)
	assert.Equal(t, "hi there", llm.Content(resp))

	req := provider.GetLastCall().Request
	assert.Equal(t, "test-model", req.Model)
	assert.Equal(t, float32(0.2), req.Temperature)
	assert.Equal(t, 64, req.MaxTokens)
	assert.Equal(t, []string{"\n\n"}, req.Stop)
	assert.Empty(t, req.Tools)
}

func TestChatModel_RequestFromContext(t *testing.T) {
	provider := mocks.NewSuccessProvider("ok")
	m := llm.NewChatModel(provider, llm.WithModel("deepseek-chat"), llm.WithMetadata("reasoning_mode", "thinking"))

	ctx := ctxkeys.WithTraceID(testutil.TestContext(t), "trace-7")
	ctx = ctxkeys.WithRunID(ctx, "run-7")
	ctx = ctxkeys.WithNode(ctx, "model")
	ctx = llm.ContextWithModel(ctx, "deepseek-reasoner")

	_, err := m.Generate(ctx, []types.Message{types.NewUserMessage("q")})
	require.NoError(t, err)

	req := provider.GetLastCall().Request
	assert.Equal(t, "deepseek-reasoner", req.Model)
	assert.Equal(t, "trace-7", req.TraceID)
	assert.Equal(t, map[string]string{
		"reasoning_mode":  "thinking",
		llm.MetadataRunID: "run-7",
		llm.MetadataNode:  "model",
	}, req.Metadata)
	assert.Equal(t, "deepseek-chat", m.Model())

	_, err = m.Generate(context.Background(), []types.Message{types.NewUserMessage("q")})
	require.NoError(t, err)
	req = provider.GetLastCall().Request
	assert.Equal(t, "deepseek-chat", req.Model)
	assert.Empty(t, req.TraceID)
	assert.Equal(t, map[string]string{"reasoning_mode": "thinking"}, req.Metadata)
}

func TestChatModel_ToolChoice(t *testing.T) {
	provider := mocks.NewMockProvider()
	m := llm.NewChatModel(provider, llm.WithToolChoice("none"))
	msgs := []types.Message{types.NewUserMessage("q")}

	_, err := m.Generate(context.Background(), msgs)
	require.NoError(t, err)
	assert.Empty(t, provider.GetLastCall().Request.ToolChoice, "no tools bound")
	assert.Nil(t, provider.GetLastCall().Request.Metadata)

	_, err = m.WithTools(types.ToolSchema{Name: "search"}).Generate(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, "none", provider.GetLastCall().Request.ToolChoice)
}

func TestChatModel_WithToolsIsACopy(t *testing.T) {
	provider := mocks.NewMockProvider()
	base := llm.NewChatModel(provider)
	tool := types.ToolSchema{Name: "search", Parameters: []byte(`{"type":"object"}`)}

	bound := base.WithTools(tool)
	assert.Empty(t, base.Tools())
	assert.Len(t, bound.Tools(), 1)

	_, err := bound.Generate(context.Background(), []types.Message{types.NewUserMessage("q")})
	require.NoError(t, err)
	assert.Equal(t, []types.ToolSchema{tool}, provider.GetLastCall().Request.Tools)
}

func TestChatModel_RejectsInvalidRequests(t *testing.T) {
	m := llm.NewChatModel(mocks.NewMockProvider())
	_, err := m.Generate(context.Background(), nil)
	testutil.AssertErrorCode(t, err, types.ErrInvalidRequest)

	noTools := llm.NewChatModel(mocks.NewMockProvider().WithoutToolSupport()).
		WithTools(types.ToolSchema{Name: "x"})
	_, err = noTools.Generate(context.Background(), []types.Message{types.NewUserMessage("q")})
	testutil.AssertErrorCode(t, err, types.ErrInvalidRequest)
}

func TestChatModel_Timeout(t *testing.T) {
	m := llm.NewChatModel(mocks.NewMockProvider().WithDelay(time.Second), llm.WithTimeout(20*time.Millisecond))

	_, err := m.Generate(context.Background(), []types.Message{types.NewUserMessage("q")})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChatModel_GenerateAsync(t *testing.T) {
	boom := errors.New("boom")
	ok := llm.NewChatModel(mocks.NewSuccessProvider("async"))
	failing := llm.NewChatModel(mocks.NewErrorProvider(boom))
	msgs := []types.Message{types.NewUserMessage("q")}

	res, received := testutil.WaitForChannel(ok.GenerateAsync(context.Background(), msgs), 5*time.Second)
	require.True(t, received)
	require.NoError(t, res.Err)
	assert.Equal(t, "async", llm.Content(res.Response))

	res, received = testutil.WaitForChannel(failing.GenerateAsync(context.Background(), msgs), 5*time.Second)
	require.True(t, received)
	assert.Equal(t, boom, res.Err)
}

func TestChatModel_GenerateStream(t *testing.T) {
	m := llm.NewChatModel(mocks.NewStreamProvider([]string{"Hel", "lo", "!"}))

	ch, err := m.GenerateStream(testutil.TestContext(t), []types.Message{types.NewUserMessage("q")})
	require.NoError(t, err)

	msg, err := llm.Accumulate(ch)
	require.NoError(t, err)
	assert.Equal(t, "Hello!", msg.Content)
	assert.Equal(t, types.RoleAssistant, msg.Role)

	ch, err = m.GenerateStream(testutil.TestContext(t), []types.Message{types.NewUserMessage("q")})
	require.NoError(t, err)
	chunks := testutil.CollectStreamChunks(ch)
	require.Len(t, chunks, 3)
	assert.Equal(t, "stop", chunks[2].FinishReason)

	ch, err = m.GenerateStream(testutil.TestContext(t), []types.Message{types.NewUserMessage("q")})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", testutil.CollectStreamContent(ch))
}

func TestAccumulate_ToolCallFragments(t *testing.T) {
	ch := make(chan llm.StreamChunk, 4)
	ch <- llm.StreamChunk{Delta: types.Message{ToolCalls: []types.ToolCall{{ID: "c1", Name: "calc", Arguments: []byte(`{"a":`)}}}}
	ch <- llm.StreamChunk{Delta: types.Message{ToolCalls: []types.ToolCall{{Arguments: []byte(`1}`)}}}}
	ch <- llm.StreamChunk{Delta: types.Message{ToolCalls: []types.ToolCall{{ID: "c2", Name: "echo", Arguments: []byte(`{}`)}}}}
	close(ch)

	msg, err := llm.Accumulate(ch)
	require.NoError(t, err)
	require.Len(t, msg.ToolCalls, 2)
	assert.Equal(t, "calc", msg.ToolCalls[0].Name)
	assert.JSONEq(t, `{"a":1}`, string(msg.ToolCalls[0].Arguments))
	assert.Equal(t, "echo", msg.ToolCalls[1].Name)
}

func TestAccumulate_Error(t *testing.T) {
	ch := make(chan llm.StreamChunk, 3)
	ch <- llm.StreamChunk{Delta: types.Message{Content: "partial"}}
	ch <- llm.StreamChunk{Err: types.NewError(types.ErrUpstreamError, "reset")}
	ch <- llm.StreamChunk{Delta: types.Message{Content: "ignored"}}
	close(ch)

	msg, err := llm.Accumulate(ch)
	testutil.AssertErrorCode(t, err, types.ErrUpstreamError)
	assert.Empty(t, msg.Content)
}

type countingProvider struct {
	llm.Provider
	n *int
}

func (p countingProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	*p.n++
	return p.Provider.Completion(ctx, req)
}

func TestChatModel_WithMiddleware(t *testing.T) {
	var n int
	provider := mocks.NewSuccessProvider("ok")
	m := llm.NewChatModel(provider, llm.WithMiddleware(func(p llm.Provider) llm.Provider {
		return countingProvider{Provider: p, n: &n}
	}))

	_, err := m.WithTools().Generate(context.Background(), []types.Message{types.NewUserMessage("q")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, provider.GetCallCount())
	assert.Equal(t, "mock", m.Provider().Name())
}
