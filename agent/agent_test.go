package agent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgraph/config"
	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/testutil"
	"github.com/BaSui01/agentgraph/testutil/mocks"
	"github.com/BaSui01/agentgraph/types"
	"github.com/BaSui01/agentgraph/workflow"
)

// --- 测试用定义 ---

type pipelineState struct {
	Value int      `json:"value"`
	Trail []string `json:"trail"`
	Note  string   `json:"note"`
}

// pipeline: START → A → B(route, always C) → C → END
type pipeline struct {
	graphCalls atomic.Int32
	deps       Deps
	duplicate  bool
	blockInA   bool
}

func (p *pipeline) Schema() *workflow.Schema[pipelineState] {
	return workflow.NewSchema[pipelineState]()
}

func (p *pipeline) Graph(deps Deps) workflow.GraphConfig[pipelineState] {
	p.graphCalls.Add(1)
	p.deps = deps

	a := workflow.NewNode("A", func(ctx context.Context, s pipelineState) (workflow.Update, error) {
		if p.blockInA {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return workflow.Update{"value": s.Value + 1, "trail": append(append([]string{}, s.Trail...), "A")}, nil
	})
	b := workflow.NewRouteNode("B", func(context.Context, pipelineState) (string, error) { return "C", nil })
	c := workflow.NewNode("C", func(_ context.Context, s pipelineState) (workflow.Update, error) {
		return workflow.Update{"value": s.Value * 10, "trail": append(append([]string{}, s.Trail...), "C")}, nil
	})

	var cfg workflow.GraphConfig[pipelineState]
	cfg.AddNodes(a, b, c)
	if p.duplicate {
		cfg.AddNodes(workflow.NewNode("A", func(context.Context, pipelineState) (workflow.Update, error) { return nil, nil }))
	}
	cfg.AddEdges(
		workflow.E(workflow.START, "A"),
		workflow.E("A", "B"),
		workflow.E("B", "C"),
		workflow.E("C", workflow.END),
	)
	return cfg
}

func testAgentConfig() config.AgentConfig {
	cfg := config.DefaultAgentConfig()
	cfg.Timeout = 0
	return cfg
}

func newTestAgent(t *testing.T, def *pipeline, provider *mocks.MockProvider, tools ToolServer) *Agent[pipelineState] {
	t.Helper()
	a, err := New[pipelineState](testAgentConfig(), def, llm.NewChatModel(provider), tools)
	require.NoError(t, err)
	return a
}

// --- 构造 ---

func TestNew_RejectsMissingCollaborators(t *testing.T) {
	model := llm.NewChatModel(mocks.NewSuccessProvider("hi"))
	tools := mocks.NewMockToolServer()
	cfg := testAgentConfig()

	_, err := New[pipelineState](cfg, nil, model, tools)
	assert.Error(t, err)

	_, err = New[pipelineState](cfg, &pipeline{}, nil, tools)
	testutil.AssertErrorCode(t, err, types.ErrProviderUnavailable)

	_, err = New[pipelineState](cfg, &pipeline{}, model, nil)
	testutil.AssertErrorCode(t, err, types.ErrToolServerUnavailable)
}

// --- 初始化门控 ---

func TestInitialize_Success(t *testing.T) {
	def := &pipeline{}
	provider := mocks.NewSuccessProvider("Hi there")
	tools := mocks.NewMockToolServer()
	a := newTestAgent(t, def, provider, tools)
	ctx := testutil.TestContext(t)

	assert.Equal(t, StateInit, a.State())
	assert.Nil(t, a.Workflow())

	require.NoError(t, a.Initialize(ctx))
	assert.Equal(t, StateReady, a.State())
	assert.NotNil(t, a.Workflow())
	assert.Equal(t, int32(1), def.graphCalls.Load())
	assert.Equal(t, 1, tools.GetPingCount())

	// 探测消息
	last := provider.GetLastCall()
	require.NotNil(t, last)
	require.Len(t, last.Request.Messages, 1)
	assert.Equal(t, llm.ProbeMessage, last.Request.Messages[0].Content)
	assert.Equal(t, types.RoleUser, last.Request.Messages[0].Role)

	// 协作者传给了 Graph
	assert.Same(t, a.Model(), def.deps.Model)
	assert.Equal(t, tools, def.deps.Tools)
	assert.NotNil(t, def.deps.Logger)
}

func TestInitialize_PingsToolServerBeforeProbingModel(t *testing.T) {
	tools := mocks.NewMockToolServer()
	var pingsAtProbe int
	provider := mocks.NewMockProvider().WithCompletionFunc(func(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		pingsAtProbe = tools.GetPingCount()
		return &llm.ChatResponse{Choices: []llm.ChatChoice{{Message: types.NewAssistantMessage("ok")}}}, nil
	})
	a := newTestAgent(t, &pipeline{}, provider, tools)

	require.NoError(t, a.Initialize(testutil.TestContext(t)))
	assert.Equal(t, 1, pingsAtProbe)
}

func TestInitialize_ToolServerDown(t *testing.T) {
	tests := []struct {
		name  string
		tools *mocks.MockToolServer
	}{
		{"ping false", mocks.NewDeadToolServer()},
		{"ping error", mocks.NewMockToolServer().WithPingError(errors.New("connection refused"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := &pipeline{}
			provider := mocks.NewSuccessProvider("Hi")
			a := newTestAgent(t, def, provider, tt.tools)

			err := a.Initialize(testutil.TestContext(t))
			testutil.AssertErrorCode(t, err, types.ErrToolServerUnavailable)

			assert.Equal(t, int32(0), def.graphCalls.Load(), "graph must not be compiled")
			assert.Equal(t, 0, provider.GetCallCount(), "model must not be probed")
			assert.Equal(t, StateInit, a.State())
			assert.Nil(t, a.Workflow())
		})
	}
}

func TestInitialize_ToolServerPingErrorIsCause(t *testing.T) {
	cause := errors.New("connection refused")
	a := newTestAgent(t, &pipeline{}, mocks.NewSuccessProvider("Hi"), mocks.NewMockToolServer().WithPingError(cause))

	err := a.Initialize(testutil.TestContext(t))
	assert.ErrorIs(t, err, cause)
}

func TestInitialize_ModelProbeFails(t *testing.T) {
	tests := []struct {
		name     string
		provider *mocks.MockProvider
	}{
		{"empty reply", mocks.NewSuccessProvider("")},
		{"whitespace reply", mocks.NewSuccessProvider("  \n")},
		{"provider error", mocks.NewErrorProvider(types.NewError(types.ErrUnauthorized, "bad key"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := &pipeline{}
			a := newTestAgent(t, def, tt.provider, mocks.NewMockToolServer())

			err := a.Initialize(testutil.TestContext(t))
			testutil.AssertErrorCode(t, err, types.ErrProviderUnavailable)
			assert.Equal(t, int32(0), def.graphCalls.Load(), "graph must not be compiled")
			assert.Equal(t, StateInit, a.State())
		})
	}
}

func TestInitialize_RetryAfterConnectivityFailure(t *testing.T) {
	def := &pipeline{}
	tools := mocks.NewDeadToolServer()
	a := newTestAgent(t, def, mocks.NewSuccessProvider("Hi"), tools)
	ctx := testutil.TestContext(t)

	require.Error(t, a.Initialize(ctx))

	tools.WithAlive(true)
	require.NoError(t, a.Initialize(ctx))
	assert.Equal(t, StateReady, a.State())
	assert.Equal(t, int32(1), def.graphCalls.Load())
}

func TestInitialize_Twice(t *testing.T) {
	def := &pipeline{}
	a := newTestAgent(t, def, mocks.NewSuccessProvider("Hi"), mocks.NewMockToolServer())
	ctx := testutil.TestContext(t)

	require.NoError(t, a.Initialize(ctx))
	wf := a.Workflow()

	err := a.Initialize(ctx)
	testutil.AssertErrorCode(t, err, types.ErrAgentAlreadyInitialized)
	assert.Equal(t, int32(1), def.graphCalls.Load())

	// 第一次编译的工作流不受影响
	assert.Same(t, wf, a.Workflow())
	final, err := a.Invoke(ctx, pipelineState{Value: 1})
	require.NoError(t, err)
	assert.Equal(t, 20, final.Value)
}

func TestInitialize_CompileFailureIsFinal(t *testing.T) {
	def := &pipeline{duplicate: true}
	a := newTestAgent(t, def, mocks.NewSuccessProvider("Hi"), mocks.NewMockToolServer())
	ctx := testutil.TestContext(t)

	err := a.Initialize(ctx)
	testutil.AssertErrorCode(t, err, types.ErrDuplicateNode)
	assert.Equal(t, StateFailed, a.State())
	assert.Nil(t, a.Workflow())

	err = a.Initialize(ctx)
	testutil.AssertErrorCode(t, err, types.ErrAgentAlreadyInitialized)
	assert.Equal(t, int32(1), def.graphCalls.Load())

	_, err = a.Invoke(ctx, pipelineState{})
	testutil.AssertErrorCode(t, err, types.ErrAgentNotReady)
}

// --- 执行 ---

func TestRun_BeforeInitialize(t *testing.T) {
	a := newTestAgent(t, &pipeline{}, mocks.NewSuccessProvider("Hi"), mocks.NewMockToolServer())
	ctx := testutil.TestContext(t)

	_, err := a.Invoke(ctx, pipelineState{})
	testutil.AssertErrorCode(t, err, types.ErrAgentNotReady)

	_, err = a.Execute(ctx, pipelineState{})
	testutil.AssertErrorCode(t, err, types.ErrAgentNotReady)

	_, err = a.Stream(ctx, pipelineState{})
	testutil.AssertErrorCode(t, err, types.ErrAgentNotReady)

	res := <-a.InvokeAsync(ctx, pipelineState{})
	testutil.AssertErrorCode(t, res.Err, types.ErrAgentNotReady)
}

func TestRun_Invoke(t *testing.T) {
	a := newTestAgent(t, &pipeline{}, mocks.NewSuccessProvider("Hi"), mocks.NewMockToolServer())
	ctx := testutil.TestContext(t)
	require.NoError(t, a.Initialize(ctx))

	final, err := a.Invoke(ctx, pipelineState{Value: 2, Note: "keep"})
	require.NoError(t, err)
	assert.Equal(t, 30, final.Value)
	assert.Equal(t, []string{"A", "C"}, final.Trail)
	assert.Equal(t, "keep", final.Note, "fields not returned by nodes are untouched")
}

func TestRun_WorkflowOptionsOverrideConfig(t *testing.T) {
	cfg := testAgentConfig()
	cfg.StepLimit = 10
	a, err := New[pipelineState](cfg, &pipeline{}, llm.NewChatModel(mocks.NewSuccessProvider("Hi")), mocks.NewMockToolServer(),
		WithWorkflowOptions(workflow.WithStepLimit(1)))
	require.NoError(t, err)
	ctx := testutil.TestContext(t)
	require.NoError(t, a.Initialize(ctx))

	_, err = a.Invoke(ctx, pipelineState{Value: 1})
	testutil.AssertErrorCode(t, err, types.ErrStepLimit)
}

func TestRun_InvokeAsyncAndExecute(t *testing.T) {
	a := newTestAgent(t, &pipeline{}, mocks.NewSuccessProvider("Hi"), mocks.NewMockToolServer())
	ctx := testutil.TestContext(t)
	require.NoError(t, a.Initialize(ctx))

	res, ok := testutil.WaitForChannel(a.InvokeAsync(ctx, pipelineState{Value: 1}), 5*time.Second)
	require.True(t, ok)
	require.NoError(t, res.Err)
	assert.Equal(t, 20, res.State.Value)

	out, err := a.Execute(ctx, workflow.Update{"value": 3})
	require.NoError(t, err)
	assert.Equal(t, 40, out.(pipelineState).Value)
}

func TestRun_StreamMatchesInvoke(t *testing.T) {
	a := newTestAgent(t, &pipeline{}, mocks.NewSuccessProvider("Hi"), mocks.NewMockToolServer())
	ctx := testutil.TestContext(t)
	require.NoError(t, a.Initialize(ctx))

	events, err := a.Stream(ctx, pipelineState{Value: 4})
	require.NoError(t, err)

	var nodes []string
	var streamed []workflow.Event[pipelineState]
	for ev := range events {
		streamed = append(streamed, ev)
		if ev.Type == workflow.EventNodeComplete {
			nodes = append(nodes, ev.Node)
		}
	}
	require.NotEmpty(t, streamed)
	last := streamed[len(streamed)-1]
	require.Equal(t, workflow.EventEnd, last.Type)

	invoked, err := a.Invoke(ctx, pipelineState{Value: 4})
	require.NoError(t, err)
	assert.Equal(t, invoked, last.State)
	assert.Equal(t, []string{workflow.START, "A", "C"}, nodes)
}

func TestRun_Timeout(t *testing.T) {
	cfg := testAgentConfig()
	cfg.Timeout = 50 * time.Millisecond
	a, err := New[pipelineState](cfg, &pipeline{blockInA: true}, llm.NewChatModel(mocks.NewSuccessProvider("Hi")), mocks.NewMockToolServer())
	require.NoError(t, err)
	ctx := testutil.TestContext(t)
	require.NoError(t, a.Initialize(ctx))

	_, err = a.Invoke(ctx, pipelineState{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_IsolatedRuns(t *testing.T) {
	a := newTestAgent(t, &pipeline{}, mocks.NewSuccessProvider("Hi"), mocks.NewMockToolServer())
	ctx := testutil.TestContext(t)
	require.NoError(t, a.Initialize(ctx))

	first := a.InvokeAsync(ctx, pipelineState{Value: 1, Note: "first"})
	second := a.InvokeAsync(ctx, pipelineState{Value: 5, Note: "second"})

	r1, r2 := <-first, <-second
	require.NoError(t, r1.Err)
	require.NoError(t, r2.Err)
	assert.Equal(t, pipelineState{Value: 20, Trail: []string{"A", "C"}, Note: "first"}, r1.State)
	assert.Equal(t, pipelineState{Value: 60, Trail: []string{"A", "C"}, Note: "second"}, r2.State)
}

// --- 关闭 ---

type closingToolServer struct {
	*mocks.MockToolServer
	closed atomic.Int32
}

func (c *closingToolServer) Close() error {
	c.closed.Add(1)
	return nil
}

func TestClose(t *testing.T) {
	tools := &closingToolServer{MockToolServer: mocks.NewMockToolServer()}
	a := newTestAgent(t, &pipeline{}, mocks.NewSuccessProvider("Hi"), tools)
	ctx := testutil.TestContext(t)
	require.NoError(t, a.Initialize(ctx))

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Equal(t, int32(1), tools.closed.Load())
	assert.Equal(t, StateClosed, a.State())

	_, err := a.Invoke(ctx, pipelineState{})
	testutil.AssertErrorCode(t, err, types.ErrAgentNotReady)

	err = a.Initialize(ctx)
	testutil.AssertErrorCode(t, err, types.ErrAgentNotReady)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StateInit, StateReady))
	assert.True(t, CanTransition(StateInit, StateFailed))
	assert.True(t, CanTransition(StateReady, StateClosed))
	assert.False(t, CanTransition(StateReady, StateInit))
	assert.False(t, CanTransition(StateFailed, StateReady))
	assert.False(t, CanTransition(StateClosed, StateReady))

	err := ErrInvalidTransition{From: StateReady, To: StateInit}
	assert.Equal(t, "invalid state transition: ready -> init", err.Error())
}
