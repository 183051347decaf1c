package agent

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/config"
	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/types"
	"github.com/BaSui01/agentgraph/workflow"
)

// ToolServer 工具服务端协作者
//
// Ping 用于初始化门控；ListTools/CallTool 由节点实现按需使用。
type ToolServer interface {
	Ping(ctx context.Context) (bool, error)
	ListTools(ctx context.Context) ([]types.ToolSchema, error)
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)
}

// Deps 传给 Definition.Graph 的协作者
type Deps struct {
	Model  *llm.ChatModel
	Tools  ToolServer
	Config config.AgentConfig
	Logger *zap.Logger
}

// Definition 具体 Agent 的扩展点：状态 schema 与图配置
type Definition[S any] interface {
	Schema() *workflow.Schema[S]
	Graph(deps Deps) workflow.GraphConfig[S]
}

// Option 配置 Agent
type Option func(*options)

type options struct {
	logger       *zap.Logger
	observer     workflow.Observer
	workflowOpts []workflow.Option
}

// WithLogger 设置日志器
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver 设置工作流观察者（指标等）
func WithObserver(obs workflow.Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithWorkflowOptions 追加编译选项
func WithWorkflowOptions(opts ...workflow.Option) Option {
	return func(o *options) {
		o.workflowOpts = append(o.workflowOpts, opts...)
	}
}

// Agent 把一个图定义与语言模型、工具服务端绑定在一起
//
// 使用前必须调用 Initialize：先探测工具服务端，再探测模型，
// 两者都通过后才编译图。编译至多发生一次。
type Agent[S any] struct {
	cfg     config.AgentConfig
	def     Definition[S]
	model   *llm.ChatModel
	tools   ToolServer
	builder *workflow.GraphBuilder[S]
	logger  *zap.Logger

	initMu sync.Mutex // 串行化 Initialize

	mu    sync.RWMutex
	state State
	wf    *workflow.Workflow[S]
}

// New 创建 Agent；不做任何 I/O
func New[S any](cfg config.AgentConfig, def Definition[S], model *llm.ChatModel, tools ToolServer, opts ...Option) (*Agent[S], error) {
	if def == nil {
		return nil, types.NewError(types.ErrInvalidNode, "agent definition is nil")
	}
	if model == nil {
		return nil, types.NewError(types.ErrProviderUnavailable, "agent has no language model")
	}
	if tools == nil {
		return nil, types.NewError(types.ErrToolServerUnavailable, "agent has no tool server")
	}
	schema := def.Schema()
	if schema == nil {
		return nil, types.NewError(types.ErrStateSchema, "agent definition returned a nil schema")
	}

	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	name := cfg.Name
	if name == "" {
		name = "agent"
	}
	logger := o.logger.With(zap.String("component", "agent"), zap.String("agent", name))

	wfOpts := []workflow.Option{workflow.WithName(name), workflow.WithLogger(o.logger)}
	if cfg.StepLimit > 0 {
		wfOpts = append(wfOpts, workflow.WithStepLimit(cfg.StepLimit))
	}
	if cfg.Permissive {
		wfOpts = append(wfOpts, workflow.WithPermissive())
	}
	if o.observer != nil {
		wfOpts = append(wfOpts, workflow.WithObserver(o.observer))
	}
	wfOpts = append(wfOpts, o.workflowOpts...)

	return &Agent[S]{
		cfg:     cfg,
		def:     def,
		model:   model,
		tools:   tools,
		builder: workflow.NewGraphBuilder(schema, wfOpts...),
		logger:  logger,
		state:   StateInit,
	}, nil
}

// State 返回当前生命周期状态
func (a *Agent[S]) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Model 返回绑定的语言模型
func (a *Agent[S]) Model() *llm.ChatModel { return a.model }

// Tools 返回绑定的工具服务端
func (a *Agent[S]) Tools() ToolServer { return a.tools }

// Workflow 返回已编译的工作流，未就绪时为 nil
func (a *Agent[S]) Workflow() *workflow.Workflow[S] {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.wf
}

func (a *Agent[S]) transition(to State) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !CanTransition(a.state, to) {
		return ErrInvalidTransition{From: a.state, To: to}
	}
	a.state = to
	return nil
}

// Initialize 依次：探测工具服务端、探测模型、编译图
//
// 连通性失败时不编译，Agent 保持 init 状态，可以再次调用。
// 编译一旦发生（无论成败），后续调用返回 AGENT_ALREADY_INITIALIZED。
func (a *Agent[S]) Initialize(ctx context.Context) error {
	a.initMu.Lock()
	defer a.initMu.Unlock()

	switch st := a.State(); st {
	case StateInit:
	case StateClosed:
		return types.NewError(types.ErrAgentNotReady, "agent is closed")
	default:
		return types.Errorf(types.ErrAgentAlreadyInitialized, "agent already initialized (state %s)", st)
	}

	a.logger.Info("initializing agent")

	alive, err := a.tools.Ping(ctx)
	if err != nil || !alive {
		e := types.NewError(types.ErrToolServerUnavailable, "tool server connection failed")
		if err != nil {
			e = e.WithCause(err)
		}
		a.logger.Error("tool server ping failed", zap.Bool("alive", alive), zap.Error(err))
		return e
	}
	a.logger.Debug("tool server ping ok")

	if err := llm.Probe(ctx, a.model); err != nil {
		a.logger.Error("model probe failed", zap.Error(err))
		return err
	}
	a.logger.Debug("model probe ok", zap.String("model", a.model.Model()))

	cfg := a.def.Graph(Deps{
		Model:  a.model,
		Tools:  a.tools,
		Config: a.cfg,
		Logger: a.logger,
	})
	wf, err := a.builder.Build(cfg)
	if err != nil {
		_ = a.transition(StateFailed)
		a.logger.Error("workflow compile failed", zap.Error(err))
		return err
	}

	a.mu.Lock()
	a.wf = wf
	a.mu.Unlock()
	if err := a.transition(StateReady); err != nil {
		return err
	}

	a.logger.Info("agent ready", zap.Strings("nodes", wf.Nodes()))
	return nil
}

func (a *Agent[S]) ready() (*workflow.Workflow[S], error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.state != StateReady || a.wf == nil {
		return nil, types.Errorf(types.ErrAgentNotReady, "agent is not ready (state %s)", a.state)
	}
	return a.wf, nil
}

func (a *Agent[S]) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, a.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// Invoke 阻塞执行一次工作流并返回最终状态
func (a *Agent[S]) Invoke(ctx context.Context, initial S) (S, error) {
	wf, err := a.ready()
	if err != nil {
		var zero S
		return zero, err
	}
	ctx, cancel := a.runContext(ctx)
	defer cancel()
	return wf.Invoke(ctx, initial)
}

// InvokeAsync 异步执行，结果通过通道返回
func (a *Agent[S]) InvokeAsync(ctx context.Context, initial S) <-chan workflow.Result[S] {
	out := make(chan workflow.Result[S], 1)
	go func() {
		defer close(out)
		state, err := a.Invoke(ctx, initial)
		out <- workflow.Result[S]{State: state, Err: err}
	}()
	return out
}

// Execute 按输入/输出 schema 执行
func (a *Agent[S]) Execute(ctx context.Context, input any) (any, error) {
	wf, err := a.ready()
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.runContext(ctx)
	defer cancel()
	return wf.Execute(ctx, input)
}

// Stream 流式执行；通道在运行结束后关闭，调用方须读完
func (a *Agent[S]) Stream(ctx context.Context, initial S) (<-chan workflow.Event[S], error) {
	wf, err := a.ready()
	if err != nil {
		return nil, err
	}
	ctx, cancel := a.runContext(ctx)
	events := wf.Stream(ctx, initial)

	out := make(chan workflow.Event[S])
	go func() {
		defer close(out)
		defer cancel()
		for ev := range events {
			out <- ev
		}
	}()
	return out, nil
}

// Close 关闭 Agent；工具服务端实现了 io.Closer 时一并关闭
func (a *Agent[S]) Close() error {
	a.initMu.Lock()
	defer a.initMu.Unlock()

	if a.State() == StateClosed {
		return nil
	}
	if err := a.transition(StateClosed); err != nil {
		return err
	}
	a.logger.Info("agent closed")
	if c, ok := a.tools.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
