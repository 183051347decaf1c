package react

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentgraph/agent"
	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/types"
	"github.com/BaSui01/agentgraph/workflow"
)

// 节点名
const (
	NodeModel = "model"
	NodeRoute = "route"
	NodeTools = "tools"
)

// State ReAct 循环的状态
type State struct {
	Messages []types.Message `json:"messages"` // 追加合并
	Steps    int             `json:"steps"`    // 模型调用次数，累加合并
	Answer   string          `json:"answer"`
}

// Input 执行入参
type Input struct {
	Messages []types.Message `json:"messages"`
}

// Output 执行结果
type Output struct {
	Answer   string          `json:"answer"`
	Messages []types.Message `json:"messages"`
	Steps    int             `json:"steps"`
}

// Config 定义 ReAct 行为
type Config struct {
	Parallelism int           // 同一轮工具调用的最大并发数 (default 4)
	ToolTimeout time.Duration // 单次工具调用超时，0 表示不限制
	StopOnError bool          // 工具失败时终止运行，而不是把错误作为观察结果交给模型
}

// Agent 是 agent.Definition[State] 的 ReAct 实现：
//
//	START → model → route ─┬→ tools → model
//	                       └→ END
type Agent struct {
	config Config
}

// New 创建 ReAct 定义
func New(config Config) *Agent {
	if config.Parallelism <= 0 {
		config.Parallelism = 4
	}
	return &Agent{config: config}
}

// Schema 实现 agent.Definition
func (a *Agent) Schema() *workflow.Schema[State] {
	return workflow.NewSchema[State](
		workflow.WithReducer("messages", workflow.Reduce(workflow.AppendReducer[types.Message]())),
		workflow.WithReducer("steps", workflow.Reduce(workflow.SumReducer[int]())),
		workflow.WithInput[Input](),
		workflow.WithOutput[Output](),
	)
}

// Graph 实现 agent.Definition
func (a *Agent) Graph(deps agent.Deps) workflow.GraphConfig[State] {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &runner{
		config: a.config,
		deps:   deps,
		logger: logger.With(zap.String("component", "react")),
	}

	var cfg workflow.GraphConfig[State]
	cfg.AddNodes(
		workflow.NewNode(NodeModel, r.model),
		workflow.NewRouteNode(NodeRoute, route),
		workflow.NewNode(NodeTools, r.tools),
	)
	cfg.AddEdges(
		workflow.E(workflow.START, NodeModel),
		workflow.E(NodeModel, NodeRoute),
		workflow.E(NodeRoute, NodeTools),
		workflow.E(NodeRoute, workflow.END),
		workflow.E(NodeTools, NodeModel),
	)
	return cfg
}

type runner struct {
	config Config
	deps   agent.Deps
	logger *zap.Logger

	mu    sync.Mutex
	bound *llm.ChatModel
}

// boundModel 首次调用时从工具服务端拉取工具列表并绑定到模型
//
// 失败不缓存，下次调用重试。
func (r *runner) boundModel(ctx context.Context) (*llm.ChatModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bound != nil {
		return r.bound, nil
	}
	tools, err := r.deps.Tools.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	r.logger.Debug("tools bound", zap.Int("count", len(tools)))
	r.bound = r.deps.Model.WithTools(tools...)
	return r.bound, nil
}

func (r *runner) model(ctx context.Context, s State) (workflow.Update, error) {
	m, err := r.boundModel(ctx)
	if err != nil {
		return nil, err
	}

	msgs := s.Messages
	if prompt := strings.TrimSpace(r.deps.Config.SystemPrompt); prompt != "" && !hasSystem(msgs) {
		msgs = append([]types.Message{types.NewSystemMessage(prompt)}, msgs...)
	}

	resp, err := m.Generate(ctx, msgs)
	if err != nil {
		return nil, err
	}
	choice, err := llm.FirstChoice(resp)
	if err != nil {
		return nil, types.NewError(types.ErrEmptyResponse, err.Error())
	}
	reply := choice.Message
	if reply.Role == "" {
		reply.Role = types.RoleAssistant
	}

	r.logger.Debug("model replied",
		zap.Int("step", s.Steps+1),
		zap.Int("tool_calls", len(reply.ToolCalls)),
		zap.String("finish_reason", choice.FinishReason))

	upd := workflow.Update{
		"messages": []types.Message{reply},
		"steps":    1,
	}
	if !reply.HasToolCalls() {
		upd["answer"] = reply.Content
	}
	return upd, nil
}

// route 最后一条助手消息带工具调用时进入 tools，否则结束
func route(_ context.Context, s State) (string, error) {
	if n := len(s.Messages); n > 0 && s.Messages[n-1].HasToolCalls() {
		return NodeTools, nil
	}
	return workflow.END, nil
}

func (r *runner) tools(ctx context.Context, s State) (workflow.Update, error) {
	if len(s.Messages) == 0 {
		return nil, types.NewError(types.ErrStateContract, "tools node reached with no messages")
	}
	calls := s.Messages[len(s.Messages)-1].ToolCalls
	results := make([]types.ToolResult, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Parallelism)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = r.callTool(gctx, call)
			if r.config.StopOnError && results[i].IsError() {
				return types.Errorf(types.ErrToolServerFailed, "tool %s failed: %s", call.Name, results[i].Error)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	msgs := make([]types.Message, len(results))
	for i, res := range results {
		msgs[i] = res.ToMessage()
	}
	return workflow.Update{"messages": msgs}, nil
}

func (r *runner) callTool(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	res := types.ToolResult{ToolCallID: call.ID, Name: call.Name}

	var args map[string]any
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			res.Error = fmt.Sprintf("invalid arguments: %v", err)
			res.Duration = time.Since(start)
			return res
		}
	}

	if r.config.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.ToolTimeout)
		defer cancel()
	}

	out, err := r.deps.Tools.CallTool(ctx, call.Name, args)
	res.Duration = time.Since(start)
	if err != nil {
		r.logger.Warn("tool execution failed", zap.String("tool", call.Name), zap.Error(err))
		res.Error = err.Error()
		return res
	}

	switch v := out.(type) {
	case string:
		res.Result = json.RawMessage(v)
	case json.RawMessage:
		res.Result = v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			res.Error = fmt.Sprintf("encode result: %v", err)
			return res
		}
		res.Result = data
	}
	r.logger.Debug("tool executed", zap.String("tool", call.Name), zap.Duration("duration", res.Duration))
	return res
}

func hasSystem(msgs []types.Message) bool {
	for _, m := range msgs {
		if m.Role == types.RoleSystem {
			return true
		}
	}
	return false
}

// Ask 以单个用户问题执行已初始化的 ReAct Agent
func Ask(ctx context.Context, a *agent.Agent[State], question string) (Output, error) {
	out, err := a.Execute(ctx, Input{Messages: []types.Message{types.NewUserMessage(question)}})
	if err != nil {
		return Output{}, err
	}
	return out.(Output), nil
}
