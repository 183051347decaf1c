package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/internal/ctxkeys"
	"github.com/BaSui01/agentgraph/types"
)

// Runnable is the untyped execution interface shared by workflows and agents.
type Runnable interface {
	Execute(ctx context.Context, input any) (any, error)
}

// Workflow 编译后的可执行图
// 编译后只读，不持有任何单次运行的可变数据，可被多个运行并发复用。
type Workflow[S any] struct {
	name        string
	schema      *Schema[S]
	nodes       map[string]Node[S] // 可执行节点，含 START/END
	routers     map[string]Node[S]
	transitions map[string]transition
	routes      map[string]map[string]struct{} // route 节点声明的目的地
	opts        options
	logger      *zap.Logger
	tracer      trace.Tracer
}

// Result is the outcome of an asynchronous run.
type Result[S any] struct {
	State S
	Err   error
}

// Name returns the workflow name.
func (w *Workflow[S]) Name() string { return w.name }

// Schema returns the state schema the workflow was compiled against.
func (w *Workflow[S]) Schema() *Schema[S] { return w.schema }

// Nodes returns the executable node names, including START and END, sorted.
func (w *Workflow[S]) Nodes() []string { return sortedKeys(w.nodes) }

// Destinations returns the destinations declared for a route node.
func (w *Workflow[S]) Destinations(route string) []string {
	return sortedKeys(w.routes[route])
}

// Invoke runs the workflow to completion and returns the final state.
// Errors returned by node bodies and routers are returned unchanged.
func (w *Workflow[S]) Invoke(ctx context.Context, initial S) (S, error) {
	return w.run(ctx, initial, nil)
}

// InvokeAsync runs the workflow in a new goroutine. The returned channel
// receives exactly one Result and is then closed.
func (w *Workflow[S]) InvokeAsync(ctx context.Context, initial S) <-chan Result[S] {
	out := make(chan Result[S], 1)
	go func() {
		defer close(out)
		state, err := w.run(ctx, initial, nil)
		out <- Result[S]{State: state, Err: err}
	}()
	return out
}

// Execute implements Runnable. The input may be S, *S, an Update, or a value
// of the schema's input type; the output is S or the schema's output type.
func (w *Workflow[S]) Execute(ctx context.Context, input any) (any, error) {
	initial, err := w.schema.FromInput(input)
	if err != nil {
		return nil, err
	}
	final, err := w.run(ctx, initial, nil)
	if err != nil {
		return nil, err
	}
	return w.schema.ToOutput(final), nil
}

// RunIDFromContext returns the id of the run a node body is executing in.
func RunIDFromContext(ctx context.Context) (string, bool) {
	return ctxkeys.RunID(ctx)
}

// run 顺序遍历图：执行节点 → 合并更新 → 选择下一跳，直到 END
func (w *Workflow[S]) run(ctx context.Context, initial S, emit func(Event[S])) (final S, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	runID := uuid.NewString()
	ctx = ctxkeys.WithRunID(ctx, runID)
	ctx, span := w.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.name", w.name),
		attribute.String("workflow.run_id", runID),
	))
	defer span.End()
	if sc := span.SpanContext(); sc.HasTraceID() {
		ctx = ctxkeys.WithTraceID(ctx, sc.TraceID().String())
	}

	logger := w.logger.With(zap.String("run_id", runID))
	if emit == nil {
		emit = func(Event[S]) {}
	}
	started := time.Now()
	w.opts.observer.RunStarted(w.name)
	logger.Info("workflow run started")

	defer func() {
		d := time.Since(started)
		w.opts.observer.RunFinished(w.name, d, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("workflow run failed", zap.Duration("duration", d), zap.Error(err))
			emit(Event[S]{Type: EventError, RunID: runID, State: final, Err: err, Timestamp: time.Now()})
			return
		}
		logger.Info("workflow run completed", zap.Duration("duration", d))
		emit(Event[S]{Type: EventEnd, RunID: runID, Node: END, Kind: KindEnd, State: final, Timestamp: time.Now()})
	}()

	state := initial
	// START 是恒等节点：初始状态即第一个快照
	emit(Event[S]{Type: EventNodeComplete, RunID: runID, Node: START, Kind: KindStart, State: state, Timestamp: time.Now()})

	current := START
	for step := 0; ; step++ {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		next, err := w.next(ctx, current, state)
		if err != nil {
			return state, err
		}
		w.opts.observer.Transition(w.name, current, next.node)
		if next.route != "" {
			logger.Debug("route selected",
				zap.String("from", current),
				zap.String("router", next.route),
				zap.String("to", next.node),
			)
			emit(Event[S]{Type: EventRoute, RunID: runID, Node: next.route, Kind: KindRoute, Route: next.node, Step: step, State: state, Timestamp: time.Now()})
		}
		if next.node == END {
			return state, nil
		}
		if step >= w.opts.stepLimit {
			return state, types.Errorf(types.ErrStepLimit, "step limit %d exceeded before node %q", w.opts.stepLimit, next.node)
		}

		emit(Event[S]{Type: EventNodeStart, RunID: runID, Node: next.node, Kind: KindPlain, Step: step, State: state, Timestamp: time.Now()})
		state, err = w.execNode(ctx, logger, w.nodes[next.node], state)
		if err != nil {
			return state, err
		}
		emit(Event[S]{Type: EventNodeComplete, RunID: runID, Node: next.node, Kind: KindPlain, Step: step, State: state, Timestamp: time.Now()})
		current = next.node
	}
}

func (w *Workflow[S]) execNode(ctx context.Context, logger *zap.Logger, n Node[S], state S) (S, error) {
	ctx, span := w.tracer.Start(ctx, "workflow.node", trace.WithAttributes(
		attribute.String("workflow.node", n.name),
		attribute.String("workflow.node_kind", n.kind.String()),
	))
	defer span.End()
	ctx = ctxkeys.WithNode(ctx, n.name)

	logger.Debug("executing node", zap.String("node", n.name))
	start := time.Now()
	upd, err := n.fn(ctx, state)
	if err == nil {
		state, err = w.schema.Apply(state, upd)
	}
	d := time.Since(start)
	w.opts.observer.NodeFinished(w.name, n.name, n.kind, d, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("node execution failed",
			zap.String("node", n.name),
			zap.Duration("duration", d),
			zap.Error(err),
		)
		return state, err
	}

	logger.Debug("node execution completed",
		zap.String("node", n.name),
		zap.Int("updated_keys", len(upd)),
		zap.Duration("duration", d),
	)
	return state, nil
}

type hop struct {
	node  string // 下一个可执行节点或 END
	route string // 经过的 route 节点，固定边时为空
}

// next 根据 from 的转移规则选择下一跳
func (w *Workflow[S]) next(ctx context.Context, from string, state S) (hop, error) {
	t, ok := w.transitions[from]
	if !ok {
		return hop{}, types.Errorf(types.ErrDeadEnd, "node %q has no outgoing edge", from)
	}
	if t.kind == transitionFixed {
		return hop{node: t.to}, nil
	}

	r := w.routers[t.to]
	start := time.Now()
	dest, err := r.router.Route(ctxkeys.WithNode(ctx, r.name), state)
	if err == nil {
		err = w.resolve(r.name, dest)
	}
	w.opts.observer.NodeFinished(w.name, r.name, KindRoute, time.Since(start), err)
	if err != nil {
		return hop{}, err
	}
	return hop{node: dest, route: r.name}, nil
}

// resolve checks a router result against the compiled graph.
func (w *Workflow[S]) resolve(route, dest string) error {
	n, ok := w.nodes[dest]
	if !ok || n.kind == KindStart {
		if _, isRoute := w.routers[dest]; isRoute {
			return types.Errorf(types.ErrUnknownRoute, "route node %q returned route node %q", route, dest)
		}
		return types.Errorf(types.ErrUnknownRoute, "route node %q returned unknown node %q", route, dest)
	}
	if w.opts.permissive {
		return nil
	}
	if _, declared := w.routes[route][dest]; !declared {
		return types.Errorf(types.ErrUnknownRoute, "route node %q returned undeclared destination %q", route, dest)
	}
	return nil
}
