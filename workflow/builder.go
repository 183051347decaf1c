package workflow

import (
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/types"
)

const tracerName = "github.com/BaSui01/agentgraph/workflow"

type transitionKind uint8

const (
	// transitionFixed 无条件跳转到 to
	transitionFixed transitionKind = iota + 1
	// transitionConditional 调用 Route 节点 to 的路由器决定下一跳
	transitionConditional
)

type transition struct {
	kind transitionKind
	to   string
}

// Compile validates cfg against schema and returns an immutable Workflow. It
// never returns a partially compiled graph: any configuration error aborts the
// whole compilation.
//
// Compilation proceeds in a fixed order: authored nodes are indexed, START and
// END sentinels are inserted, every edge is resolved in declaration order, and
// finally the graph is checked for reachability unless WithPermissive is set.
func Compile[S any](schema *Schema[S], cfg GraphConfig[S], opts ...Option) (*Workflow[S], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With(zap.String("component", "graph_builder"), zap.String("workflow", o.name))

	w, err := compile(schema, cfg, o)
	if err != nil {
		logger.Error("graph compilation failed", zap.Error(err))
		return nil, err
	}

	logger.Info("graph compiled",
		zap.Int("nodes", len(cfg.Nodes)),
		zap.Int("edges", len(cfg.Edges)),
		zap.Bool("permissive", o.permissive),
	)
	return w, nil
}

func compile[S any](schema *Schema[S], cfg GraphConfig[S], o options) (*Workflow[S], error) {
	if schema == nil {
		return nil, types.NewError(types.ErrStateSchema, "state schema is required")
	}
	if err := schema.Err(); err != nil {
		return nil, err
	}

	// 1. 索引节点
	lookup := make(map[string]Node[S], len(cfg.Nodes)+2)
	for _, n := range cfg.Nodes {
		if err := n.validate(); err != nil {
			return nil, err
		}
		if _, dup := lookup[n.name]; dup {
			return nil, types.Errorf(types.ErrDuplicateNode, "duplicate node name %q", n.name)
		}
		lookup[n.name] = n
	}

	// 2. 注册可执行节点（Route 节点不可执行）
	w := &Workflow[S]{
		name:        o.name,
		schema:      schema,
		nodes:       make(map[string]Node[S], len(cfg.Nodes)+2),
		routers:     make(map[string]Node[S]),
		transitions: make(map[string]transition, len(cfg.Edges)),
		routes:      make(map[string]map[string]struct{}),
		opts:        o,
		logger:      o.logger.With(zap.String("component", "workflow"), zap.String("workflow", o.name)),
		tracer:      otel.Tracer(tracerName),
	}
	for name, n := range lookup {
		switch n.kind {
		case KindRoute:
			w.routers[name] = n
			w.routes[name] = make(map[string]struct{})
		case KindPlain:
			w.nodes[name] = n
		}
	}

	// 3. 注入哨兵节点
	lookup[START] = startNode[S]()
	lookup[END] = endNode[S]()
	w.nodes[START] = lookup[START]
	w.nodes[END] = lookup[END]

	// 4. 解析边
	for i, e := range cfg.Edges {
		src, ok := lookup[e.Start]
		if !ok {
			return nil, types.Errorf(types.ErrUnknownNode, "edge %d (%s -> %s): unknown start node %q", i, e.Start, e.End, e.Start)
		}
		dst, ok := lookup[e.End]
		if !ok {
			return nil, types.Errorf(types.ErrUnknownNode, "edge %d (%s -> %s): unknown end node %q", i, e.Start, e.End, e.End)
		}
		if err := w.addEdge(i, src, dst); err != nil {
			return nil, err
		}
	}

	// 5. 校验
	if _, ok := w.transitions[START]; !ok {
		return nil, types.NewError(types.ErrUnreachable, "START has no outgoing edge")
	}
	if !o.permissive {
		if err := w.checkReachability(); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *Workflow[S]) addEdge(i int, src, dst Node[S]) error {
	switch {
	case dst.kind == KindStart:
		return types.Errorf(types.ErrInvalidEdge, "edge %d (%s -> %s): START cannot be a destination", i, src.name, dst.name)
	case src.kind == KindEnd:
		return types.Errorf(types.ErrInvalidEdge, "edge %d (%s -> %s): END cannot be a source", i, src.name, dst.name)
	case src.kind == KindRoute && dst.kind == KindRoute:
		return types.Errorf(types.ErrInvalidEdge, "edge %d (%s -> %s): route node cannot lead to another route node", i, src.name, dst.name)
	case src.kind == KindRoute:
		w.routes[src.name][dst.name] = struct{}{}
		return nil
	}

	if prev, ok := w.transitions[src.name]; ok {
		return types.Errorf(types.ErrInvalidEdge, "edge %d (%s -> %s): node %q already transitions to %q", i, src.name, dst.name, src.name, prev.to)
	}
	kind := transitionFixed
	if dst.kind == KindRoute {
		kind = transitionConditional
	}
	w.transitions[src.name] = transition{kind: kind, to: dst.name}
	return nil
}

// GraphBuilder compiles one GraphConfig against a fixed schema. A builder is
// consumed by its first Build call, successful or not; every later call fails
// with ErrAlreadyCompiled and leaves the first Workflow untouched.
type GraphBuilder[S any] struct {
	schema *Schema[S]
	opts   []Option
	used   atomic.Bool
}

// NewGraphBuilder creates a builder. Input and output shapes are part of the
// schema (see WithInput and WithOutput).
func NewGraphBuilder[S any](schema *Schema[S], opts ...Option) *GraphBuilder[S] {
	return &GraphBuilder[S]{schema: schema, opts: opts}
}

// Build compiles cfg. It may be called at most once.
func (b *GraphBuilder[S]) Build(cfg GraphConfig[S]) (*Workflow[S], error) {
	if !b.used.CompareAndSwap(false, true) {
		return nil, types.NewError(types.ErrAlreadyCompiled, "graph builder has already compiled a workflow")
	}
	return Compile(b.schema, cfg, b.opts...)
}

// Compiled reports whether Build has been called.
func (b *GraphBuilder[S]) Compiled() bool {
	return b.used.Load()
}
