package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentgraph/types"
)

func requireCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, types.GetErrorCode(err), err.Error())
}

func TestCompile_ExampleGraph(t *testing.T) {
	wf, err := Compile(newTestSchema(), exampleGraph(), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "C", END, START}, wf.Nodes())
	assert.Equal(t, []string{"C"}, wf.Destinations("B"))
}

func TestCompile_ConfigurationErrors(t *testing.T) {
	noop := func(context.Context, testState) (Update, error) { return nil, nil }

	tests := []struct {
		name string
		cfg  GraphConfig[testState]
		opts []Option
		code types.ErrorCode
		msg  string
	}{
		{
			name: "duplicate node",
			cfg: GraphConfig[testState]{
				Nodes: []Node[testState]{visit("A"), visit("A")},
				Edges: []Edge{E(START, "A"), E("A", END)},
			},
			code: types.ErrDuplicateNode,
			msg:  `"A"`,
		},
		{
			name: "duplicate across variants",
			cfg: GraphConfig[testState]{
				Nodes: []Node[testState]{visit("A"), NewRouteNode("A", func(context.Context, testState) (string, error) { return END, nil })},
				Edges: []Edge{E(START, "A"), E("A", END)},
			},
			code: types.ErrDuplicateNode,
		},
		{
			name: "unknown start node",
			cfg: GraphConfig[testState]{
				Nodes: []Node[testState]{visit("A")},
				Edges: []Edge{E(START, "A"), E("X", END), E("A", END)},
			},
			code: types.ErrUnknownNode,
			msg:  `unknown start node "X"`,
		},
		{
			name: "unknown end node",
			cfg: GraphConfig[testState]{
				Nodes: []Node[testState]{visit("A")},
				Edges: []Edge{E(START, "A"), E("A", "Y")},
			},
			code: types.ErrUnknownNode,
			msg:  `unknown end node "Y"`,
		},
		{
			name: "reserved node name",
			cfg: GraphConfig[testState]{
				Nodes: []Node[testState]{NewNode(END, noop)},
				Edges: []Edge{E(START, END)},
			},
			code: types.ErrInvalidNode,
		},
		{
			name: "empty node name",
			cfg:  GraphConfig[testState]{Nodes: []Node[testState]{NewNode("", noop)}},
			code: types.ErrInvalidNode,
		},
		{
			name: "nil node function",
			cfg:  GraphConfig[testState]{Nodes: []Node[testState]{NewNode[testState]("A", nil)}},
			code: types.ErrInvalidNode,
		},
		{
			name: "nil router",
			cfg:  GraphConfig[testState]{Nodes: []Node[testState]{NewRouteNode[testState]("R", nil)}},
			code: types.ErrInvalidNode,
		},
		{
			name: "zero value node",
			cfg:  GraphConfig[testState]{Nodes: []Node[testState]{{}}},
			code: types.ErrInvalidNode,
		},
		{
			name: "edge into START",
			cfg: GraphConfig[testState]{
				Nodes: []Node[testState]{visit("A")},
				Edges: []Edge{E(START, "A"), E("A", START)},
			},
			code: types.ErrInvalidEdge,
		},
		{
			name: "edge out of END",
			cfg: GraphConfig[testState]{
				Nodes: []Node[testState]{visit("A")},
				Edges: []Edge{E(START, "A"), E("A", END), E(END, "A")},
			},
			code: types.ErrInvalidEdge,
		},
		{
			name: "fan-out from plain node",
			cfg: GraphConfig[testState]{
				Nodes: []Node[testState]{visit("A"), visit("B")},
				Edges: []Edge{E(START, "A"), E("A", "B"), E("A", END), E("B", END)},
			},
			code: types.ErrInvalidEdge,
			msg:  `already transitions to "B"`,
		},
		{
			name: "route to route",
			cfg: GraphConfig[testState]{
				Nodes: []Node[testState]{visit("A"), always(END), always("A")},
				Edges: []Edge{E(START, "A"), E("A", "route_to_END"), E("route_to_END", "route_to_A")},
			},
			code: types.ErrInvalidEdge,
		},
		{
			name: "START without outgoing edge",
			cfg: GraphConfig[testState]{
				Nodes: []Node[testState]{visit("A")},
				Edges: []Edge{E("A", END)},
			},
			code: types.ErrUnreachable,
		},
		{
			name: "orphaned node",
			cfg: GraphConfig[testState]{
				Nodes: []Node[testState]{visit("A"), visit("B")},
				Edges: []Edge{E(START, "A"), E("A", END), E("B", END)},
			},
			code: types.ErrUnreachable,
			msg:  "[B]",
		},
		{
			name: "dead end",
			cfg: GraphConfig[testState]{
				Nodes: []Node[testState]{visit("A"), visit("B")},
				Edges: []Edge{E(START, "A"), E("A", "B")},
			},
			code: types.ErrUnreachable,
		},
		{
			name: "closed cycle",
			cfg: GraphConfig[testState]{
				Nodes: []Node[testState]{visit("A"), visit("B")},
				Edges: []Edge{E(START, "A"), E("A", "B"), E("B", "A")},
			},
			code: types.ErrUnreachable,
			msg:  "no path to END",
		},
		{
			name: "route without destinations",
			cfg: GraphConfig[testState]{
				Nodes: []Node[testState]{visit("A"), always(END)},
				Edges: []Edge{E(START, "A"), E("A", "route_to_END")},
			},
			code: types.ErrUnreachable,
			msg:  "declares no destinations",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf, err := Compile(newTestSchema(), tt.cfg, tt.opts...)
			assert.Nil(t, wf)
			requireCode(t, err, tt.code)
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestCompile_PermissiveAllowsDeadEnds(t *testing.T) {
	cfg := GraphConfig[testState]{
		Nodes: []Node[testState]{visit("A"), visit("B"), always(END)},
		Edges: []Edge{E(START, "A"), E("A", "route_to_END")},
	}

	_, err := Compile(newTestSchema(), cfg)
	require.Error(t, err)

	wf, err := Compile(newTestSchema(), cfg, WithPermissive())
	require.NoError(t, err)
	assert.Empty(t, wf.Destinations("route_to_END"))
}

func TestCompile_SchemaErrors(t *testing.T) {
	_, err := Compile[testState](nil, exampleGraph())
	requireCode(t, err, types.ErrStateSchema)

	bad := NewSchema[testState](WithReducer("missing", Reduce(LastValueReducer[int]())))
	_, err = Compile(bad, exampleGraph())
	requireCode(t, err, types.ErrStateSchema)
}

func TestCompile_DoesNotModifyConfig(t *testing.T) {
	cfg := exampleGraph()
	edges := append([]Edge(nil), cfg.Edges...)

	_, err := Compile(newTestSchema(), cfg)
	require.NoError(t, err)
	assert.Equal(t, edges, cfg.Edges)
	assert.Len(t, cfg.Nodes, 3)
}

func TestGraphConfig_Fluent(t *testing.T) {
	var cfg GraphConfig[testState]
	cfg.AddNodes(visit("A"), visit("B")).
		AddEdge(START, "A").
		AddEdges(E("A", "B"), E("B", END))

	wf, err := Compile(newTestSchema(), cfg)
	require.NoError(t, err)

	final, err := wf.Invoke(context.Background(), testState{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, final.Visited)
}

func TestGraphBuilder_CompilesAtMostOnce(t *testing.T) {
	b := NewGraphBuilder(newTestSchema())
	assert.False(t, b.Compiled())

	first, err := b.Build(exampleGraph())
	require.NoError(t, err)
	assert.True(t, b.Compiled())

	second, err := b.Build(exampleGraph())
	assert.Nil(t, second)
	requireCode(t, err, types.ErrAlreadyCompiled)

	// 第一次编译的结果不受影响
	final, err := first.Invoke(context.Background(), testState{Input: "x"})
	require.NoError(t, err)
	assert.Equal(t, "done:x", final.Result)
}

func TestGraphBuilder_FailedBuildConsumesBuilder(t *testing.T) {
	b := NewGraphBuilder(newTestSchema())

	_, err := b.Build(GraphConfig[testState]{Nodes: []Node[testState]{visit("A"), visit("A")}})
	requireCode(t, err, types.ErrDuplicateNode)

	_, err = b.Build(exampleGraph())
	requireCode(t, err, types.ErrAlreadyCompiled)
}

func TestGraphBuilder_ConcurrentBuild(t *testing.T) {
	b := NewGraphBuilder(newTestSchema())

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Build(exampleGraph())
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if types.IsErrorCode(err, types.ErrAlreadyCompiled) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 7, rejected)
}
