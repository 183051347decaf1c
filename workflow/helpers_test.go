package workflow

import (
	"context"
	"sync"
	"time"
)

type testState struct {
	Input   string   `json:"input"`
	Visited []string `json:"visited"`
	Count   int      `json:"count"`
	Result  string   `json:"result"`
	Hidden  string   `state:"-"`
}

func newTestSchema(opts ...SchemaOption) *Schema[testState] {
	opts = append([]SchemaOption{WithReducer("visited", Reduce(AppendReducer[string]()))}, opts...)
	return NewSchema[testState](opts...)
}

// visit 返回一个记录访问轨迹的普通节点
func visit(name string) Node[testState] {
	return NewNode(name, func(_ context.Context, _ testState) (Update, error) {
		return Update{"visited": []string{name}}, nil
	})
}

func always(dest string) Node[testState] {
	return NewRouteNode("route_to_"+dest, func(context.Context, testState) (string, error) {
		return dest, nil
	})
}

// exampleGraph is START -> A -> (B: always C) -> C -> END.
func exampleGraph() GraphConfig[testState] {
	return GraphConfig[testState]{
		Nodes: []Node[testState]{
			visit("A"),
			NewRouteNode("B", func(context.Context, testState) (string, error) { return "C", nil }),
			NewNode("C", func(_ context.Context, s testState) (Update, error) {
				return Update{"visited": []string{"C"}, "result": "done:" + s.Input}, nil
			}),
		},
		Edges: []Edge{E(START, "A"), E("A", "B"), E("B", "C"), E("C", END)},
	}
}

type recordingObserver struct {
	mu          sync.Mutex
	runs        int
	finished    int
	nodes       []string
	transitions [][2]string
	lastErr     error
}

func (o *recordingObserver) RunStarted(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs++
}

func (o *recordingObserver) NodeFinished(_ string, node string, _ NodeKind, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nodes = append(o.nodes, node)
}

func (o *recordingObserver) Transition(_ string, from, to string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, [2]string{from, to})
}

func (o *recordingObserver) RunFinished(_ string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished++
	o.lastErr = err
}
