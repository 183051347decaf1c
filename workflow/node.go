package workflow

import (
	"context"

	"github.com/BaSui01/agentgraph/types"
)

// Reserved node names. The compiler injects a sentinel node for each; authors
// reference them in edges but never declare them.
const (
	START = "START"
	END   = "END"
)

// NodeKind is the discriminant of the closed Node variant set.
type NodeKind uint8

const (
	// KindPlain wraps a computation that returns a partial state update.
	KindPlain NodeKind = iota + 1
	// KindRoute wraps a router that picks the next node by name.
	KindRoute
	// KindStart is the implicit entry sentinel.
	KindStart
	// KindEnd is the implicit terminal sentinel.
	KindEnd
)

// String returns the kind name used in logs and metric labels.
func (k NodeKind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindRoute:
		return "route"
	case KindStart:
		return "start"
	case KindEnd:
		return "end"
	default:
		return "unknown"
	}
}

// NodeFunc is the body of a plain node. It receives the full current state and
// returns the fields to change.
type NodeFunc[S any] func(ctx context.Context, state S) (Update, error)

// Node is a named unit of graph logic. The zero value is invalid; build nodes
// with NewNode or NewRouteNode.
type Node[S any] struct {
	name   string
	kind   NodeKind
	fn     NodeFunc[S]
	router Router[S]
}

// NewNode creates a plain node.
func NewNode[S any](name string, fn NodeFunc[S]) Node[S] {
	return Node[S]{name: name, kind: KindPlain, fn: fn}
}

// NewRouteNode creates a route node from a router function.
func NewRouteNode[S any](name string, fn RouterFunc[S]) Node[S] {
	var r Router[S]
	if fn != nil {
		r = fn
	}
	return Node[S]{name: name, kind: KindRoute, router: r}
}

// NewRouterNode creates a route node from any Router implementation.
func NewRouterNode[S any](name string, r Router[S]) Node[S] {
	return Node[S]{name: name, kind: KindRoute, router: r}
}

func startNode[S any]() Node[S] { return Node[S]{name: START, kind: KindStart} }
func endNode[S any]() Node[S]   { return Node[S]{name: END, kind: KindEnd} }

// Name returns the node's unique name.
func (n Node[S]) Name() string { return n.name }

// Kind returns the node variant.
func (n Node[S]) Kind() NodeKind { return n.kind }

// validate checks an authored node. Sentinel kinds cannot be authored.
func (n Node[S]) validate() error {
	if n.name == "" {
		return types.NewError(types.ErrInvalidNode, "node name must not be empty")
	}
	if n.name == START || n.name == END {
		return types.Errorf(types.ErrInvalidNode, "node name %q is reserved", n.name)
	}
	switch n.kind {
	case KindPlain:
		if n.fn == nil {
			return types.Errorf(types.ErrInvalidNode, "plain node %q has no function", n.name)
		}
	case KindRoute:
		if n.router == nil {
			return types.Errorf(types.ErrInvalidNode, "route node %q has no router", n.name)
		}
	case KindStart, KindEnd:
		return types.Errorf(types.ErrInvalidNode, "node %q: %s nodes are injected by the compiler", n.name, n.kind)
	default:
		return types.Errorf(types.ErrInvalidNode, "node %q has unknown kind %d", n.name, n.kind)
	}
	return nil
}
