package workflow

// Edge 有向边：从 Start 节点指向 End 节点（按名称）
// 指向 Route 节点的边在编译时成为条件转移；从 Route 节点出发的边声明路由器的可选目的地。
type Edge struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// E is shorthand for Edge{Start: start, End: end}.
func E(start, end string) Edge {
	return Edge{Start: start, End: end}
}

// GraphConfig is the declarative node and edge list an agent author supplies.
// It is read, never modified, by Compile.
type GraphConfig[S any] struct {
	Nodes []Node[S]
	Edges []Edge
}

// AddNodes appends nodes and returns the config for chaining.
func (c *GraphConfig[S]) AddNodes(nodes ...Node[S]) *GraphConfig[S] {
	c.Nodes = append(c.Nodes, nodes...)
	return c
}

// AddEdge appends an edge and returns the config for chaining.
func (c *GraphConfig[S]) AddEdge(start, end string) *GraphConfig[S] {
	c.Edges = append(c.Edges, Edge{Start: start, End: end})
	return c
}

// AddEdges appends edges in order.
func (c *GraphConfig[S]) AddEdges(edges ...Edge) *GraphConfig[S] {
	c.Edges = append(c.Edges, edges...)
	return c
}
