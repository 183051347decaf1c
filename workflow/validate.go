package workflow

import (
	"sort"

	"github.com/BaSui01/agentgraph/types"
)

// checkReachability enforces that every authored node is reachable from START
// and that every reachable node has a path to END. Route nodes count as
// reachable when some node transitions through them, and must declare at least
// one destination.
func (w *Workflow[S]) checkReachability() error {
	for _, name := range sortedKeys(w.routes) {
		if len(w.routes[name]) == 0 {
			return types.Errorf(types.ErrUnreachable, "route node %q declares no destinations", name)
		}
	}

	forward := make(map[string]bool)
	w.markReachable(START, forward)

	var orphaned []string
	for name := range w.nodes {
		if name != END && !forward[name] {
			orphaned = append(orphaned, name)
		}
	}
	for name := range w.routers {
		if !forward[name] {
			orphaned = append(orphaned, name)
		}
	}
	if len(orphaned) > 0 {
		sort.Strings(orphaned)
		return types.Errorf(types.ErrUnreachable, "nodes not reachable from START: %v", orphaned)
	}

	// 反向遍历：从 END 出发沿前驱可达的节点都能结束
	preds := w.predecessors()
	backward := make(map[string]bool)
	stack := []string{END}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if backward[n] {
			continue
		}
		backward[n] = true
		stack = append(stack, preds[n]...)
	}

	var stuck []string
	for name := range forward {
		if !backward[name] {
			stuck = append(stuck, name)
		}
	}
	if len(stuck) > 0 {
		sort.Strings(stuck)
		return types.Errorf(types.ErrUnreachable, "nodes with no path to END: %v", stuck)
	}
	return nil
}

// successors lists the nodes control may move to after name.
func (w *Workflow[S]) successors(name string) []string {
	if r, ok := w.routers[name]; ok {
		return sortedKeys(w.routes[r.name])
	}
	t, ok := w.transitions[name]
	if !ok {
		return nil
	}
	return []string{t.to}
}

// markReachable marks all nodes reachable from the given node
func (w *Workflow[S]) markReachable(name string, reachable map[string]bool) {
	if reachable[name] {
		return
	}
	reachable[name] = true
	for _, next := range w.successors(name) {
		w.markReachable(next, reachable)
	}
}

func (w *Workflow[S]) predecessors() map[string][]string {
	preds := make(map[string][]string)
	add := func(from string) {
		for _, to := range w.successors(from) {
			preds[to] = append(preds[to], from)
		}
	}
	for name := range w.nodes {
		add(name)
	}
	for name := range w.routers {
		add(name)
	}
	return preds
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
