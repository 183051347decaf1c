package workflow

import (
	"context"
	"errors"
	"time"
)

// EventType identifies a workflow stream event.
type EventType string

const (
	// EventNodeStart is emitted before a plain node runs.
	EventNodeStart EventType = "node_start"
	// EventNodeComplete carries the merged state after a node. The first one
	// is emitted for START with the initial state.
	EventNodeComplete EventType = "node_complete"
	// EventRoute is emitted when a router picks the next node.
	EventRoute EventType = "route"
	// EventError is the last event of a failed run.
	EventError EventType = "error"
	// EventEnd is the last event of a successful run and carries the final state.
	EventEnd EventType = "end"
)

// Event is one observation of a running workflow.
type Event[S any] struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	Node      string    `json:"node,omitempty"`
	Kind      NodeKind  `json:"kind,omitempty"`
	Route     string    `json:"route,omitempty"` // EventRoute 的目的节点
	Step      int       `json:"step"`
	State     S         `json:"state"`
	Err       error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// streamBuffer 足以容纳小图的全部事件，消费者稍慢时不阻塞执行
const streamBuffer = 16

// ErrStreamIncomplete is returned by Collect when the channel closes without
// a terminal event.
var ErrStreamIncomplete = errors.New("workflow: stream closed before the run finished")

// Stream runs the workflow in a new goroutine and yields an event for every
// state snapshot and routing decision. The final event is always EventEnd or
// EventError, after which the channel is closed. Transition semantics are
// identical to Invoke. Once ctx is cancelled, intermediate events may be
// dropped to make room for the terminal event.
func (w *Workflow[S]) Stream(ctx context.Context, initial S) <-chan Event[S] {
	if ctx == nil {
		ctx = context.Background()
	}
	out := make(chan Event[S], streamBuffer)
	go func() {
		defer close(out)
		emit := func(ev Event[S]) {
			if ev.Type == EventError || ev.Type == EventEnd {
				deliverTerminal(ctx, out, ev)
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		}
		_, _ = w.run(ctx, initial, emit)
	}()
	return out
}

// deliverTerminal 阻塞投递终止事件；ctx 取消且缓冲已满时丢弃最旧的事件腾出位置
func deliverTerminal[S any](ctx context.Context, out chan Event[S], ev Event[S]) {
	select {
	case out <- ev:
		return
	case <-ctx.Done():
	}
	for {
		select {
		case out <- ev:
			return
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}

// Collect drains a stream and returns the final state, or the run error.
// A stream that closes without EventEnd or EventError yields ErrStreamIncomplete.
func Collect[S any](events <-chan Event[S]) (S, error) {
	var final S
	err := ErrStreamIncomplete
	for ev := range events {
		switch ev.Type {
		case EventEnd:
			final, err = ev.State, nil
		case EventError:
			final, err = ev.State, ev.Err
		}
	}
	return final, err
}
