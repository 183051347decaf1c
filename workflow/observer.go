package workflow

import "time"

// Observer receives run lifecycle notifications. Implementations must be safe
// for concurrent use: overlapping runs of one Workflow share its observer.
type Observer interface {
	RunStarted(workflow string)
	NodeFinished(workflow, node string, kind NodeKind, d time.Duration, err error)
	Transition(workflow, from, to string)
	RunFinished(workflow string, d time.Duration, err error)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) RunStarted(string) {}
func (NopObserver) NodeFinished(string, string, NodeKind, time.Duration, error) {}
func (NopObserver) Transition(string, string, string) {}
func (NopObserver) RunFinished(string, time.Duration, error) {}
