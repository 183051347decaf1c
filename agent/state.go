package agent

import "fmt"

// State 定义 Agent 生命周期状态
type State string

const (
	StateInit   State = "init"   // 已创建，尚未通过初始化
	StateReady  State = "ready"  // 已编译，可执行
	StateFailed State = "failed" // 编译失败，不可再初始化
	StateClosed State = "closed" // 已关闭
)

// validTransitions 定义合法的状态转换
//
// 连通性检查失败不改变状态（仍为 init，可重试）；一旦进入编译，
// 结果就是终态 ready 或 failed。
var validTransitions = map[State][]State{
	StateInit:   {StateReady, StateFailed, StateClosed},
	StateReady:  {StateClosed},
	StateFailed: {StateClosed},
}

// CanTransition 检查状态转换是否合法
func CanTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition 非法状态转换错误
type ErrInvalidTransition struct {
	From State
	To   State
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}
