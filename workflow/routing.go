package workflow

import (
	"context"
	"fmt"
)

// Router 路由器接口
// 根据当前状态决定下一个节点，返回节点名
type Router[S any] interface {
	Route(ctx context.Context, state S) (string, error)
}

// RouterFunc 路由函数类型
type RouterFunc[S any] func(ctx context.Context, state S) (string, error)

// Route implements Router.
func (f RouterFunc[S]) Route(ctx context.Context, state S) (string, error) {
	return f(ctx, state)
}

// ConditionFunc evaluates a condition against the state.
type ConditionFunc[S any] func(ctx context.Context, state S) (bool, error)

// Branch 二分支路由：条件为真走 onTrue，否则走 onFalse
func Branch[S any](cond ConditionFunc[S], onTrue, onFalse string) RouterFunc[S] {
	return func(ctx context.Context, state S) (string, error) {
		ok, err := cond(ctx, state)
		if err != nil {
			return "", fmt.Errorf("condition evaluation failed: %w", err)
		}
		if ok {
			return onTrue, nil
		}
		return onFalse, nil
	}
}

// RouteTable 按路由键分发
// key 从状态中提取路由键；未命中时使用 fallback（为空则报错）
func RouteTable[S any](key func(S) string, routes map[string]string, fallback string) RouterFunc[S] {
	return func(_ context.Context, state S) (string, error) {
		k := key(state)
		if dest, ok := routes[k]; ok {
			return dest, nil
		}
		if fallback != "" {
			return fallback, nil
		}
		return "", fmt.Errorf("no route for key: %s", k)
	}
}
