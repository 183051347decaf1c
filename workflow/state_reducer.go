package workflow

import "fmt"

// Reducer defines how to merge a state update into the current value.
type Reducer[T any] func(current T, update T) T

// Reduce adapts a typed Reducer into a FieldReducer for a Schema field.
func Reduce[T any](r Reducer[T]) FieldReducer {
	return func(current, update any) (any, error) {
		var c T
		if current != nil {
			typed, ok := current.(T)
			if !ok {
				return nil, fmt.Errorf("reducer expected current %T, got %T", c, current)
			}
			c = typed
		}
		u, ok := update.(T)
		if !ok {
			return nil, fmt.Errorf("reducer expected update %T, got %T", c, update)
		}
		return r(c, u), nil
	}
}

// Built-in reducers

// LastValueReducer returns the most recent value (default).
func LastValueReducer[T any]() Reducer[T] {
	return func(_, update T) T {
		return update
	}
}

// AppendReducer appends slices together. The result never aliases current, so
// states from earlier steps and other runs are not modified.
func AppendReducer[T any]() Reducer[[]T] {
	return func(current, update []T) []T {
		result := make([]T, 0, len(current)+len(update))
		result = append(result, current...)
		result = append(result, update...)
		return result
	}
}

// MergeMapReducer merges maps, with update values taking precedence.
func MergeMapReducer[K comparable, V any]() Reducer[map[K]V] {
	return func(current, update map[K]V) map[K]V {
		result := make(map[K]V, len(current)+len(update))
		for k, v := range current {
			result[k] = v
		}
		for k, v := range update {
			result[k] = v
		}
		return result
	}
}

// SumReducer sums numeric values.
func SumReducer[T ~int | ~int64 | ~float64]() Reducer[T] {
	return func(current, update T) T {
		return current + update
	}
}

// MaxReducer keeps the maximum value.
func MaxReducer[T ~int | ~int64 | ~float64]() Reducer[T] {
	return func(current, update T) T {
		if update > current {
			return update
		}
		return current
	}
}
