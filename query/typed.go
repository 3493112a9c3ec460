package query

import (
	"context"

	"github.com/cockroachdb/errors"
)

// ErrUnexpectedType is returned when cached data does not have the type the
// caller asked for.
var ErrUnexpectedType = errors.New("unexpected data type")

// Fetch is FetchQuery with the result asserted to T.
func Fetch[T any](ctx context.Context, c *Client, opts Options) (T, error) {
	var zero T
	v, err := c.FetchQuery(ctx, opts)
	if err != nil {
		return zero, err
	}
	return as[T](v)
}

// GetData returns the data cached for k when it has type T.
func GetData[T any](c *Client, k any) (T, bool) {
	v, ok := c.GetQueryData(k)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// UpdateData applies fn to the data cached for k. fn receives the zero
// value and false when there is no data of type T yet.
func UpdateData[T any](c *Client, k any, fn func(old T, ok bool) T) T {
	out := c.SetQueryData(k, Updater(func(old any) any {
		t, ok := old.(T)
		return fn(t, ok)
	}))
	t, _ := out.(T)
	return t
}

// Typed adapts a typed fetch function to a QueryFunc.
func Typed[T any](fn func(ctx context.Context) (T, error)) QueryFunc {
	return func(ctx context.Context) (any, error) {
		return fn(ctx)
	}
}

// TypedMutation adapts a typed mutation function to a MutationFunc.
func TypedMutation[V, T any](fn func(ctx context.Context, vars V) (T, error)) MutationFunc {
	return func(ctx context.Context, vars any) (any, error) {
		v, ok := vars.(V)
		if !ok && vars != nil {
			var zero V
			return nil, errors.Mark(errors.Newf("mutation variables: got %T, want %T", vars, zero), ErrClient)
		}
		return fn(ctx, v)
	}
}

// DataOf returns the data of r as T. The zero value and false are returned
// when there is no data or it has another type.
func DataOf[T any](r Result) (T, bool) {
	t, ok := r.Data.(T)
	return t, ok
}

func as[T any](v any) (T, error) {
	if v == nil {
		var zero T
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, errors.Wrapf(ErrUnexpectedType, "got %T, want %T", v, zero)
	}
	return t, nil
}
