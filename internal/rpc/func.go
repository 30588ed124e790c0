package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/tendant/wirekit/internal/errors"
)

// Fn0 adapts a function without arguments.
func Fn0[R any](f func(context.Context) (R, error)) Func {
	return func(ctx context.Context, args []json.RawMessage) (any, error) {
		return f(ctx)
	}
}

// Fn1 adapts a one-argument function. Missing arguments decode as zero values.
func Fn1[A, R any](f func(context.Context, A) (R, error)) Func {
	return func(ctx context.Context, args []json.RawMessage) (any, error) {
		a, err := arg[A](args, 0)
		if err != nil {
			return nil, err
		}
		return f(ctx, a)
	}
}

// Fn2 adapts a two-argument function.
func Fn2[A, B, R any](f func(context.Context, A, B) (R, error)) Func {
	return func(ctx context.Context, args []json.RawMessage) (any, error) {
		a, err := arg[A](args, 0)
		if err != nil {
			return nil, err
		}
		b, err := arg[B](args, 1)
		if err != nil {
			return nil, err
		}
		return f(ctx, a, b)
	}
}

// Fn3 adapts a three-argument function.
func Fn3[A, B, C, R any](f func(context.Context, A, B, C) (R, error)) Func {
	return func(ctx context.Context, args []json.RawMessage) (any, error) {
		a, err := arg[A](args, 0)
		if err != nil {
			return nil, err
		}
		b, err := arg[B](args, 1)
		if err != nil {
			return nil, err
		}
		c, err := arg[C](args, 2)
		if err != nil {
			return nil, err
		}
		return f(ctx, a, b, c)
	}
}

var jsonNull = []byte("null")

func arg[T any](args []json.RawMessage, i int) (T, error) {
	var v T
	if i >= len(args) || len(args[i]) == 0 || bytes.Equal(bytes.TrimSpace(args[i]), jsonNull) {
		return v, nil
	}
	if err := json.Unmarshal(args[i], &v); err != nil {
		return v, apperrors.InvalidInput(fmt.Sprintf("argument %d: %v", i, err))
	}
	return v, nil
}

func marshalArgs(args []any) ([]json.RawMessage, error) {
	raw := make([]json.RawMessage, len(args))
	for i, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("encoding argument %d: %w", i, err)
		}
		raw[i] = data
	}
	return raw, nil
}
