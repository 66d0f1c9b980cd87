// Package timeout races an operation against a deadline.
package timeout

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is matched by every *Error via errors.Is.
var ErrTimeout = errors.New("timeout")

// Error is returned by Run when the deadline wins. Message is caller-supplied.
type Error struct {
	Message string
	After   time.Duration
}

func (e *Error) Error() string {
	if e.Message == "" {
		return "operation timed out after " + e.After.String()
	}
	return e.Message
}

// Is reports whether target is ErrTimeout or context.DeadlineExceeded.
func (e *Error) Is(target error) bool {
	return target == ErrTimeout || target == context.DeadlineExceeded
}

type outcome[T any] struct {
	val T
	err error
}

// Run executes op and returns its result if it finishes within d. Otherwise it returns an
// *Error carrying message. op receives a context that is cancelled when the deadline
// passes; an op that ignores it keeps running in the background and its result is dropped.
// A non-positive d runs op inline with ctx.
func Run[T any](ctx context.Context, d time.Duration, message string, op func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return op(ctx)
	}

	opCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	// Buffered so the op goroutine can always deliver and exit, even after we stop waiting.
	done := make(chan outcome[T], 1)
	go func() {
		v, err := op(opCtx)
		done <- outcome[T]{val: v, err: err}
	}()

	var zero T
	select {
	case out := <-done:
		return out.val, out.err
	case <-opCtx.Done():
		if ctx.Err() != nil {
			// Caller gave up first; that is not our deadline.
			return zero, ctx.Err()
		}
		return zero, &Error{Message: message, After: d}
	}
}
