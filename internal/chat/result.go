package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
)

var (
	ErrInvalidInput          = errors.New("no message provided")
	ErrInternal              = errors.New("chat pipeline internal error")
	ErrCancelled             = errors.New("chat request cancelled")
	ErrProviderNotConfigured = errors.New("provider is not configured")
)

// Result is what every provider-call wrapper returns: a usable value, plus the
// upstream cause when the value came from a fallback path.
type Result[T any] struct {
	Value T
	Cause error
}

func Ok[T any](value T) Result[T] {
	return Result[T]{Value: value}
}

func Degraded[T any](value T, cause error) Result[T] {
	if cause == nil {
		cause = errors.New("degraded without cause")
	}
	return Result[T]{Value: value, Cause: cause}
}

func (r Result[T]) IsDegraded() bool {
	return r.Cause != nil
}

func notConfigured(name string) error {
	return fmt.Errorf("%s: %w", name, ErrProviderNotConfigured)
}

// guardBranch runs one fan-out branch and turns a panic into ErrInternal so
// it surfaces through errgroup.Wait instead of crashing the process.
func guardBranch(ctx context.Context, branch string, fn func()) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			log.Printf("chat branch panic request_id=%s branch=%s panic=%v", RequestIDFrom(ctx), branch, recovered)
			err = fmt.Errorf("%w: panic in %s", ErrInternal, branch)
		}
	}()
	fn()
	return nil
}

type requestIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
