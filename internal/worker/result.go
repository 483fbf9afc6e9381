package worker

import (
	"context"

	"basegraph.app/trackersync/internal/queue"
)

type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRetryable Outcome = "retryable"
	OutcomePermanent Outcome = "permanent"
)

// Result is what a task body returns instead of signalling retry through
// panics or sentinel errors. The worker alone decides retry vs. terminal.
type Result struct {
	Outcome Outcome
	Err     error
}

func Success() Result {
	return Result{Outcome: OutcomeSuccess}
}

func Retryable(err error) Result {
	return Result{Outcome: OutcomeRetryable, Err: err}
}

func Permanent(err error) Result {
	return Result{Outcome: OutcomePermanent, Err: err}
}

func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

type Handler interface {
	Handle(ctx context.Context, msg queue.Message) Result
}

type HandlerFunc func(ctx context.Context, msg queue.Message) Result

func (f HandlerFunc) Handle(ctx context.Context, msg queue.Message) Result {
	return f(ctx, msg)
}
