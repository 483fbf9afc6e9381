package tracker

import (
	"context"
	"sync/atomic"
)

type counterKey struct{}

// CallCounter tallies Jira requests made under one context.
type CallCounter struct {
	n atomic.Int32
}

func (c *CallCounter) Count() int32 {
	if c == nil {
		return 0
	}
	return c.n.Load()
}

// WithCallCounter returns a context whose Jira requests are counted.
func WithCallCounter(ctx context.Context) (context.Context, *CallCounter) {
	c := &CallCounter{}
	return context.WithValue(ctx, counterKey{}, c), c
}

// RecordCall adds one request to the counter carried by ctx, if any.
func RecordCall(ctx context.Context) {
	if c, ok := ctx.Value(counterKey{}).(*CallCounter); ok {
		c.n.Add(1)
	}
}
