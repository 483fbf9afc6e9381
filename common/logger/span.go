package logger

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "trackersync"

// Span is a started OTel span. The zero value is a no-op.
type Span struct {
	span trace.Span
}

// StartTaskSpan starts a span for work that crossed a process boundary, such
// as a task read from a Redis stream. When traceID is a valid hex trace id
// the span joins that trace as a child of a remote parent, so the admission
// request and the task that processed it show up together. Otherwise a new
// root span is started.
//
//	ctx, span := logger.StartTaskSpan(ctx, msg.TraceID, "worker.process_task")
//	defer span.End()
func StartTaskSpan(ctx context.Context, traceID *string, name string, opts ...trace.SpanStartOption) (context.Context, *Span) {
	if remote, ok := remoteParent(traceID); ok {
		opts = append(opts, trace.WithLinks(trace.Link{SpanContext: remote}))
		ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, opts...)
	return ctx, &Span{span: span}
}

func remoteParent(traceID *string) (trace.SpanContext, bool) {
	if traceID == nil || *traceID == "" {
		return trace.SpanContext{}, false
	}
	id, err := trace.TraceIDFromHex(*traceID)
	if err != nil {
		return trace.SpanContext{}, false
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    id,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}), true
}

// TraceID returns the hex trace id of the span in ctx, or "" when ctx
// carries no valid span.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

func (s *Span) End() {
	if s != nil && s.span != nil {
		s.span.End()
	}
}

// Fail records err on the span and marks it as errored.
func (s *Span) Fail(err error) {
	if s == nil || s.span == nil || err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}
