// OpenTelemetry tracing helpers for task flows. Spans follow a task from
// submission through computation; trace context rides the task-info map so
// a span started at the client links to the span opened by a worker in
// another process.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps OpenTelemetry tracing with task-flow helpers.
type Tracer struct {
	tracer trace.Tracer
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer. Before InitProvider runs, the
// returned tracer produces no-op spans.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return &Tracer{tracer: otel.Tracer("steerkit")}
	}
	return globalTracer
}

// NewTracer creates a new tracer with the given instrumentation name.
func NewTracer(name string) *Tracer {
	return &Tracer{
		tracer: otel.Tracer(name),
	}
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// StartSubmitSpan starts a producer span around a task submission.
func (t *Tracer) StartSubmitSpan(ctx context.Context, method, topic string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "task.submit", trace.WithSpanKind(trace.SpanKindProducer))
	span.SetAttributes(
		attribute.String("task.method", method),
		attribute.String("task.topic", topic),
	)
	return ctx, span
}

// StartComputeSpan starts a consumer span around task execution on a worker.
func (t *Tracer) StartComputeSpan(ctx context.Context, method, topic string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "task.compute", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("task.method", method),
		attribute.String("task.topic", topic),
	)
	return ctx, span
}

// StartAgentSpan starts a span covering one agent goroutine of a run.
func (t *Tracer) StartAgentSpan(ctx context.Context, controller, agent string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "agent."+agent, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("controller.name", controller),
		attribute.String("agent.name", agent),
	)
	return ctx, span
}

// EndSpan records the error status, if any, and ends the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// --- Context Propagation ---

// InjectTaskInfo writes the current trace context into a task-info map so
// it survives the trip through a queue.
func InjectTaskInfo(ctx context.Context, info map[string]any) {
	otel.GetTextMapPropagator().Inject(ctx, taskInfoCarrier(info))
}

// ExtractTaskInfo reads trace context out of a task-info map.
func ExtractTaskInfo(ctx context.Context, info map[string]any) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, taskInfoCarrier(info))
}

// taskInfoCarrier adapts a task-info map to the propagation carrier
// interface. Non-string values are invisible to the propagator.
type taskInfoCarrier map[string]any

func (c taskInfoCarrier) Get(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

func (c taskInfoCarrier) Set(key, value string) {
	c[key] = value
}

func (c taskInfoCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
