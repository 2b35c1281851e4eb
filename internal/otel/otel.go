package otel

import (
	"context"
	"sync"

	eventbus "github.com/hanpama/fieldplan/internal/eventbus"
	events "github.com/hanpama/fieldplan/internal/events"
	reqid "github.com/hanpama/fieldplan/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	unsubscribe := Subscribe(otel.Tracer("fieldplan"))
	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

// Subscribe turns HTTP, batch and node events into spans on tracer. Node
// spans nest under their batch span by batch id; a batch span nests under the
// HTTP span of its request id.
func Subscribe(tracer trace.Tracer) (unsubscribe func()) {
	s := &subscriber{tracer: tracer}
	return s.register()
}

type nodeKey struct {
	batch uint64
	field string
}

type subscriber struct {
	tracer     trace.Tracer
	httpSpans  sync.Map // rid -> trace.Span
	batchSpans sync.Map // batch id -> trace.Span
	nodeSpans  sync.Map // nodeKey -> trace.Span
}

// spanContext returns ctx carrying the span stored in m under key, if any.
func spanContext(ctx context.Context, m *sync.Map, key any) context.Context {
	if v, ok := m.Load(key); ok {
		return trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	return ctx
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *subscriber) register() func() {
	var subs []func()
	on := func(un func()) { subs = append(subs, un) }

	on(eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
		_, span := s.tracer.Start(ctx, "http.request")
		span.SetAttributes(
			semconv.HTTPMethodKey.String(e.Method),
			attribute.String("http.target", e.Path),
			attribute.String("request.id", e.RequestID),
		)
		s.httpSpans.Store(e.RequestID, span)
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
		v, ok := s.httpSpans.LoadAndDelete(e.RequestID)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
		if e.Status >= 500 {
			span.SetStatus(codes.Error, "")
		}
		span.End()
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.BatchStart) {
		parent := ctx
		if rid, ok := reqid.FromContext(ctx); ok {
			parent = spanContext(ctx, &s.httpSpans, rid)
		}
		_, span := s.tracer.Start(parent, "fieldplan.batch")
		span.SetAttributes(
			attribute.StringSlice("fieldplan.requested", e.Requested),
			attribute.StringSlice("fieldplan.order", e.Order),
			attribute.Int64("fieldplan.batch_id", int64(e.BatchID)),
		)
		s.batchSpans.Store(e.BatchID, span)
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.BatchFinish) {
		v, ok := s.batchSpans.LoadAndDelete(e.BatchID)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			attribute.Int("fieldplan.records", e.Records),
			attribute.Int("fieldplan.dropped", e.Dropped),
		)
		end(span, e.Err)
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.NodeStart) {
		_, span := s.tracer.Start(spanContext(ctx, &s.batchSpans, e.BatchID), "fieldplan.node")
		span.SetAttributes(
			attribute.String("fieldplan.field", e.Field),
			attribute.String("fieldplan.kind", e.Kind),
		)
		s.nodeSpans.Store(nodeKey{e.BatchID, e.Field}, span)
	}))

	on(eventbus.Subscribe(func(ctx context.Context, e events.NodeFinish) {
		v, ok := s.nodeSpans.LoadAndDelete(nodeKey{e.BatchID, e.Field})
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(attribute.Int("fieldplan.records", e.Records))
		if e.Keys > 0 {
			span.SetAttributes(attribute.Int("fieldplan.keys", e.Keys))
		}
		end(span, e.Err)
	}))

	return func() {
		for _, un := range subs {
			un()
		}
	}
}
