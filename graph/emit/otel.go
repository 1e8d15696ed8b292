package emit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns events into OpenTelemetry spans.
//
// Each event becomes a short span named after Event.Msg, carrying the run,
// step and node as attributes. Well-known meta keys are mapped into the
// litreview.* namespace; an "error" key marks the span as failed.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an emitter that records spans with tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit implements Emitter.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	defer span.End()

	span.SetAttributes(
		attribute.String("litreview.run_id", event.RunID),
		attribute.Int("litreview.step", event.Step),
		attribute.String("litreview.node_id", event.NodeID),
	)

	for key, value := range event.Meta {
		if key == "error" {
			continue
		}
		span.SetAttributes(toAttribute(attributeKey(key), value))
	}

	if raw, ok := event.Meta["error"]; ok && raw != nil {
		msg := fmt.Sprintf("%v", raw)
		span.SetStatus(codes.Error, msg)
		span.RecordError(fmt.Errorf("%s", msg))
	}
}

// Flush forces the global tracer provider to export buffered spans, if it
// supports flushing.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := otel.GetTracerProvider().(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

func attributeKey(key string) string {
	switch key {
	case "tokens_in":
		return "litreview.llm.tokens_in"
	case "tokens_out":
		return "litreview.llm.tokens_out"
	case "cost_usd":
		return "litreview.llm.cost_usd"
	case "model":
		return "litreview.llm.model"
	case "latency_ms":
		return "litreview.node.latency_ms"
	case "paper_id":
		return "litreview.paper_id"
	}
	return key
}

func toAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case time.Duration:
		return attribute.Int64(key, int64(v/time.Millisecond))
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
