package observability

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/dshills/litreview/internal/config"
)

// TracerName is the instrumentation scope used for workflow spans.
const TracerName = "github.com/dshills/litreview"

// Tracing owns the tracer provider and its exporter output.
type Tracing struct {
	provider trace.TracerProvider
	sdk      *sdktrace.TracerProvider
	closer   io.Closer
}

// NewTracing builds a tracer provider from cfg and installs it as the
// global provider. When tracing is disabled a no-op provider is returned.
func NewTracing(cfg config.TracingConfig) (*Tracing, error) {
	if !cfg.Enabled {
		return &Tracing{provider: noop.NewTracerProvider()}, nil
	}

	out, closer, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
		)),
	)
	otel.SetTracerProvider(tp)

	return &Tracing{provider: tp, sdk: tp, closer: closer}, nil
}

// Tracer returns the workflow tracer.
func (t *Tracing) Tracer() trace.Tracer {
	return t.provider.Tracer(TracerName)
}

// Enabled reports whether spans are exported.
func (t *Tracing) Enabled() bool {
	return t.sdk != nil
}

// Shutdown flushes pending spans and closes the exporter output.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t.sdk == nil {
		return nil
	}
	err := t.sdk.Shutdown(ctx)
	if t.closer != nil {
		if cerr := t.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
