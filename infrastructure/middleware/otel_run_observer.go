package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-cascade/internal/ports"
)

// tracerName identifies this instrumentation library in exported spans.
const tracerName = "github.com/ahrav/go-cascade/infrastructure/middleware"

// OTelRunObserver implements pipeline run observability using OpenTelemetry
// tracing. It opens one span per run and one child span per aggregation
// stage; span state travels through the callback contexts, so a single
// observer instance serves concurrent runs.
type OTelRunObserver struct {
	tracer trace.Tracer
}

// NewOTelRunObserver creates an observer using the globally configured
// tracer provider.
func NewOTelRunObserver() *OTelRunObserver {
	return &OTelRunObserver{tracer: otel.Tracer(tracerName)}
}

// OnRunStart opens the root span for a pipeline run.
func (o *OTelRunObserver) OnRunStart(ctx context.Context, runID string) context.Context {
	ctx, _ = o.tracer.Start(ctx, "cascade.pipeline.run",
		trace.WithAttributes(attribute.String("cascade.run_id", runID)),
	)
	return ctx
}

// OnStageStart opens a child span for one aggregation stage.
func (o *OTelRunObserver) OnStageStart(ctx context.Context, stage string) context.Context {
	ctx, _ = o.tracer.Start(ctx, "cascade.stage."+stage,
		trace.WithAttributes(attribute.String("cascade.stage", stage)),
	)
	return ctx
}

// OnStageEnd closes the stage span, recording the stage error if any.
func (o *OTelRunObserver) OnStageEnd(ctx context.Context, stage string, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// OnRunEnd closes the run's root span.
func (o *OTelRunObserver) OnRunEnd(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Compile-time verification that OTelRunObserver implements RunObserver.
var _ ports.RunObserver = (*OTelRunObserver)(nil)
