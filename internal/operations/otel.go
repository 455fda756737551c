package operations

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"finset/internal/infrastructure"
)

// StageObserver is notified around a run and each of its steps. The context
// returned by the Started hooks is the one the step executes with.
type StageObserver interface {
	OperationStarted(ctx context.Context, req OperationRequest) context.Context
	OperationFinished(ctx context.Context, operationID string, duration time.Duration, err error)
	StageStarted(ctx context.Context, operationID, stepID string) context.Context
	StageFinished(ctx context.Context, operationID, stepID string, duration time.Duration, err error)
}

// OperationTracer wraps runs and steps in spans and records stage metrics
// on both the otel meter and the prometheus registry
type OperationTracer struct {
	providers *infrastructure.OTelProviders
	metrics   *infrastructure.Metrics
}

// NewOperationTracer creates a tracer; either argument may be nil
func NewOperationTracer(providers *infrastructure.OTelProviders, metrics *infrastructure.Metrics) *OperationTracer {
	return &OperationTracer{providers: providers, metrics: metrics}
}

// OperationStarted opens the run span
func (pt *OperationTracer) OperationStarted(ctx context.Context, req OperationRequest) context.Context {
	ctx, _ = pt.providers.StartSpan(ctx, fmt.Sprintf("pipeline.run.%s", req.Mode),
		attribute.String("run.id", req.ID),
		attribute.String("run.mode", req.Mode),
		attribute.String("run.start_date", req.StartDate),
		attribute.String("run.end_date", req.EndDate),
		attribute.String("run.suffix", req.Suffix),
	)
	return ctx
}

// OperationFinished closes the run span
func (pt *OperationTracer) OperationFinished(ctx context.Context, operationID string, duration time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Float64("run.duration_seconds", duration.Seconds()))
	finishSpan(span, err, "run completed")
}

// StageStarted opens a child span for the step
func (pt *OperationTracer) StageStarted(ctx context.Context, operationID, stepID string) context.Context {
	ctx, _ = pt.providers.StartSpan(ctx, fmt.Sprintf("pipeline.stage.%s", stepID),
		attribute.String("run.id", operationID),
		attribute.String("stage.id", stepID),
	)
	return ctx
}

// StageFinished closes the step span and records its duration
func (pt *OperationTracer) StageFinished(ctx context.Context, operationID, stepID string, duration time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Float64("stage.duration_seconds", duration.Seconds()))
	finishSpan(span, err, "stage completed")

	if pt.providers != nil {
		pt.providers.StageMetrics.RecordStage(ctx, operationID, stepID, duration, err)
	}
	if pt.metrics != nil {
		status := "success"
		if err != nil {
			status = "failure"
		}
		pt.metrics.StageDuration.WithLabelValues(stepID, status).Observe(duration.Seconds())
	}
}

func finishSpan(span trace.Span, err error, okMessage string) {
	if err != nil {
		span.RecordError(err, trace.WithAttributes(attribute.String("error.type", string(GetErrorType(err)))))
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, okMessage)
	}
	span.End()
}
