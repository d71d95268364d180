package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartWorkflowSpan starts a span for one ReportBrief workflow step, such as
// "upload" or "summarize".
func StartWorkflowSpan(ctx context.Context, workflow, userID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "workflow."+workflow,
		trace.WithAttributes(
			attribute.String("workflow.name", workflow),
			attribute.String("user.id", userID),
		),
	)
}

// StartSummarizerSpan starts a client span around an external summarizer call.
func StartSummarizerSpan(ctx context.Context, backend, model string, rows int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "summarizer."+backend,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("summarizer.backend", backend),
			attribute.String("summarizer.model", model),
			attribute.Int("summarizer.rows", rows),
		),
	)
}

// InjectHeaders writes the current trace context into req's headers.
func InjectHeaders(ctx context.Context, req *http.Request) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

// SetReportAttributes tags the current span with the report being processed.
func SetReportAttributes(ctx context.Context, reportID, status string) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("report.id", reportID),
		attribute.String("report.status", status),
	)
}

// SetSummaryAttributes tags the current span with the summarizer result.
func SetSummaryAttributes(ctx context.Context, summaryID, model string, tokens int) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("summary.id", summaryID),
		attribute.String("summary.model", model),
		attribute.Int("summary.tokens_used", tokens),
	)
}

// RecordError records err on the current span and marks it failed.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
