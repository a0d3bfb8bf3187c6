package models

import (
	"context"

	"github.com/mmdatafocus/salon_backend/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/mmdatafocus/salon_backend/models")

func startSpan(ctx context.Context, name string, businessId string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("business_id", businessId)))
}

// endSpan records err (if any) and ends the span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func validateInput(input any) error {
	if err := utils.ValidateStruct(input); err != nil {
		return newError(ErrInvalidInput, "%s", err.Error())
	}
	return nil
}
