package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// GetMeterProvider returns the global meter provider set up by
// InitTelemetry, or the no-op provider when telemetry is disabled.
func GetMeterProvider() metric.MeterProvider { return otel.GetMeterProvider() }

// GetTracerProvider returns the global tracer provider set up by
// InitTelemetry, or the no-op provider when telemetry is disabled.
func GetTracerProvider() trace.TracerProvider { return otel.GetTracerProvider() }
