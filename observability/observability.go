// Package observability provides OpenTelemetry integration for storekit.
//
// It offers tracing and metrics hooks covering uploads, storage backend
// operations, variant generation and configuration reloads. When Init is
// never called the global observer is a no-op, so instrumented code pays
// nothing for an unconfigured system.
//
// Example usage:
//
//	observability.Init(observability.Config{
//	    ServiceName:    "file-service",
//	    ServiceVersion: "1.0.0",
//	    Environment:    "production",
//	    EnableTracing:  true,
//	})
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the configuration for observability initialization
type Config struct {
	// ServiceName is the name of the service for tracing and metrics
	ServiceName string
	// ServiceVersion is the version of the service
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod)
	Environment string
	// EnableTracing enables distributed tracing
	EnableTracing bool
	// EnableMetrics enables metrics collection
	EnableMetrics bool
}

// Observer provides observability hooks for storekit operations
type Observer interface {
	// Upload pipeline
	OnUploadStart(ctx context.Context, fileName string, fileSize int64)
	OnUploadEnd(ctx context.Context, fileName string, fileSize int64, duration time.Duration, success bool)
	OnUploadError(ctx context.Context, fileName string, error string)
	OnVariantGenerated(ctx context.Context, kind string, location string, size int64, duration time.Duration)

	// Storage backends
	OnStorageOperation(ctx context.Context, operation string, storageType string, duration time.Duration, success bool)

	// Provider registry
	OnOptionsReload(ctx context.Context, providerID string, success bool)
}

// Global observer instance
var globalObserver Observer = &noopObserver{}

// Init initializes the observability system with the given configuration
func Init(config Config) error {
	if !config.EnableTracing && !config.EnableMetrics {
		// Nothing enabled, keep the no-op observer
		return nil
	}

	if err := initOpenTelemetry(config); err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	globalObserver = &otelObserver{
		config: config,
		tracer: otel.Tracer("storekit"),
		meter:  otel.Meter("storekit"),
	}
	return nil
}

// SetObserver sets a custom observer for observability events
func SetObserver(observer Observer) {
	globalObserver = observer
}

// GetObserver returns the current observer instance
func GetObserver() Observer {
	return globalObserver
}

// StartSpan starts a new span for tracing
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer("storekit").Start(ctx, name, opts...)
}

// AddSpanEvent adds an event to the current span
func AddSpanEvent(ctx context.Context, name string, attributes map[string]string) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		attrs := make([]attribute.KeyValue, 0, len(attributes))
		for k, v := range attributes {
			attrs = append(attrs, attribute.String(k, v))
		}
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// noopObserver is a no-operation observer that does nothing
type noopObserver struct{}

func (n *noopObserver) OnUploadStart(ctx context.Context, fileName string, fileSize int64) {}
func (n *noopObserver) OnUploadEnd(ctx context.Context, fileName string, fileSize int64, duration time.Duration, success bool) {
}
func (n *noopObserver) OnUploadError(ctx context.Context, fileName string, error string) {}
func (n *noopObserver) OnVariantGenerated(ctx context.Context, kind string, location string, size int64, duration time.Duration) {
}
func (n *noopObserver) OnStorageOperation(ctx context.Context, operation string, storageType string, duration time.Duration, success bool) {
}
func (n *noopObserver) OnOptionsReload(ctx context.Context, providerID string, success bool) {}

// otelObserver implements Observer using OpenTelemetry
type otelObserver struct {
	config Config
	tracer trace.Tracer
	meter  metric.Meter
}

func (o *otelObserver) OnUploadStart(ctx context.Context, fileName string, fileSize int64) {
	_, span := o.tracer.Start(ctx, "upload.start", trace.WithAttributes(
		attribute.String("file.name", fileName),
		attribute.Int64("file.size", fileSize),
	))
	span.End()
}

func (o *otelObserver) OnUploadEnd(ctx context.Context, fileName string, fileSize int64, duration time.Duration, success bool) {
	AddSpanEvent(ctx, "upload.completed", map[string]string{
		"file.name":   fileName,
		"file.size":   fmt.Sprintf("%d", fileSize),
		"success":     fmt.Sprintf("%t", success),
		"duration.ms": fmt.Sprintf("%.2f", float64(duration.Microseconds())/1000.0),
	})
}

func (o *otelObserver) OnUploadError(ctx context.Context, fileName string, error string) {
	AddSpanEvent(ctx, "upload.error", map[string]string{
		"file.name": fileName,
		"error":     error,
	})
}

func (o *otelObserver) OnVariantGenerated(ctx context.Context, kind string, location string, size int64, duration time.Duration) {
	AddSpanEvent(ctx, "upload.variant.generated", map[string]string{
		"variant.kind":     kind,
		"variant.location": location,
		"variant.size":     fmt.Sprintf("%d", size),
		"duration.ms":      fmt.Sprintf("%.2f", float64(duration.Microseconds())/1000.0),
	})
}

func (o *otelObserver) OnStorageOperation(ctx context.Context, operation string, storageType string, duration time.Duration, success bool) {
	AddSpanEvent(ctx, "storage.operation", map[string]string{
		"operation":    operation,
		"storage.type": storageType,
		"success":      fmt.Sprintf("%t", success),
		"duration.ms":  fmt.Sprintf("%.2f", float64(duration.Microseconds())/1000.0),
	})
}

func (o *otelObserver) OnOptionsReload(ctx context.Context, providerID string, success bool) {
	AddSpanEvent(ctx, "provider.options.reloaded", map[string]string{
		"provider.id": providerID,
		"success":     fmt.Sprintf("%t", success),
	})
}

// initOpenTelemetry initializes OpenTelemetry with the given configuration
func initOpenTelemetry(config Config) error {
	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %v", err)
	}

	// Providers are created without exporters; deployments configure
	// exporters through the standard OTEL environment variables or by
	// replacing the global providers before Init.
	if config.EnableTracing {
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	if config.EnableMetrics {
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
	}

	return nil
}
