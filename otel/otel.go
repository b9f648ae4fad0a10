// Package otel installs the OpenTelemetry tracer provider that receives the GitHub client's
// request spans. Export is OTLP over HTTP and is configured entirely from the environment.
package otel

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"

	"github.com/MyCarrier-DevOps/ghaccess/logger"
)

// OTel environment variables for configuration
const (
	OtelEndpointEnv    = "OTEL_EXPORTER_OTLP_ENDPOINT"
	OtelSdkDisabledEnv = "OTEL_SDK_DISABLED"
	OtelHostIPEnv      = "OTEL_HOST_IP"
	OtelHostPortEnv    = "OTEL_HOST_PORT"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// InitTracing installs a global batching tracer provider exporting to the configured OTLP
// endpoint. With the SDK disabled or no endpoint set, the global no-op provider stays in place
// and the returned ShutdownFunc does nothing.
func InitTracing(ctx context.Context, serviceName, serviceVersion string, log logger.Logger) (ShutdownFunc, error) {
	log = logger.OrNop(log)

	if strings.ToLower(os.Getenv(OtelSdkDisabledEnv)) == "true" {
		log.Debug(ctx, "OpenTelemetry SDK is disabled, skipping initialization", nil)
		return noopShutdown, nil
	}

	endpoint := EndpointFromEnv()
	if endpoint == "" {
		log.Debug(ctx, "No OTLP endpoint configured, spans are not exported", nil)
		return noopShutdown, nil
	}

	exporter, err := newTraceExporter(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource(serviceName, serviceVersion)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	log.Info(ctx, "OpenTelemetry tracing initialized", map[string]interface{}{"endpoint": endpoint})
	return tp.Shutdown, nil
}

// EndpointFromEnv returns the OTLP endpoint. OTEL_HOST_IP (with OTEL_HOST_PORT) takes precedence
// over OTEL_EXPORTER_OTLP_ENDPOINT, as on a node-local collector.
func EndpointFromEnv() string {
	if hostIP := os.Getenv(OtelHostIPEnv); hostIP != "" {
		endpoint := hostIP
		if port := os.Getenv(OtelHostPortEnv); port != "" && !strings.Contains(hostIP, ":") {
			endpoint = hostIP + ":" + port
		}
		return formatEndpoint(endpoint)
	}
	return formatEndpoint(os.Getenv(OtelEndpointEnv))
}

func formatEndpoint(endpoint string) string {
	endpoint = strings.TrimSuffix(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return ""
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}
	return endpoint
}

// splitEndpoint returns the host:port the exporter dials and whether TLS is used.
func splitEndpoint(endpoint string) (string, bool) {
	if hostPort, ok := strings.CutPrefix(endpoint, "https://"); ok {
		return hostPort, true
	}
	return strings.TrimPrefix(endpoint, "http://"), false
}

func newTraceExporter(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error) {
	hostPort, secure := splitEndpoint(endpoint)
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(hostPort)}
	if !secure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}
	return exporter, nil
}

func newResource(serviceName, serviceVersion string) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
		attribute.String("service.instance.id", fmt.Sprintf("%s-%d", serviceName, time.Now().Unix())),
	}
	attrs = append(attrs, kubernetesAttributes()...)

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		// Schema URL conflicts with the SDK default resource.
		return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
	}
	return res
}

func kubernetesAttributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for env, key := range map[string]string{
		"OTEL_RESOURCE_ATTRIBUTES_NODE_NAME":     "k8s.node.name",
		"OTEL_RESOURCE_ATTRIBUTES_POD_NAME":      "k8s.pod.name",
		"OTEL_RESOURCE_ATTRIBUTES_POD_NAMESPACE": "k8s.namespace.name",
		"OTEL_RESOURCE_ATTRIBUTES_POD_UID":       "k8s.pod.uid",
	} {
		if v := os.Getenv(env); v != "" {
			attrs = append(attrs, attribute.String(key, v))
		}
	}
	return attrs
}
