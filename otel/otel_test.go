package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/MyCarrier-DevOps/ghaccess/logger/loggertest"
)

func clearOtelEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{OtelEndpointEnv, OtelSdkDisabledEnv, OtelHostIPEnv, OtelHostPortEnv} {
		t.Setenv(k, "")
	}
}

func TestEndpointFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		expected string
	}{
		{name: "unset", env: nil, expected: ""},
		{name: "endpoint with scheme", env: map[string]string{OtelEndpointEnv: "https://collector:4318/"}, expected: "https://collector:4318"},
		{name: "endpoint without scheme", env: map[string]string{OtelEndpointEnv: "collector:4318"}, expected: "http://collector:4318"},
		{name: "host ip and port", env: map[string]string{OtelHostIPEnv: "10.0.0.5", OtelHostPortEnv: "4318"}, expected: "http://10.0.0.5:4318"},
		{name: "host ip already has port", env: map[string]string{OtelHostIPEnv: "10.0.0.5:4319", OtelHostPortEnv: "4318"}, expected: "http://10.0.0.5:4319"},
		{name: "host ip wins", env: map[string]string{OtelHostIPEnv: "10.0.0.5", OtelEndpointEnv: "collector:4318"}, expected: "http://10.0.0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearOtelEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.expected, EndpointFromEnv())
		})
	}
}

func TestSplitEndpoint(t *testing.T) {
	hostPort, secure := splitEndpoint("https://collector:4318")
	assert.Equal(t, "collector:4318", hostPort)
	assert.True(t, secure)

	hostPort, secure = splitEndpoint("http://collector:4318")
	assert.Equal(t, "collector:4318", hostPort)
	assert.False(t, secure)
}

func TestInitTracing_Disabled(t *testing.T) {
	clearOtelEnv(t)
	t.Setenv(OtelSdkDisabledEnv, "TRUE")
	t.Setenv(OtelEndpointEnv, "collector:4318")
	before := otel.GetTracerProvider()

	shutdown, err := InitTracing(context.Background(), "ghaccess", "test", nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestInitTracing_NoEndpoint(t *testing.T) {
	clearOtelEnv(t)
	log := loggertest.NewMockLogger()

	shutdown, err := InitTracing(context.Background(), "ghaccess", "test", log)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.True(t, log.HasLog("debug", "No OTLP endpoint configured"))
}

func TestInitTracing_InstallsProvider(t *testing.T) {
	clearOtelEnv(t)
	t.Setenv(OtelEndpointEnv, "127.0.0.1:4318")
	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	shutdown, err := InitTracing(context.Background(), "ghaccess", "test", nil)
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewResource(t *testing.T) {
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES_POD_NAME", "agent-0")

	res := newResource("ghaccess", "1.2.3")
	attrs := map[attribute.Key]string{}
	for _, kv := range res.Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	assert.Equal(t, "ghaccess", attrs["service.name"])
	assert.Equal(t, "1.2.3", attrs["service.version"])
	assert.Equal(t, "agent-0", attrs["k8s.pod.name"])
}
