package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResource_SetsServiceAttributes(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.ServiceName = "ragbench-test"
	cfg.ServiceVersion = "9.9.9"

	res, err := newResource(cfg)
	require.NoError(t, err)
	require.NotNil(t, res)

	attrs := map[string]string{}
	for _, attr := range res.Attributes() {
		attrs[string(attr.Key)] = attr.Value.AsString()
	}
	assert.Equal(t, cfg.ServiceName, attrs["service.name"])
	assert.Equal(t, cfg.ServiceVersion, attrs["service.version"])
}

func TestStripScheme(t *testing.T) {
	tests := map[string]string{
		"https://collector.example.com:4318": "collector.example.com:4318",
		"http://localhost:4318":               "localhost:4318",
		"localhost:4317":                       "localhost:4317",
	}
	for input, want := range tests {
		assert.Equal(t, want, stripScheme(input))
	}
}

func TestTracerProviderOption_WithNilExporterIsANoOp(t *testing.T) {
	opts := &tracerProviderOptions{}
	assert.Nil(t, opts.exporter)

	WithTraceExporter(nil)(opts)
	assert.Nil(t, opts.exporter)
}

func TestMeterProviderOption_WithNilExporterIsANoOp(t *testing.T) {
	opts := &meterProviderOptions{}
	assert.Nil(t, opts.exporter)

	WithMetricExporter(nil)(opts)
	assert.Nil(t, opts.exporter)
}
