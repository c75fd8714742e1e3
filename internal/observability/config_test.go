package observability

import (
	"testing"

	"github.com/smallbiznis/receiptpoints/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigMapsServiceConfig(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:     " ",
		AppVersion:  "1.2.3",
		Environment: "production",
		Observability: config.ObservabilityConfig{
			LogLevel:          "warn",
			LogFormat:         "json",
			OtelEnabled:       true,
			OtelEndpoint:      "collector:4317",
			OtelProtocol:      "grpc",
			OtelSamplingRatio: 0.5,
		},
	})

	assert.Equal(t, "receipts", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.Equal(t, 0.5, cfg.OtelSamplingRatio)
	assert.True(t, cfg.OtelEnabled)
	assert.False(t, cfg.Debug())
}

func TestDebug(t *testing.T) {
	assert.True(t, Config{LogLevel: "DEBUG", Environment: "production"}.Debug())
	assert.True(t, Config{LogLevel: "info", Environment: "local"}.Debug())
	assert.False(t, Config{LogLevel: "info", Environment: "staging"}.Debug())
}
