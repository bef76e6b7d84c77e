package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ideabank/internal/config"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults valid", func(c *Config) {}, ""},
		{"disabled skips checks", func(c *Config) {
			c.Enabled = false
			c.Endpoint = ""
		}, ""},
		{"missing endpoint", func(c *Config) {
			c.Enabled = true
			c.Endpoint = ""
		}, "endpoint is required"},
		{"missing service name", func(c *Config) {
			c.Enabled = true
			c.ServiceName = ""
		}, "service_name is required"},
		{"insecure remote endpoint", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "collector.example.com:4317"
		}, "not allowed"},
		{"sample rate out of range", func(c *Config) {
			c.Enabled = true
			c.SampleRate = 1.5
		}, "sample rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestNew_DisabledIsNoop(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = false

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, tel.Degraded())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestFromObservability(t *testing.T) {
	cfg := FromObservability(config.ObservabilityConfig{
		EnableTelemetry: true,
		ServiceName:     "ideabank-test",
		OTLPEndpoint:    "localhost:4317",
	})

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "ideabank-test", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	require.NoError(t, cfg.Validate())
}

func TestIsLocalEndpoint(t *testing.T) {
	assert.True(t, isLocalEndpoint("localhost:4317"))
	assert.True(t, isLocalEndpoint("127.0.0.1:4317"))
	assert.False(t, isLocalEndpoint("collector.example.com:4317"))
}
