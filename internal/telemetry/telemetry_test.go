package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, "ragd", cfg.ServiceName)
	assert.InDelta(t, 1.0, cfg.SampleRate, 1e-9)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "disabled skips validation", cfg: Config{Enabled: false}, wantErr: false},
		{name: "enabled without endpoint", cfg: Config{Enabled: true, SampleRate: 1.0}, wantErr: true},
		{name: "sample rate out of range", cfg: Config{Enabled: true, Endpoint: "localhost:4317", SampleRate: 1.5}, wantErr: true},
		{name: "valid enabled", cfg: Config{Enabled: true, Endpoint: "localhost:4317", SampleRate: 0.5}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
