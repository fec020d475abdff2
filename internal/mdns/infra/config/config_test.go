package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 1440, cfg.UDPPayloadSize)
	require.EqualValues(t, 1000, cfg.CacheSize)
	require.Empty(t, cfg.Interfaces)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RRMDNS_ENV", "dev")
	t.Setenv("RRMDNS_LOG_LEVEL", "debug")
	t.Setenv("RRMDNS_UDP_PAYLOAD_SIZE", "9000")
	t.Setenv("RRMDNS_INSTANCE", "My Printer")
	t.Setenv("RRMDNS_SERVICE", "_ipp._tcp")
	t.Setenv("RRMDNS_PORT", "631")
	t.Setenv("RRMDNS_HOSTNAME", "printer")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 9000, cfg.UDPPayloadSize)
	require.Equal(t, "My Printer", cfg.Instance)
	require.Equal(t, "_ipp._tcp", cfg.Service)
	require.Equal(t, 631, cfg.Port)
	require.Equal(t, "printer", cfg.Hostname)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"invalid env", "RRMDNS_ENV", "staging"},
		{"invalid log level", "RRMDNS_LOG_LEVEL", "trace"},
		{"payload size too small", "RRMDNS_UDP_PAYLOAD_SIZE", "100"},
		{"payload size too large", "RRMDNS_UDP_PAYLOAD_SIZE", "65000"},
		{"service without underscore", "RRMDNS_SERVICE", "http._tcp"},
		{"port out of range", "RRMDNS_PORT", "70000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}
