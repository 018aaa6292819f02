package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValidConfig(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(`
logging:
  level: debug
  format: json
retry:
  maxAttempts: 3
  initialIntervalMs: 20
  maxIntervalMs: 500
  multiplier: 1.5
transport:
  grpc:
    defaultPort: 5000
  quic:
    defaultPort: 5001
    insecureSkipVerify: true
proxy:
  encodingMajor: 2
  encodingMinor: 0
  invocationTimeoutMs: -2
  locatorCacheTimeoutSeconds: 60
  endpointSelection: ordered
`))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5000, cfg.Transport.GRPC.DefaultPort)
	assert.True(t, cfg.Transport.QUIC.InsecureSkipVerify)
	assert.Equal(t, byte(2), cfg.Proxy.EncodingMajor)
	assert.Equal(t, -2, cfg.Proxy.InvocationTimeoutMS)
	assert.Equal(t, 60, cfg.Proxy.LocatorCacheTimeoutSeconds)
	assert.Equal(t, "ordered", cfg.Proxy.EndpointSelection)
}

func TestParseRejectsUnknownProxyField(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`
proxy:
  bogus: true
`))
	require.Error(t, err)
}

func TestParseRejectsUnknownField(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`
logging:
  level: debug
  bogus: true
`))
	require.Error(t, err)
}

func TestParseRejectsInvalidLevel(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`
logging:
  level: verbose
`))
	require.Error(t, err)
}

func TestParseEmptyDocumentUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(``))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
