package cmd

import (
	"testing"
	"time"

	"github.com/MeKo-Tech/platex/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerConfig_Defaults(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ModelsDir = "/srv/models"

	sc, err := serverConfig(&cfg, newServeCommand(&app{}))
	require.NoError(t, err)
	assert.Equal(t, "localhost", sc.Host)
	assert.Equal(t, 8080, sc.Port)
	assert.Equal(t, int64(50), sc.MaxUploadMB)
	assert.Equal(t, 10*time.Second, sc.ShutdownTimeout)
	assert.Equal(t, "/srv/models", sc.ModelsDir)
	assert.Nil(t, sc.RateLimit)
}

func TestServerConfig_FlagOverrides(t *testing.T) {
	cfg := config.DefaultConfig()
	cmd := newServeCommand(&app{})
	require.NoError(t, cmd.ParseFlags([]string{
		"--host", "0.0.0.0", "-p", "9090", "--cors-origin", "https://example.org",
		"--max-upload-size", "5", "--timeout", "3", "--shutdown-timeout", "1",
		"--rate-limit-enabled", "--requests-per-minute", "10", "--max-data-per-day", "1024",
	}))

	sc, err := serverConfig(&cfg, cmd)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", sc.Host)
	assert.Equal(t, 9090, sc.Port)
	assert.Equal(t, "https://example.org", sc.CORSOrigin)
	assert.Equal(t, int64(5), sc.MaxUploadMB)
	assert.Equal(t, 3, sc.TimeoutSec)
	assert.Equal(t, time.Second, sc.ShutdownTimeout)
	require.NotNil(t, sc.RateLimit)
	assert.Equal(t, 10, sc.RateLimit.RequestsPerMinute)
	assert.Equal(t, 1000, sc.RateLimit.RequestsPerHour)
	assert.Equal(t, int64(1024), sc.RateLimit.MaxDataPerDay)
}

func TestServerConfig_InvalidPort(t *testing.T) {
	cfg := config.DefaultConfig()
	cmd := newServeCommand(&app{})
	require.NoError(t, cmd.ParseFlags([]string{"--port", "70000"}))
	_, err := serverConfig(&cfg, cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port number")

	_, _, err = runCLI(t, "serve", "--port", "0")
	require.Error(t, err)
}
