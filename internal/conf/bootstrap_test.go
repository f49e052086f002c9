package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes a temporary YAML config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validConfig = `
region:
  name: us-east
  peers:
    - name: us-east
      api_url: http://us-east.internal:8080
      primary: true
    - name: eu-west
      api_url: http://eu-west.internal:8080
`

func TestNewBootstrap_Defaults(t *testing.T) {
	path := writeConfig(t, validConfig)

	bc, err := NewBootstrap(path)
	require.NoError(t, err)

	assert.Equal(t, "us-east", bc.Region.Name)
	assert.Len(t, bc.Region.Peers, 2)
	assert.True(t, bc.Region.Peers[0].Primary)

	// Coordinator timing defaults
	assert.Equal(t, 10*time.Second, bc.Region.HeartbeatInterval.AsDuration())
	assert.Equal(t, 30*time.Second, bc.Region.HeartbeatTTL.AsDuration())
	assert.Equal(t, 30*time.Second, bc.Region.HealthCheckInterval.AsDuration())
	assert.Equal(t, 5*time.Second, bc.Region.ProbeTimeout.AsDuration())
	assert.Equal(t, 60*time.Second, bc.Region.FreshnessBound.AsDuration())

	// Rate limit defaults
	assert.Equal(t, int32(100), bc.RateLimit.Api.Points)
	assert.Equal(t, time.Minute, bc.RateLimit.Api.Window.AsDuration())
	assert.Equal(t, int32(5), bc.RateLimit.Auth.Points)
	assert.Equal(t, 15*time.Minute, bc.RateLimit.Auth.BlockDuration.AsDuration())

	// Breaker defaults
	assert.Equal(t, int32(5), bc.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, bc.Breaker.ResetTimeout.AsDuration())

	// Server and log defaults
	assert.Equal(t, ":8080", bc.Server.Http.Addr)
	assert.Equal(t, "info", bc.Log.Level)
	assert.Equal(t, "json", bc.Log.Format)
}

func TestNewBootstrap_Overrides(t *testing.T) {
	path := writeConfig(t, validConfig+`
server:
  http:
    addr: ":9090"
rate_limit:
  api:
    points: 10
    window: 30s
region:
  heartbeat_interval: 2s
log:
  level: debug
`)

	bc, err := NewBootstrap(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", bc.Server.Http.Addr)
	assert.Equal(t, int32(10), bc.RateLimit.Api.Points)
	assert.Equal(t, 30*time.Second, bc.RateLimit.Api.Window.AsDuration())
	assert.Equal(t, 2*time.Second, bc.Region.HeartbeatInterval.AsDuration())
	assert.Equal(t, "debug", bc.Log.Level)
}

func TestNewBootstrap_MissingRegionName(t *testing.T) {
	path := writeConfig(t, `
region:
  peers:
    - name: us-east
      api_url: http://us-east.internal:8080
      primary: true
`)

	_, err := NewBootstrap(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region.name")
}

func TestNewBootstrap_MissingPeers(t *testing.T) {
	path := writeConfig(t, `
region:
  name: us-east
`)

	_, err := NewBootstrap(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region.peers")
}

func TestNewBootstrap_SelfNotInPeers(t *testing.T) {
	path := writeConfig(t, `
region:
  name: ap-south
  peers:
    - name: us-east
      api_url: http://us-east.internal:8080
      primary: true
`)

	_, err := NewBootstrap(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not listed in region.peers")
}

func TestNewBootstrap_PrimaryInvariant(t *testing.T) {
	// No primary at all
	path := writeConfig(t, `
region:
  name: us-east
  peers:
    - name: us-east
      api_url: http://us-east.internal:8080
    - name: eu-west
      api_url: http://eu-west.internal:8080
`)
	_, err := NewBootstrap(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one primary")

	// Two primaries
	path = writeConfig(t, `
region:
  name: us-east
  peers:
    - name: us-east
      api_url: http://us-east.internal:8080
      primary: true
    - name: eu-west
      api_url: http://eu-west.internal:8080
      primary: true
`)
	_, err = NewBootstrap(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one primary")
}

func TestNewBootstrap_EnvOverride(t *testing.T) {
	t.Setenv("MERIDIAN_LOG_LEVEL", "warn")

	path := writeConfig(t, validConfig)
	bc, err := NewBootstrap(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", bc.Log.Level)
}

func TestNewBootstrap_MissingFile(t *testing.T) {
	_, err := NewBootstrap("/nonexistent/config.yaml")
	require.Error(t, err)
}
