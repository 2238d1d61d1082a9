package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
environment: test
engine:
  symbols: [AAPL, MSFT]
`

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "MSFT"}, c.Engine.Symbols)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "paper", c.Broker.Mode)
	assert.Equal(t, 195, c.Broker.RateLimit.Limit)
	assert.Equal(t, time.Minute, c.Broker.RateLimit.Window)
	assert.Equal(t, 30*time.Second, c.Engine.ScanInterval)
	assert.Equal(t, 3, c.Risk.MaxConcurrentPositions)
}

func TestLoadRejectsMissingSymbols(t *testing.T) {
	_, err := Load(writeConfig(t, "environment: test\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbols")
}

func TestLoadRejectsRestModeWithoutCredentials(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: test
engine:
  symbols: [AAPL]
broker:
  mode: rest
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("SYMBOLS", "TSLA,NVDA")
	t.Setenv("BROKER_API_KEY", "key-from-env")

	c, err := LoadWithEnv(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, []string{"TSLA", "NVDA"}, c.Engine.Symbols)
	assert.Equal(t, "key-from-env", c.Broker.APIKey)
}
