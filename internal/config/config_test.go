package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "0.0.0.0:8080", cfg.GetAddr())
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "ws://localhost:8080/ws", cfg.Client.RelayURL)
	assert.Len(t, cfg.Client.STUNServers, 2)
	assert.Equal(t, 15*time.Second, cfg.Client.NegotiationTimeout)
	assert.Equal(t, 30*time.Second, cfg.Client.JoinTimeout)
	assert.Equal(t, 4, cfg.Game.SessionCodeLength)
	assert.Equal(t, 2*time.Hour, cfg.Game.StaleRoomTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QUIZMESH_RELAY_PORT", "9090")
	t.Setenv("QUIZMESH_RELAY_ENV", "production")
	t.Setenv("QUIZMESH_CLIENT_RELAY_URL", "wss://relay.example.com/ws")
	t.Setenv("QUIZMESH_CLIENT_JOIN_TIMEOUT", "5s")
	t.Setenv("QUIZMESH_GAME_CODE_LENGTH", "6")

	cfg := Load(New())

	assert.Equal(t, "9090", cfg.Relay.Port)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "wss://relay.example.com/ws", cfg.Client.RelayURL)
	assert.Equal(t, 5*time.Second, cfg.Client.JoinTimeout)
	assert.Equal(t, 6, cfg.Game.SessionCodeLength)
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("QUIZMESH_RELAY_PORT", "9090")

	v := New()
	fs := pflag.NewFlagSet("relay", pflag.ContinueOnError)
	fs.String("port", "8080", "")
	fs.Int("code-length", 4, "")
	require.NoError(t, BindFlags(v, fs, map[string]string{
		"port":        KeyRelayPort,
		"code-length": KeyCodeLength,
	}))

	// unchanged flags fall through to env
	assert.Equal(t, "9090", Load(v).Relay.Port)

	require.NoError(t, fs.Parse([]string{"--port", "7070", "--code-length", "5"}))
	cfg := Load(v)
	assert.Equal(t, "7070", cfg.Relay.Port)
	assert.Equal(t, 5, cfg.Game.SessionCodeLength)
}

func TestBindUnknownFlag(t *testing.T) {
	fs := pflag.NewFlagSet("relay", pflag.ContinueOnError)
	err := BindFlags(New(), fs, map[string]string{"missing": KeyRelayPort})
	assert.ErrorContains(t, err, "missing")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"short code", func(c *Config) { c.Game.SessionCodeLength = 2 }},
		{"long code", func(c *Config) { c.Game.SessionCodeLength = 13 }},
		{"negotiation timeout", func(c *Config) { c.Client.NegotiationTimeout = 0 }},
		{"join timeout", func(c *Config) { c.Client.JoinTimeout = -time.Second }},
		{"http relay url", func(c *Config) { c.Client.RelayURL = "http://localhost:8080/ws" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("QUIZMESH_LOG_LEVEL=debug\nQUIZMESH_LOG_FORMAT=text\n"), 0o600))

	// variables already in the environment win over the file
	t.Setenv("QUIZMESH_LOG_FORMAT", "json")
	t.Setenv("QUIZMESH_LOG_LEVEL", "")
	os.Unsetenv("QUIZMESH_LOG_LEVEL")

	LoadDotEnv(path)
	LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"))

	cfg := Load(New())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}
