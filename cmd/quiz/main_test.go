package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizmesh/internal/config"
)

func TestFlagDefaultsMatchConfig(t *testing.T) {
	cfg := config.Default()
	fs := newCmd().PersistentFlags()

	relayURL, err := fs.GetString("relay-url")
	require.NoError(t, err)
	assert.Equal(t, cfg.Client.RelayURL, relayURL)

	stun, err := fs.GetStringSlice("stun")
	require.NoError(t, err)
	assert.Equal(t, cfg.Client.STUNServers, stun)
	assert.Len(t, stun, 2)

	negotiation, err := fs.GetDuration("negotiation-timeout")
	require.NoError(t, err)
	assert.Equal(t, cfg.Client.NegotiationTimeout, negotiation)

	join, err := fs.GetDuration("join-timeout")
	require.NoError(t, err)
	assert.Equal(t, cfg.Client.JoinTimeout, join)

	codeLength, err := fs.GetInt("code-length")
	require.NoError(t, err)
	assert.Equal(t, cfg.Game.SessionCodeLength, codeLength)

	level, err := fs.GetString("log-level")
	require.NoError(t, err)
	assert.Equal(t, "info", level)
	assert.Equal(t, cfg.Logging.Level, level)

	format, err := fs.GetString("log-format")
	require.NoError(t, err)
	assert.Equal(t, cfg.Logging.Format, format)
}
