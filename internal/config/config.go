package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable (QUIZMESH_RELAY_PORT, ...)
const EnvPrefix = "QUIZMESH"

// Config holds all application configuration
type Config struct {
	Relay   RelayConfig
	Client  ClientConfig
	Game    GameConfig
	Logging LoggingConfig
}

// RelayConfig holds signaling relay server configuration
type RelayConfig struct {
	Port string
	Host string
	Env  string // "development" or "production"
}

// ClientConfig holds peer-side connection configuration
type ClientConfig struct {
	RelayURL           string
	STUNServers        []string
	NegotiationTimeout time.Duration
	JoinTimeout        time.Duration
}

// GameConfig holds game-related configuration
type GameConfig struct {
	SessionCodeLength int
	StaleRoomTimeout  time.Duration
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// Keys shared by flags, env and defaults
const (
	KeyRelayHost          = "relay.host"
	KeyRelayPort          = "relay.port"
	KeyRelayEnv           = "relay.env"
	KeyRelayURL           = "client.relay-url"
	KeySTUNServers        = "client.stun-servers"
	KeyNegotiationTimeout = "client.negotiation-timeout"
	KeyJoinTimeout        = "client.join-timeout"
	KeyCodeLength         = "game.code-length"
	KeyStaleRoomTimeout   = "game.stale-room-timeout"
	KeyLogLevel           = "log.level"
	KeyLogFormat          = "log.format"
)

// New returns a viper instance with defaults and env bindings applied.
// QUIZMESH_CLIENT_RELAY_URL maps to client.relay-url, and so on.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyRelayHost, "0.0.0.0")
	v.SetDefault(KeyRelayPort, "8080")
	v.SetDefault(KeyRelayEnv, "development")
	v.SetDefault(KeyRelayURL, "ws://localhost:8080/ws")
	v.SetDefault(KeySTUNServers, []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"})
	v.SetDefault(KeyNegotiationTimeout, 15*time.Second)
	v.SetDefault(KeyJoinTimeout, 30*time.Second)
	v.SetDefault(KeyCodeLength, 4)
	v.SetDefault(KeyStaleRoomTimeout, 2*time.Hour)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")

	return v
}

// LoadDotEnv loads .env files if present. Missing files are not an error.
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// BindFlags binds each flag to the viper key of the same name
func BindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	for flag, key := range keys {
		f := fs.Lookup(flag)
		if f == nil {
			return fmt.Errorf("unknown flag %q", flag)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", flag, err)
		}
	}
	return nil
}

// Load builds a Config from viper's layered sources (flags > env > defaults)
func Load(v *viper.Viper) *Config {
	return &Config{
		Relay: RelayConfig{
			Port: v.GetString(KeyRelayPort),
			Host: v.GetString(KeyRelayHost),
			Env:  v.GetString(KeyRelayEnv),
		},
		Client: ClientConfig{
			RelayURL:           v.GetString(KeyRelayURL),
			STUNServers:        v.GetStringSlice(KeySTUNServers),
			NegotiationTimeout: v.GetDuration(KeyNegotiationTimeout),
			JoinTimeout:        v.GetDuration(KeyJoinTimeout),
		},
		Game: GameConfig{
			SessionCodeLength: v.GetInt(KeyCodeLength),
			StaleRoomTimeout:  v.GetDuration(KeyStaleRoomTimeout),
		},
		Logging: LoggingConfig{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
	}
}

// Default returns the configuration with no flags or env applied
func Default() *Config {
	return Load(New())
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	if c.Game.SessionCodeLength < 3 || c.Game.SessionCodeLength > 12 {
		return fmt.Errorf("invalid session code length (must be between 3-12 inclusive): %d", c.Game.SessionCodeLength)
	}
	if c.Client.NegotiationTimeout <= 0 {
		return fmt.Errorf("negotiation timeout must be positive: %s", c.Client.NegotiationTimeout)
	}
	if c.Client.JoinTimeout <= 0 {
		return fmt.Errorf("join timeout must be positive: %s", c.Client.JoinTimeout)
	}
	if !strings.HasPrefix(c.Client.RelayURL, "ws://") && !strings.HasPrefix(c.Client.RelayURL, "wss://") {
		return fmt.Errorf("relay url must use ws:// or wss://: %q", c.Client.RelayURL)
	}
	return nil
}

// IsDevelopment returns true if the relay runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Relay.Env == "development"
}

// GetAddr returns the relay listen address in host:port format
func (c *Config) GetAddr() string {
	return c.Relay.Host + ":" + c.Relay.Port
}
