package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"quizmesh/internal/config"
	"quizmesh/internal/logging"
	"quizmesh/internal/relay"
)

const releaseVersion = "0.1.0"

func main() {
	config.LoadDotEnv()
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	v := config.New()

	cmd := &cobra.Command{
		Use:           "relay",
		Short:         "Signaling relay for quizmesh sessions.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), config.Load(v))
		},
	}

	d := config.Load(v)

	fs := cmd.Flags()
	fs.StringP("bind", "b", d.Relay.Host, "address to bind to (env: QUIZMESH_RELAY_HOST)")
	fs.StringP("port", "p", d.Relay.Port, "port to listen on (env: QUIZMESH_RELAY_PORT)")
	fs.String("env", d.Relay.Env, "development or production (env: QUIZMESH_RELAY_ENV)")
	fs.Duration("stale-room-timeout", d.Game.StaleRoomTimeout, "time before idle rooms are closed (env: QUIZMESH_GAME_STALE_ROOM_TIMEOUT)")
	fs.String("log-level", d.Logging.Level, "debug, info, warn or error (env: QUIZMESH_LOG_LEVEL)")
	fs.String("log-format", d.Logging.Format, "text or json (env: QUIZMESH_LOG_FORMAT)")

	cobra.CheckErr(config.BindFlags(v, fs, map[string]string{
		"bind":               config.KeyRelayHost,
		"port":               config.KeyRelayPort,
		"env":                config.KeyRelayEnv,
		"stale-room-timeout": config.KeyStaleRoomTimeout,
		"log-level":          config.KeyLogLevel,
		"log-format":         config.KeyLogFormat,
	}))

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)

	logger.Info("starting quizmesh relay",
		"env", cfg.Relay.Env,
		"port", cfg.Relay.Port,
	)

	hub := relay.NewHub(cfg.Game.StaleRoomTimeout, logger)
	defer hub.Close()

	server := relay.NewServer(cfg, hub, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", "error", err)
		return err
	}

	logger.Info("shutting down relay...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("relay forced to shutdown", "error", err)
	}

	logger.Info("relay stopped")
	return nil
}
