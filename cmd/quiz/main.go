package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"quizmesh/internal/app"
	"quizmesh/internal/config"
	"quizmesh/internal/logging"
)

const releaseVersion = "0.1.0"

func main() {
	config.LoadDotEnv()
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	v := config.New()

	cmd := &cobra.Command{
		Use:           "quiz",
		Short:         "Peer-to-peer buzzer quiz.",
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       releaseVersion,
	}

	// flag defaults mirror the layered config
	d := config.Load(v)

	fs := cmd.PersistentFlags()
	fs.String("relay-url", d.Client.RelayURL, "signaling relay websocket url (env: QUIZMESH_CLIENT_RELAY_URL)")
	fs.StringSlice("stun", d.Client.STUNServers, "stun server urls (env: QUIZMESH_CLIENT_STUN_SERVERS)")
	fs.Duration("negotiation-timeout", d.Client.NegotiationTimeout, "ice gathering limit (env: QUIZMESH_CLIENT_NEGOTIATION_TIMEOUT)")
	fs.Duration("join-timeout", d.Client.JoinTimeout, "time allowed to reach the host (env: QUIZMESH_CLIENT_JOIN_TIMEOUT)")
	fs.Int("code-length", d.Game.SessionCodeLength, "session code length (env: QUIZMESH_GAME_CODE_LENGTH)")
	fs.Bool("loopback", false, "only use loopback candidates, for same-machine sessions")
	fs.String("log-level", d.Logging.Level, "debug, info, warn or error (env: QUIZMESH_LOG_LEVEL)")
	fs.String("log-format", d.Logging.Format, "text or json (env: QUIZMESH_LOG_FORMAT)")

	cobra.CheckErr(config.BindFlags(v, fs, map[string]string{
		"relay-url":           config.KeyRelayURL,
		"stun":                config.KeySTUNServers,
		"negotiation-timeout": config.KeyNegotiationTimeout,
		"join-timeout":        config.KeyJoinTimeout,
		"code-length":         config.KeyCodeLength,
		"log-level":           config.KeyLogLevel,
		"log-format":          config.KeyLogFormat,
	}))

	cmd.AddCommand(
		newHostCmd(v),
		newJoinCmd(v),
		newResumeCmd(v),
	)

	return cmd
}

func newHostCmd(v *viper.Viper) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Start a session and print its code",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, v, func(ctx context.Context, cfg *config.Config, deps app.Deps) (*app.Session, error) {
				return app.Host(ctx, cfg, deps, name)
			})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "Host", "display name")

	return cmd
}

func newJoinCmd(v *viper.Viper) *cobra.Command {
	var code, name string

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a session by code",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, v, func(ctx context.Context, cfg *config.Config, deps app.Deps) (*app.Session, error) {
				return app.Join(ctx, cfg, deps, code, name)
			})
		},
	}
	cmd.Flags().StringVarP(&code, "code", "c", "", "session code")
	cmd.Flags().StringVarP(&name, "name", "n", "", "display name")
	cmd.MarkFlagRequired("code")
	cmd.MarkFlagRequired("name")

	return cmd
}

func newResumeCmd(v *viper.Viper) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Return to a session using a token printed earlier",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, v, func(ctx context.Context, cfg *config.Config, deps app.Deps) (*app.Session, error) {
				return app.Resume(ctx, cfg, deps, token)
			})
		},
	}
	cmd.Flags().StringVarP(&token, "token", "t", "", "resume token")
	cmd.MarkFlagRequired("token")

	return cmd
}

type opener func(ctx context.Context, cfg *config.Config, deps app.Deps) (*app.Session, error)

// withSession loads config, opens the session and runs the console until
// stdin closes, the user quits or a signal arrives
func withSession(cmd *cobra.Command, v *viper.Viper, open opener) error {
	cfg := config.Load(v)
	if err := cfg.Validate(); err != nil {
		return err
	}

	loopback, _ := cmd.Flags().GetBool("loopback")
	deps := app.Deps{
		Logger:       logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format),
		LoopbackOnly: loopback,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := open(ctx, cfg, deps)
	if err != nil {
		return err
	}
	defer s.Close()

	c := newConsole(s, os.Stdin, cmd.OutOrStdout())
	return c.run(ctx)
}
