package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/quells-bot/chat-session/chat"
	"github.com/quells-bot/chat-session/internal/backend"
	"github.com/quells-bot/chat-session/internal/config"
	"github.com/quells-bot/chat-session/internal/logger"
	"github.com/quells-bot/chat-session/internal/metrics"
	"github.com/quells-bot/chat-session/internal/telemetry"
	"github.com/quells-bot/chat-session/llm"
	"github.com/quells-bot/chat-session/markdown"
)

var rootCmd = &cobra.Command{
	Use:           "chatwidget",
	Short:         "Chat with a hosted language model, text and images",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var flagConfig string

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", os.Getenv("CHAT_CONFIG"), "optional YAML config file (overrides environment)")
	rootCmd.AddCommand(serveCmd, askCmd, replCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app is everything a command needs to talk to the model.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	metrics *metrics.Metrics
	session *chat.Session

	shutdownTracing func(context.Context) error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg)

	shutdownTracing, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	var m *metrics.Metrics
	var extra []llm.Middleware
	if cfg.MetricsEnabled {
		m = metrics.New()
		extra = append(extra, m.Middleware())
	}

	client, err := backend.Build(ctx, cfg, log, extra...)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, fmt.Errorf("build client: %w", err)
	}

	return &app{
		cfg:     cfg,
		log:     log,
		metrics: m,
		session: chat.NewSession(client, sessionOptions(cfg, log)...),

		shutdownTracing: shutdownTracing,
	}, nil
}

// close flushes pending spans on a fresh context; the command's own may
// already be canceled.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.shutdownTracing(ctx); err != nil {
		a.log.Warn().Err(err).Msg("flush traces")
	}
}

func sessionOptions(cfg *config.Config, log zerolog.Logger) []chat.Option {
	opts := []chat.Option{
		chat.WithRenderer(markdown.New()),
		chat.WithImageBounds(cfg.ImageMaxWidth, cfg.ImageMaxHeight),
		chat.WithHistoryWindow(cfg.HistoryWindow),
		chat.WithLogger(log),
	}
	if cfg.RejectWhenBusy {
		opts = append(opts, chat.WithRejectWhenBusy())
	}
	return opts
}
