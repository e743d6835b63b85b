package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quells-bot/chat-session/internal/config"
	"github.com/quells-bot/chat-session/llm"
)

// New creates a zerolog.Logger configured for the chat widget.
// Development gets a console writer; production writes JSON.
func New(cfg *config.Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	if !cfg.IsProduction() {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return build(out, cfg)
}

func build(out io.Writer, cfg *config.Config) zerolog.Logger {
	return zerolog.New(out).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Logger().
		Level(parseLevel(cfg.LogLevel))
}

func parseLevel(raw string) zerolog.Level {
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// Middleware logs every model call with its provider, model and duration.
func Middleware(log zerolog.Logger) llm.Middleware {
	log = log.With().Str("component", "llm").Logger()
	return func(ctx context.Context, req *llm.Request, next llm.CompleteFunc) (*llm.Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		elapsed := time.Since(start)

		if err != nil {
			ev := log.Error().Err(err)
			if kind, ok := llm.KindOf(err); ok {
				ev = ev.Str("kind", kind.String())
			}
			ev.Str("provider", req.Provider).
				Str("model", req.Model).
				Bool("image", req.HasImage()).
				Dur("duration", elapsed).
				Msg("model call failed")
			return nil, err
		}

		log.Debug().
			Str("provider", req.Provider).
			Str("model", req.Model).
			Bool("image", req.HasImage()).
			Str("finish_reason", resp.FinishReason.Reason).
			Int("input_tokens", resp.Usage.InputTokens).
			Int("output_tokens", resp.Usage.OutputTokens).
			Dur("duration", elapsed).
			Msg("model call")
		return resp, nil
	}
}
