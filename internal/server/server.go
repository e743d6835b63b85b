// Package server exposes a chat session over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/quells-bot/chat-session/chat"
	"github.com/quells-bot/chat-session/internal/config"
	"github.com/quells-bot/chat-session/internal/metrics"
)

// HttpServer wraps the gin engine with graceful shutdown helpers.
type HttpServer struct {
	cfg    *config.Config
	engine *gin.Engine
	log    zerolog.Logger
}

// New constructs the HTTP server with default middleware and routes.
// m may be nil, in which case /metrics is not served.
func New(cfg *config.Config, log zerolog.Logger, conv Conversation, m *metrics.Metrics) *HttpServer {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	log = log.With().Str("component", "http").Logger()

	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), tracing(otel.GetTracerProvider(), otel.GetTextMapPropagator()), requestLogger(log))

	h := &chatHandler{conv: conv, maxUploadBytes: cfg.MaxUploadBytes}
	if m != nil {
		h.onReply = func(r chat.Reply) { m.RecordSend(r) }
		engine.GET("/metrics", gin.WrapH(m.Handler()))
	}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	api := engine.Group("/api")
	api.POST("/chat", h.send)
	api.GET("/history", h.history)
	api.GET("/state", h.state)

	return &HttpServer{cfg: cfg, engine: engine, log: log}
}

// Handler returns the underlying http.Handler.
func (s *HttpServer) Handler() http.Handler {
	return s.engine
}

// Run starts the HTTP listener and handles graceful shutdown via context cancellation.
func (s *HttpServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr()).Msg("chat HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("context cancelled, shutting down HTTP server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
