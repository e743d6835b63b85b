// Package backend builds the configured language model client.
package backend

import (
	"context"
	"fmt"
	"net/http"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/quells-bot/chat-session/internal/config"
	"github.com/quells-bot/chat-session/internal/logger"
	"github.com/quells-bot/chat-session/internal/telemetry"
	"github.com/quells-bot/chat-session/llm"
)

// New returns the backend for cfg.Provider.
func New(ctx context.Context, cfg *config.Config) (llm.Backend, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		opts := []llm.GeminiOption{llm.WithGeminiTimeout(cfg.HTTPTimeout)}
		if cfg.GeminiBaseURL != "" {
			opts = append(opts, llm.WithGeminiBaseURL(cfg.GeminiBaseURL))
		}
		return llm.NewGeminiBackend(cfg.GeminiAPIKey, opts...), nil

	case config.ProviderOpenAI:
		oc := openai.DefaultConfig(cfg.OpenAIAPIKey)
		if cfg.OpenAIBaseURL != "" {
			oc.BaseURL = cfg.OpenAIBaseURL
		}
		oc.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}
		return llm.NewOpenAIBackend(openai.NewClientWithConfig(oc)), nil

	case config.ProviderBedrock:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		return llm.NewBedrockBackend(bedrockruntime.NewFromConfig(awsCfg)), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// Build creates an llm.Client for cfg with logging and tracing middleware,
// followed by any extra middleware.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger, extra ...llm.Middleware) (*llm.Client, error) {
	b, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mw := append([]llm.Middleware{logger.Middleware(log), telemetry.Middleware()}, extra...)
	client := llm.NewClient(
		llm.WithBackend(b),
		llm.WithModels(cfg.TextModel, cfg.VisionModel),
		llm.WithSystemPrompt(cfg.SystemPrompt),
		llm.WithMiddleware(mw...),
	)

	log.Info().
		Str("provider", b.Provider()).
		Str("text_model", cfg.TextModel).
		Str("vision_model", cfg.VisionModel).
		Msg("language model client ready")
	return client, nil
}
