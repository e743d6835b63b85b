package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported providers.
const (
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"
)

// Config holds the environment driven configuration for the chat widget.
// A YAML file passed to Load overrides environment values key by key.
type Config struct {
	// Service Configuration
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"chatwidget" yaml:"service_name"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development" yaml:"environment"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info" yaml:"log_level"`
	HTTPPort        int           `env:"CHAT_HTTP_PORT" envDefault:"8080" yaml:"http_port"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s" yaml:"shutdown_timeout"`
	MetricsEnabled  bool          `env:"METRICS_ENABLED" envDefault:"true" yaml:"metrics_enabled"`

	// Tracing Configuration
	TracingEnabled    bool    `env:"TRACING_ENABLED" envDefault:"false" yaml:"tracing_enabled"`
	OTLPEndpoint      string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" yaml:"otlp_endpoint"`
	TraceSamplingRate float64 `env:"TRACE_SAMPLING_RATE" envDefault:"1.0" yaml:"trace_sampling_rate"`

	// Model Configuration
	Provider     string `env:"CHAT_PROVIDER" envDefault:"gemini" yaml:"provider"`
	TextModel    string `env:"CHAT_TEXT_MODEL" yaml:"text_model"`
	VisionModel  string `env:"CHAT_VISION_MODEL" yaml:"vision_model"`
	SystemPrompt string `env:"CHAT_SYSTEM_PROMPT" yaml:"system_prompt"`

	// Provider Credentials
	GeminiAPIKey  string        `env:"GEMINI_API_KEY" yaml:"gemini_api_key"`
	GeminiBaseURL string        `env:"GEMINI_BASE_URL" yaml:"gemini_base_url"`
	OpenAIAPIKey  string        `env:"OPENAI_API_KEY" yaml:"openai_api_key"`
	OpenAIBaseURL string        `env:"OPENAI_BASE_URL" yaml:"openai_base_url"`
	AWSRegion     string        `env:"AWS_REGION" envDefault:"us-east-1" yaml:"aws_region"`
	HTTPTimeout   time.Duration `env:"PROVIDER_HTTP_TIMEOUT" envDefault:"60s" yaml:"http_timeout"`

	// Session Configuration
	ImageMaxWidth  int   `env:"CHAT_IMAGE_MAX_WIDTH" envDefault:"300" yaml:"image_max_width"`
	ImageMaxHeight int   `env:"CHAT_IMAGE_MAX_HEIGHT" envDefault:"300" yaml:"image_max_height"`
	HistoryWindow  int   `env:"CHAT_HISTORY_WINDOW" envDefault:"0" yaml:"history_window"`
	MaxUploadBytes int64 `env:"CHAT_MAX_UPLOAD_BYTES" envDefault:"10485760" yaml:"max_upload_bytes"`
	RejectWhenBusy bool  `env:"CHAT_REJECT_WHEN_BUSY" envDefault:"false" yaml:"reject_when_busy"`
}

// defaultModels are used when no model is configured for the provider.
var defaultModels = map[string][2]string{
	ProviderGemini:  {"gemini-pro", "gemini-1.5-flash"},
	ProviderOpenAI:  {"gpt-4o-mini", "gpt-4o-mini"},
	ProviderBedrock: {"us.anthropic.claude-haiku-4-5-20251001-v1:0", "us.anthropic.claude-haiku-4-5-20251001-v1:0"},
}

// Load reads .env files, parses environment variables and, if path is not
// empty, overlays the YAML file at path.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFiles() {
	for _, path := range []string{".env", "../.env"} {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}

func (c *Config) normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.GeminiAPIKey = strings.TrimSpace(c.GeminiAPIKey)
	c.OpenAIAPIKey = strings.TrimSpace(c.OpenAIAPIKey)
	c.TextModel = strings.TrimSpace(c.TextModel)
	c.VisionModel = strings.TrimSpace(c.VisionModel)
	c.OTLPEndpoint = strings.TrimSpace(c.OTLPEndpoint)

	if models, ok := defaultModels[c.Provider]; ok {
		if c.TextModel == "" {
			c.TextModel = models[0]
		}
		if c.VisionModel == "" {
			c.VisionModel = models[1]
		}
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 10 * 1024 * 1024
	}
}

// Validate reports configuration that cannot produce a working client.
func (c *Config) Validate() error {
	var errs []error
	switch c.Provider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when CHAT_PROVIDER is gemini"))
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when CHAT_PROVIDER is openai"))
		}
	case ProviderBedrock:
		if c.AWSRegion == "" {
			errs = append(errs, errors.New("AWS_REGION is required when CHAT_PROVIDER is bedrock"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}
	if c.ImageMaxWidth <= 0 || c.ImageMaxHeight <= 0 {
		errs = append(errs, errors.New("image bounds must be positive"))
	}
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		errs = append(errs, fmt.Errorf("trace sampling rate %v is outside [0, 1]", c.TraceSamplingRate))
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port %d", c.HTTPPort))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
