package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", " key-123 ")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != ProviderGemini {
		t.Errorf("Provider = %q", cfg.Provider)
	}
	if cfg.GeminiAPIKey != "key-123" {
		t.Errorf("GeminiAPIKey = %q", cfg.GeminiAPIKey)
	}
	if cfg.TextModel != "gemini-pro" || cfg.VisionModel != "gemini-1.5-flash" {
		t.Errorf("models = %q, %q", cfg.TextModel, cfg.VisionModel)
	}
	if cfg.ImageMaxWidth != 300 || cfg.ImageMaxHeight != 300 {
		t.Errorf("image bounds = %dx%d", cfg.ImageMaxWidth, cfg.ImageMaxHeight)
	}
	if cfg.HTTPTimeout != 60*time.Second || cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("timeouts = %v, %v", cfg.HTTPTimeout, cfg.ShutdownTimeout)
	}
	if cfg.Addr() != ":8080" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
	if cfg.RejectWhenBusy || cfg.IsProduction() || cfg.TracingEnabled {
		t.Errorf("unexpected flags: %+v", cfg)
	}
	if cfg.TraceSamplingRate != 1 {
		t.Errorf("TraceSamplingRate = %v", cfg.TraceSamplingRate)
	}
}

func TestLoad_ProviderDefaults(t *testing.T) {
	tests := []struct {
		provider   string
		env        map[string]string
		wantText   string
		wantVision string
	}{
		{"openai", map[string]string{"OPENAI_API_KEY": "sk-test"}, "gpt-4o-mini", "gpt-4o-mini"},
		{"Bedrock", nil, "us.anthropic.claude-haiku-4-5-20251001-v1:0", "us.anthropic.claude-haiku-4-5-20251001-v1:0"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			t.Setenv("CHAT_PROVIDER", tt.provider)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load("")
			if err != nil {
				t.Fatal(err)
			}
			if cfg.TextModel != tt.wantText || cfg.VisionModel != tt.wantVision {
				t.Errorf("models = %q, %q", cfg.TextModel, cfg.VisionModel)
			}
		})
	}
}

func TestLoad_ExplicitModelsWin(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("CHAT_TEXT_MODEL", "gemini-2.0-flash")
	t.Setenv("CHAT_VISION_MODEL", "gemini-2.0-flash")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TextModel != "gemini-2.0-flash" || cfg.VisionModel != "gemini-2.0-flash" {
		t.Errorf("models = %q, %q", cfg.TextModel, cfg.VisionModel)
	}
}

func TestLoad_YAMLOverridesEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("CHAT_HTTP_PORT", "9000")

	path := filepath.Join(t.TempDir(), "chat.yaml")
	body := strings.Join([]string{
		"http_port: 9100",
		"system_prompt: You are terse.",
		"history_window: 6",
		"reject_when_busy: true",
		"http_timeout: 5s",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPPort != 9100 {
		t.Errorf("HTTPPort = %d, want YAML value", cfg.HTTPPort)
	}
	if cfg.GeminiAPIKey != "from-env" {
		t.Errorf("GeminiAPIKey = %q, keys absent from YAML keep env value", cfg.GeminiAPIKey)
	}
	if cfg.SystemPrompt != "You are terse." || cfg.HistoryWindow != 6 || !cfg.RejectWhenBusy {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.HTTPTimeout != 5*time.Second {
		t.Errorf("HTTPTimeout = %v", cfg.HTTPTimeout)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing gemini key", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "")
		if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("unknown provider", func(t *testing.T) {
		t.Setenv("CHAT_PROVIDER", "palm")
		if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "unknown provider") {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("bad env value", func(t *testing.T) {
		t.Setenv("CHAT_HTTP_PORT", "not-a-number")
		if _, err := Load(""); err == nil {
			t.Error("expected parse error")
		}
	})
	t.Run("sampling rate out of range", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "k")
		t.Setenv("TRACE_SAMPLING_RATE", "1.5")
		if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "sampling rate") {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "k")
		if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected read error")
		}
	})
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := &Config{Provider: ProviderOpenAI, HTTPPort: 0, ImageMaxWidth: 0, ImageMaxHeight: 300}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"OPENAI_API_KEY", "image bounds", "HTTP port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}
