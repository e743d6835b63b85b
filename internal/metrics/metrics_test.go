package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/quells-bot/chat-session/chat"
	"github.com/quells-bot/chat-session/llm"
)

func TestMiddlewareCountsOutcomes(t *testing.T) {
	m := New()
	mw := m.Middleware()
	req := &llm.Request{Provider: "openai", Model: "gpt-4o-mini"}

	ok := func(context.Context, *llm.Request) (*llm.Response, error) {
		return &llm.Response{Usage: llm.Usage{InputTokens: 10, OutputTokens: 4}}, nil
	}
	failing := func(context.Context, *llm.Request) (*llm.Response, error) {
		return nil, &llm.Error{Kind: llm.ErrRateLimit, Provider: "openai", Message: "slow down"}
	}

	for i := 0; i < 2; i++ {
		if _, err := mw(context.Background(), req, ok); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := mw(context.Background(), req, failing); err == nil {
		t.Fatal("expected error")
	}

	if got := testutil.ToFloat64(m.ModelRequests.WithLabelValues("openai", "gpt-4o-mini", "success")); got != 2 {
		t.Errorf("success = %v", got)
	}
	if got := testutil.ToFloat64(m.ModelRequests.WithLabelValues("openai", "gpt-4o-mini", "rate_limit")); got != 1 {
		t.Errorf("rate_limit = %v", got)
	}
	if got := testutil.ToFloat64(m.ModelTokens.WithLabelValues("openai", "input")); got != 20 {
		t.Errorf("input tokens = %v", got)
	}
}

func TestRecordSend(t *testing.T) {
	m := New()
	m.RecordSend(chat.Reply{State: chat.StateRendered})
	m.RecordSend(chat.Reply{Skipped: true})
	m.RecordSend(chat.Reply{Failure: chat.FailureService})
	m.RecordSend(chat.Reply{Failure: chat.FailureService})

	tests := map[string]float64{"rendered": 1, "skipped": 1, "service": 2, "busy": 0}
	for outcome, want := range tests {
		if got := testutil.ToFloat64(m.Sends.WithLabelValues(outcome)); got != want {
			t.Errorf("sends{%s} = %v, want %v", outcome, got, want)
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New()
	m.RecordSend(chat.Reply{})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "chat_session_sends_total") {
		t.Errorf("body missing sends counter:\n%s", rec.Body.String())
	}
}
