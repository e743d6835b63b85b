package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quells-bot/chat-session/chat"
	"github.com/quells-bot/chat-session/llm"
)

// Metrics holds the chat widget's collectors on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	ModelRequests *prometheus.CounterVec
	ModelDuration *prometheus.HistogramVec
	ModelTokens   *prometheus.CounterVec
	Sends         *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ModelRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chat",
				Subsystem: "llm",
				Name:      "requests_total",
				Help:      "Total number of model requests",
			},
			[]string{"provider", "model", "outcome"},
		),
		ModelDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "chat",
				Subsystem: "llm",
				Name:      "request_duration_seconds",
				Help:      "Model request duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		ModelTokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chat",
				Subsystem: "llm",
				Name:      "tokens_total",
				Help:      "Tokens consumed by model requests",
			},
			[]string{"provider", "direction"},
		),
		Sends: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chat",
				Subsystem: "session",
				Name:      "sends_total",
				Help:      "Session sends by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Middleware records count, latency and token usage for each model call.
func (m *Metrics) Middleware() llm.Middleware {
	return func(ctx context.Context, req *llm.Request, next llm.CompleteFunc) (*llm.Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		m.ModelDuration.WithLabelValues(req.Provider, req.Model).Observe(time.Since(start).Seconds())

		outcome := "success"
		if err != nil {
			outcome = "error"
			if kind, ok := llm.KindOf(err); ok {
				outcome = kind.String()
			}
		}
		m.ModelRequests.WithLabelValues(req.Provider, req.Model, outcome).Inc()

		if resp != nil {
			m.ModelTokens.WithLabelValues(req.Provider, "input").Add(float64(resp.Usage.InputTokens))
			m.ModelTokens.WithLabelValues(req.Provider, "output").Add(float64(resp.Usage.OutputTokens))
		}
		return resp, err
	}
}

// RecordSend counts one session send by its outcome.
func (m *Metrics) RecordSend(r chat.Reply) {
	outcome := "rendered"
	switch {
	case r.Skipped:
		outcome = "skipped"
	case r.Failed():
		outcome = r.Failure.String()
	}
	m.Sends.WithLabelValues(outcome).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
