// Package metrics exposes Prometheus metrics for evaluations and the
// upstream services they depend on.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/claimcheck/internal/llm"
	"github.com/kalambet/claimcheck/internal/retrieval"
)

const namespace = "claimcheck"

// Collector owns the registry and every metric the service records.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	evaluations   *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	agentSteps    *prometheus.HistogramVec
	upstreamCalls *prometheus.CounterVec
}

// NewCollector registers the metrics on registry, or on a fresh registry
// when registry is nil.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Claim evaluations by strategy and outcome status.",
		}, []string{"strategy", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Wall time of claim evaluations.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"strategy"}),
		agentSteps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_steps",
			Help:      "Tool calls made by agent retrieval loops.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8},
		}, []string{"mode"}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_calls_total",
			Help:      "Calls to the model and the policy index by status.",
		}, []string{"service", "status"}),
	}

	registry.MustRegister(c.evaluations, c.duration, c.agentSteps, c.upstreamCalls)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// RecordEvaluation records one finished evaluation. status is "ok",
// "invalid" or "upstream_error".
func (c *Collector) RecordEvaluation(strategy, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.evaluations.WithLabelValues(strategy, status).Inc()
	c.duration.WithLabelValues(strategy).Observe(d.Seconds())
}

// RecordAgentSteps records the tool calls of one agent loop.
func (c *Collector) RecordAgentSteps(mode string, steps int) {
	if c == nil {
		return
	}
	c.agentSteps.WithLabelValues(mode).Observe(float64(steps))
}

func (c *Collector) recordUpstream(service string, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.upstreamCalls.WithLabelValues(service, status).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// InstrumentModel counts calls made through m.
func (c *Collector) InstrumentModel(m llm.Model) llm.Model {
	if c == nil {
		return m
	}
	return &instrumentedModel{next: m, c: c}
}

// InstrumentIndex counts searches made through idx.
func (c *Collector) InstrumentIndex(idx retrieval.Index) retrieval.Index {
	if c == nil {
		return idx
	}
	return &instrumentedIndex{next: idx, c: c}
}

type instrumentedModel struct {
	next llm.Model
	c    *Collector
}

func (m *instrumentedModel) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	resp, err := m.next.Complete(ctx, req)
	m.c.recordUpstream("model", err)
	return resp, err
}

type instrumentedIndex struct {
	next retrieval.Index
	c    *Collector
}

func (i *instrumentedIndex) Search(ctx context.Context, query string, topK int, ns string) ([]retrieval.PolicyPassage, error) {
	passages, err := i.next.Search(ctx, query, topK, ns)
	i.c.recordUpstream("index", err)
	return passages, err
}
