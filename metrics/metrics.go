// Package metrics exposes Prometheus collectors for the patch loop and the
// LLM client, plus a small HTTP server for scraping.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/martinemde/patchloop/unifiedllm"
	"github.com/martinemde/patchloop/workflow"
)

const namespace = "patchloop"

// Metrics records loop and LLM activity. It implements workflow.Observer.
type Metrics struct {
	iterations   prometheus.Counter
	stalls       prometheus.Counter
	edits        prometheus.Counter
	patchNumber  prometheus.Gauge
	stepDuration *prometheus.HistogramVec
	stepErrors   *prometheus.CounterVec
	outcomes     *prometheus.CounterVec
	llmRequests  *prometheus.CounterVec
	llmLatency   *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		iterations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "iterations_total",
			Help:      "Completed loop iterations",
		}),
		stalls: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "stalls_total",
			Help:      "Iterations whose apply step made no successful edit",
		}),
		edits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "edits_total",
			Help:      "Successful mutating tool calls made by the edit applier",
		}),
		patchNumber: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "patch_number",
			Help:      "Current patch attempt number",
		}),
		// Labels: step, status (ok, error)
		stepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "step",
			Name:      "duration_seconds",
			Help:      "Duration of each loop step",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 900},
		}, []string{"step", "status"}),
		stepErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "step",
			Name:      "errors_total",
			Help:      "Steps that ended with an error",
		}, []string{"step"}),
		// Labels: state, reason
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "outcomes_total",
			Help:      "Finished runs by final state",
		}, []string{"state", "reason"}),
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "LLM completion requests by provider and status",
		}, []string{"provider", "status"}),
		llmLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "latency_seconds",
			Help:      "LLM completion latency",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"provider"}),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// StepStarted implements workflow.Observer.
func (m *Metrics) StepStarted(workflow.Step, int) {}

// StepFinished implements workflow.Observer.
func (m *Metrics) StepFinished(step workflow.Step, _ int, elapsed time.Duration, err error) {
	m.stepDuration.WithLabelValues(string(step), status(err)).Observe(elapsed.Seconds())
	if err != nil {
		m.stepErrors.WithLabelValues(string(step)).Inc()
	}
}

// IterationFinished implements workflow.Observer.
func (m *Metrics) IterationFinished(r workflow.IterationReport) {
	m.iterations.Inc()
	m.edits.Add(float64(r.Edits))
	if r.Stalled {
		m.stalls.Inc()
	}
	m.patchNumber.Set(float64(r.PatchNumber))
}

// RunFinished implements workflow.Observer.
func (m *Metrics) RunFinished(o workflow.Outcome, err error) {
	reason := o.Reason.String()
	if err != nil {
		reason = "error"
	}
	m.outcomes.WithLabelValues(o.State.String(), reason).Inc()
	m.patchNumber.Set(float64(o.PatchNumber))
}

// Middleware counts and times every completion request.
func (m *Metrics) Middleware() unifiedllm.Middleware {
	return func(ctx context.Context, req unifiedllm.Request, next func(context.Context, unifiedllm.Request) (*unifiedllm.Response, error)) (*unifiedllm.Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		provider := req.Provider
		if resp != nil && resp.Provider != "" {
			provider = resp.Provider
		}
		m.llmRequests.WithLabelValues(provider, status(err)).Inc()
		m.llmLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

var _ workflow.Observer = (*Metrics)(nil)
