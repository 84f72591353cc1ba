// Package metrics holds the Prometheus collectors shared by the workspace,
// the LLM client, the verifier gateway, the repair loop and its job runner.
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
)

var (
	// ClassesParsed counts workspace parses by result.
	ClassesParsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eiffel_lsp_classes_parsed_total",
		Help: "Classes parsed by the workspace, by result",
	}, []string{"result"})

	// LLMRequests counts completions by model and result.
	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eiffel_lsp_llm_requests_total",
		Help: "LLM completion calls by model and result",
	}, []string{"model", "result"})

	// LLMDuration tracks completion latency including retries.
	LLMDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eiffel_lsp_llm_duration_seconds",
		Help:    "LLM completion latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
	}, []string{"model"})

	// VerifierRuns counts verifier invocations by outcome.
	VerifierRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eiffel_lsp_verifier_runs_total",
		Help: "Verifier invocations by outcome",
	}, []string{"outcome"})

	// VerifierDuration tracks verifier wall time.
	VerifierDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eiffel_lsp_verifier_duration_seconds",
		Help:    "Verifier wall time in seconds",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// RepairSessions counts repair loop sessions by final status.
	RepairSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eiffel_lsp_repair_sessions_total",
		Help: "Repair loop sessions by status",
	}, []string{"status"})

	// RepairJobs counts finished repair jobs by kind and status.
	RepairJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eiffel_lsp_repair_jobs_total",
		Help: "Finished repair jobs by kind and status",
	}, []string{"kind", "status"})

	// RepairQueue is the number of jobs waiting for a worker.
	RepairQueue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eiffel_lsp_repair_queue_depth",
		Help: "Repair jobs waiting for a worker",
	})

	// RepairAttempts observes the attempt counter at the end of a session.
	RepairAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eiffel_lsp_repair_attempts",
		Help:    "Attempts consumed per repair session",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 10},
	})
)

// Serve exposes /metrics on addr until ctx is done. An empty addr is a no-op.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
