// Copyright 2025 James Ross
package obs

import (
	"fmt"
	"net/http"

	"github.com/camuslab/dynamic-wirye-drt/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsAdmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "requests_admitted_total",
		Help: "Total number of requests admitted into pending state",
	})
	RequestsServed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "requests_served_total",
		Help: "Total number of requests committed to a vehicle schedule",
	})
	RequestsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "requests_rejected_total",
		Help: "Total number of requests rejected, by reason",
	}, []string{"reason"})
	RequestsRetried = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "requests_retried_total",
		Help: "Total number of retry-relaxation advances",
	})
	RebalanceAssigned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rebalance_assigned_total",
		Help: "Total number of requests served via reactive rebalance",
	})
	PendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pending_requests",
		Help: "Current number of requests awaiting assignment",
	})
	IdleVehiclesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "idle_vehicles",
		Help: "Current number of vehicles with an empty schedule",
	})
	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tick_duration_seconds",
		Help:    "Wall-clock duration of one batch tick",
		Buckets: prometheus.DefBuckets,
	})
	OracleFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "routing_oracle_failures_total",
		Help: "Total number of routing oracle calls that fell back to straight-line time",
	})
	CommitGuardRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "commit_guard_rejections_total",
		Help: "Total number of LAP pairs discarded by the commit guard",
	})
)

func init() {
	prometheus.MustRegister(
		RequestsAdmitted, RequestsServed, RequestsRejected, RequestsRetried,
		RebalanceAssigned, PendingGauge, IdleVehiclesGauge, TickDuration,
		OracleFailures, CommitGuardRejections,
	)
}

// StartMetricsServer exposes /metrics and returns a server for controlled shutdown.
// Retained for compatibility; StartHTTPServer also registers health endpoints.
func StartMetricsServer(cfg *config.Config) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Observability.MetricsPort), Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
