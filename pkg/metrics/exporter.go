package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/scoreflow/scoreflow/pkg/breaker"
	"github.com/scoreflow/scoreflow/pkg/cache"
	"github.com/scoreflow/scoreflow/pkg/store"
)

// Exporter exposes Prometheus metrics for the scoring server at
// /metrics. Job and tenant figures come from the store on each
// scrape; provider call counters accumulate in a private registry.
type Exporter struct {
	store     store.Store
	cache     *cache.Cache
	breaker   *breaker.Breaker
	startTime time.Time

	registry      *promclient.Registry
	providerCalls *promclient.CounterVec
	retryCount    promclient.Counter
}

// NewExporter creates a Prometheus exporter
func NewExporter(s store.Store, c *cache.Cache, b *breaker.Breaker) *Exporter {
	registry := promclient.NewRegistry()

	providerCalls := promclient.NewCounterVec(promclient.CounterOpts{
		Name: "scoreflow_provider_calls_total",
		Help: "Total provider invocations by provider and outcome",
	}, []string{"provider", "outcome"})
	registry.MustRegister(providerCalls)

	retryCount := promclient.NewCounter(promclient.CounterOpts{
		Name: "scoreflow_provider_retries_total",
		Help: "Total retry attempts across all providers",
	})
	registry.MustRegister(retryCount)

	return &Exporter{
		store:         s,
		cache:         c,
		breaker:       b,
		startTime:     time.Now(),
		registry:      registry,
		providerCalls: providerCalls,
		retryCount:    retryCount,
	}
}

// RecordProviderCall records one provider invocation outcome, e.g.
// "success", "timeout", "server_error"
func (e *Exporter) RecordProviderCall(provider, outcome string) {
	e.providerCalls.WithLabelValues(provider, outcome).Inc()
}

// RecordRetry records one retry attempt
func (e *Exporter) RecordRetry() {
	e.retryCount.Inc()
}

// ServeHTTP serves Prometheus-compatible metrics
func (e *Exporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	jobMetrics, err := e.store.JobMetrics()
	if err != nil {
		http.Error(w, fmt.Sprintf("Error collecting job metrics: %v", err), http.StatusInternalServerError)
		return
	}

	// scoreflow_jobs_total{status}
	fmt.Fprintf(w, "# HELP scoreflow_jobs_total Total number of jobs by status\n")
	fmt.Fprintf(w, "# TYPE scoreflow_jobs_total counter\n")
	for status, count := range jobMetrics.JobsByStatus {
		fmt.Fprintf(w, "scoreflow_jobs_total{status=\"%s\"} %d\n", status, count)
	}

	fmt.Fprintf(w, "\n# HELP scoreflow_queue_length Number of pending jobs\n")
	fmt.Fprintf(w, "# TYPE scoreflow_queue_length gauge\n")
	fmt.Fprintf(w, "scoreflow_queue_length %d\n", jobMetrics.PendingJobs)

	fmt.Fprintf(w, "\n# HELP scoreflow_jobs_by_tier Total jobs by tier\n")
	fmt.Fprintf(w, "# TYPE scoreflow_jobs_by_tier counter\n")
	for tier, count := range jobMetrics.JobsByTier {
		fmt.Fprintf(w, "scoreflow_jobs_by_tier{tier=\"%s\"} %d\n", tier, count)
	}

	fmt.Fprintf(w, "\n# HELP scoreflow_job_duration_seconds Average job duration in seconds\n")
	fmt.Fprintf(w, "# TYPE scoreflow_job_duration_seconds gauge\n")
	fmt.Fprintf(w, "scoreflow_job_duration_seconds %.2f\n", jobMetrics.AvgDurationSecs)

	fmt.Fprintf(w, "\n# HELP scoreflow_cache_hit_jobs_total Jobs served from the result cache\n")
	fmt.Fprintf(w, "# TYPE scoreflow_cache_hit_jobs_total counter\n")
	fmt.Fprintf(w, "scoreflow_cache_hit_jobs_total %d\n", jobMetrics.CacheHits)

	if e.cache != nil {
		entries, hits, misses := e.cache.Stats()
		fmt.Fprintf(w, "\n# HELP scoreflow_cache_entries Live entries in the result cache\n")
		fmt.Fprintf(w, "# TYPE scoreflow_cache_entries gauge\n")
		fmt.Fprintf(w, "scoreflow_cache_entries %d\n", entries)

		fmt.Fprintf(w, "\n# HELP scoreflow_cache_lookups_total Cache lookups by outcome\n")
		fmt.Fprintf(w, "# TYPE scoreflow_cache_lookups_total counter\n")
		fmt.Fprintf(w, "scoreflow_cache_lookups_total{outcome=\"hit\"} %d\n", hits)
		fmt.Fprintf(w, "scoreflow_cache_lookups_total{outcome=\"miss\"} %d\n", misses)
	}

	if e.breaker != nil {
		fmt.Fprintf(w, "\n# HELP scoreflow_circuit_state Circuit state per provider (0=closed, 1=half_open, 2=open)\n")
		fmt.Fprintf(w, "# TYPE scoreflow_circuit_state gauge\n")
		for _, snap := range e.breaker.Snapshots() {
			fmt.Fprintf(w, "scoreflow_circuit_state{provider=\"%s\"} %d\n", snap.Provider, stateValue(snap.State))
		}

		fmt.Fprintf(w, "\n# HELP scoreflow_circuit_failures Failures in the current window per provider\n")
		fmt.Fprintf(w, "# TYPE scoreflow_circuit_failures gauge\n")
		for _, snap := range e.breaker.Snapshots() {
			fmt.Fprintf(w, "scoreflow_circuit_failures{provider=\"%s\"} %d\n", snap.Provider, snap.FailureCount)
		}
	}

	fmt.Fprintf(w, "\n# HELP scoreflow_uptime_seconds Server uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE scoreflow_uptime_seconds gauge\n")
	fmt.Fprintf(w, "scoreflow_uptime_seconds %.0f\n", time.Since(e.startTime).Seconds())

	// Append the registered counter families via the text encoder.
	metricFamilies, err := e.registry.Gather()
	if err != nil {
		fmt.Fprintf(w, "# Error gathering Prometheus metrics: %v\n", err)
		return
	}

	fmt.Fprintf(w, "\n")
	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range metricFamilies {
		if err := encoder.Encode(mf); err != nil {
			fmt.Fprintf(w, "# Error encoding metric %s: %v\n", mf.GetName(), err)
		}
	}
	w.Write(buf.Bytes())
}

func stateValue(s breaker.State) int {
	switch s {
	case breaker.StateHalfOpen:
		return 1
	case breaker.StateOpen:
		return 2
	default:
		return 0
	}
}
