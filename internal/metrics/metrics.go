package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the service
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, route, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // BackendCalls counts dispatch backend calls by operation and outcome
    BackendCalls = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "backend_calls_total", Help: "Dispatch backend calls by operation and outcome."},
        []string{"op", "outcome"},
    )
    // BackendLatency records backend call durations in seconds
    BackendLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "backend_call_duration_seconds", Help: "Dispatch backend call duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"op"},
    )

    // TransformDuration tracks job normalization time by source kind
    TransformDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "job_transform_duration_seconds", Help: "Job transform duration in seconds.", Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1}},
        []string{"kind", "outcome"},
    )

    // Mutations counts working set mutations by operation and result
    Mutations = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "workingset_mutations_total", Help: "Working set mutations by operation and result."},
        []string{"op", "result"},
    )
    // ActiveSessions is the number of open dispatch sessions
    ActiveSessions = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "dispatch_sessions_active", Help: "Open dispatch sessions."},
    )

    // DispatchOutcomes counts per-job commit results
    DispatchOutcomes = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "job_dispatch_total", Help: "Per-job dispatch results."},
        []string{"status"},
    )

    // WebhookDeliveries counts webhook delivery outcomes by event type and status
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
        []string{"event_type", "status"},
    )
    // WebhookLatency tracks webhook delivery latencies in milliseconds
    WebhookLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
        []string{"event_type", "status"},
    )
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests, HTTPDuration)
        Registry.MustRegister(BackendCalls, BackendLatency)
        Registry.MustRegister(TransformDuration, Mutations, ActiveSessions, DispatchOutcomes)
        Registry.MustRegister(WebhookDeliveries, WebhookLatency)
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
