// Package metrics exposes prometheus instrumentation for provider traffic,
// caching and batch runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes
const (
	OutcomeSuccess     = "success"
	OutcomeNotFound    = "not_found"
	OutcomeRateLimited = "rate_limited"
	OutcomeAuthFailed  = "auth_failed"
	OutcomeRetry       = "retry"
	OutcomeError       = "error"
)

var (
	// Provider traffic
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posterarr_provider_requests_total",
			Help: "Total number of HTTP requests sent to artwork providers",
		},
		[]string{"provider", "outcome"},
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "posterarr_provider_request_duration_seconds",
			Help:    "Duration of artwork provider requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	ProviderCooldowns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posterarr_provider_cooldowns_total",
			Help: "Total number of times a provider was placed on cooldown",
		},
		[]string{"provider", "reason"},
	)

	QuotaUsed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "posterarr_provider_quota_used",
			Help: "Requests sent to a provider during the current UTC day",
		},
		[]string{"provider"},
	)

	// Cache
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posterarr_cache_lookups_total",
			Help: "Total number of provider cache lookups",
		},
		[]string{"namespace", "result"}, // "hit", "miss"
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "posterarr_cache_entries",
			Help: "Current number of cached provider lookups",
		},
	)

	// Batch runs
	ItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posterarr_items_processed_total",
			Help: "Total number of library items processed",
		},
		[]string{"outcome"}, // "skipped", "filtered", "updated", "proposed", "no_match", "error"
	)

	ArtworkUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posterarr_artwork_uploads_total",
			Help: "Total number of artwork uploads to the media server",
		},
		[]string{"kind", "result"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posterarr_runs_total",
			Help: "Total number of batch runs",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "posterarr_run_duration_seconds",
			Help:    "Duration of batch runs in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
		},
	)

	RunInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "posterarr_run_in_progress",
			Help: "1 while a batch run is active",
		},
	)

	// Media server circuit breaker
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "posterarr_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	BreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posterarr_circuit_breaker_requests_total",
			Help: "Requests passed through a circuit breaker",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	// Webhooks
	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posterarr_webhook_deliveries_total",
			Help: "Webhook notifications sent",
		},
		[]string{"event", "result"},
	)
)

// RecordProviderRequest records one provider HTTP request
func RecordProviderRequest(provider, outcome string, duration time.Duration) {
	ProviderRequests.WithLabelValues(provider, outcome).Inc()
	ProviderRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordCacheLookup records a cache hit or miss
func RecordCacheLookup(namespace string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(namespace, result).Inc()
}

// RecordUpload records an artwork upload attempt
func RecordUpload(kind string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	ArtworkUploads.WithLabelValues(kind, result).Inc()
}

// RecordRun records a finished batch run
func RecordRun(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	RunsTotal.WithLabelValues(status).Inc()
	RunDuration.Observe(duration.Seconds())
}

// TrackRun flips the in-progress gauge
func TrackRun(active bool) {
	if active {
		RunInProgress.Set(1)
		return
	}
	RunInProgress.Set(0)
}
