// Package metrics exposes Prometheus collectors for layer fetching and runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitelayers_fetch_attempts_total",
			Help: "Candidate endpoint attempts by layer and result.",
		},
		[]string{"layer", "result"},
	)

	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitelayers_fetch_duration_seconds",
			Help:    "Duration of one candidate endpoint attempt.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"layer"},
	)

	featuresFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitelayers_features_total",
			Help: "Features persisted per layer.",
		},
		[]string{"layer"},
	)

	layersUnavailable = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitelayers_layers_unavailable_total",
			Help: "Layers that produced no artifact, by reason.",
		},
		[]string{"layer", "reason"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitelayers_runs_total",
			Help: "Completed runs by outcome.",
		},
		[]string{"outcome"},
	)

	geocodeCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitelayers_geocode_cache_total",
			Help: "Geocode cache lookups by tier and result.",
		},
		[]string{"tier", "result"},
	)
)

// Attempt results.
const (
	ResultSuccess = "success"
	ResultEmpty   = "empty"
	ResultFailure = "failure"
)

// Unavailability reasons.
const (
	ReasonNoCandidates = "no_candidates"
	ReasonExhausted    = "exhausted"
	ReasonPersist      = "persist"
)

// ObserveAttempt records one candidate attempt.
func ObserveAttempt(layer, result string, seconds float64) {
	fetchAttempts.WithLabelValues(layer, result).Inc()
	fetchDuration.WithLabelValues(layer).Observe(seconds)
}

// AddFeatures counts persisted features.
func AddFeatures(layer string, n int) {
	featuresFetched.WithLabelValues(layer).Add(float64(n))
}

// LayerUnavailable counts a layer that produced no artifact.
func LayerUnavailable(layer, reason string) {
	layersUnavailable.WithLabelValues(layer, reason).Inc()
}

// ObserveRun counts a finished run.
func ObserveRun(outcome string) {
	runsTotal.WithLabelValues(outcome).Inc()
}

// ObserveGeocodeCache records a cache lookup; tier is "memory" or "store".
func ObserveGeocodeCache(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	geocodeCache.WithLabelValues(tier, result).Inc()
}
