// Package observability wires tracing and the register's domain metrics.
//
// The collectors below complement the HTTP middleware metrics with what the
// ingest pipeline and the tagged cache actually did. Label values are drawn
// from small fixed sets so cardinality stays bounded.
package observability

import "github.com/prometheus/client_golang/prometheus"

const namespace = "register"

var (
	// IngestOutcomes counts submissions by channel ("sms", "batch") and
	// outcome ("stored", "partial", "replayed", "auth", "malformed",
	// "validation", "error").
	IngestOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_outcomes_total",
			Help:      "Register submissions by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)

	// DegradedFields counts fields replaced by their degraded default.
	DegradedFields = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_fields_total",
			Help:      "Decoded fields dropped or truncated instead of rejecting the entry.",
		},
		[]string{"field"},
	)

	// Fragments counts received SMS fragments and completed assemblies.
	Fragments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_total",
			Help:      "SMS fragments by result (buffered, assembled).",
		},
		[]string{"result"},
	)

	// CacheMarkers counts MarkerFor lookups by result ("hit", "miss").
	CacheMarkers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_markers_total",
			Help:      "Cache marker lookups by result.",
		},
		[]string{"result"},
	)

	// CacheInvalidations counts cache records deleted by tag invalidation.
	CacheInvalidations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_records_invalidated_total",
			Help:      "Cache records deleted by tag invalidation.",
		},
	)

	// SweptRows counts rows removed by maintenance jobs, by job name.
	SweptRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_rows_total",
			Help:      "Rows removed by periodic maintenance jobs.",
		},
		[]string{"job"},
	)
)

func init() {
	prometheus.MustRegister(IngestOutcomes, DegradedFields, Fragments, CacheMarkers, CacheInvalidations, SweptRows)
}
