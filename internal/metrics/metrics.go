package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CensusAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shrimpwatch_census_api_calls_total",
			Help: "Total Census international trade API calls",
		},
		[]string{"commodity", "status"},
	)

	CensusAPILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shrimpwatch_census_api_latency_seconds",
			Help:    "Census API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"commodity"},
	)

	RecordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shrimpwatch_records_ingested_total",
			Help: "Total cleaned trade records merged into the canonical dataset",
		},
		[]string{"commodity"},
	)

	RecordsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shrimpwatch_records_dropped_total",
			Help: "Total fetched rows dropped while cleaning",
		},
		[]string{"reason"},
	)

	CanonicalRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shrimpwatch_canonical_rows",
			Help: "Rows in the canonical dataset after the last merge",
		},
	)

	FeatureRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shrimpwatch_feature_rows",
			Help: "Rows written by the last feature run",
		},
	)

	LastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shrimpwatch_last_success_timestamp_seconds",
			Help: "Unix time of the last successful job",
		},
		[]string{"job"},
	)
)

// WriteTextfile writes every registered metric to path in the Prometheus text format,
// for collection by node_exporter's textfile collector. An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
