package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ForecastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raincast_forecasts_total",
			Help: "Total forecast invocations by outcome",
		},
		[]string{"outcome"},
	)

	InferenceLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "raincast_inference_latency_seconds",
			Help:    "Inference subprocess wall time in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	BusyRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raincast_busy_rejections_total",
			Help: "Forecast requests rejected by the single-flight guard",
		},
	)

	ReadingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raincast_readings_ingested_total",
			Help: "Inbound sensor readings by disposition",
		},
		[]string{"disposition"}, // "accepted" or "suppressed"
	)

	RecordsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raincast_records_inserted_total",
			Help: "Records written to the store",
		},
	)

	RecordsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raincast_records_deduplicated_total",
			Help: "Persist calls skipped because the candidate matched the previous row",
		},
	)

	CloudCoverFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raincast_cloudcover_fetches_total",
			Help: "Open-Meteo cloud cover fetches by status",
		},
		[]string{"status"},
	)
)
