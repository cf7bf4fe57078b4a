package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	extractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platex_extractions_total",
			Help: "Extractions by deployment and outcome",
		},
		[]string{"kind", "outcome"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platex_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"kind", "stage"},
	)

	ocrFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platex_ocr_failures_total",
			Help: "Field reads that produced no usable text",
		},
		[]string{"kind", "reason"},
	)

	poolPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "platex_pool_panics_total",
			Help: "Invocations that panicked inside a worker",
		},
	)
)

func observe(res *Result) {
	kind := string(res.Kind)
	extractionsTotal.WithLabelValues(kind, string(res.Outcome)).Inc()
	for stage, d := range map[string]time.Duration{
		"localize": res.Timings.Localize,
		"deskew":   res.Timings.Deskew,
		"fields":   res.Timings.Fields,
		"ocr":      res.Timings.OCR,
		"total":    res.Timings.Total,
	} {
		if d > 0 {
			stageDuration.WithLabelValues(kind, stage).Observe(d.Seconds())
		}
	}
}
