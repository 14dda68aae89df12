package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	buildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qsketch",
		Name:      "builds_total",
		Help:      "Dataset summary builds, by outcome.",
	}, []string{"status"})

	buildSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "qsketch",
		Name:      "build_duration_seconds",
		Help:      "Wall time of a full map-reduce summary build.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qsketch",
		Name:      "queries_total",
		Help:      "Quantile and split-point queries, by endpoint and outcome.",
	}, []string{"endpoint", "status"})
)
