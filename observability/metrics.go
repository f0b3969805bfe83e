// Copyright (C) 2025 StandardGPT
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "standardgpt"

// PipelineMetrics aggregates the Prometheus instruments for the query
// pipeline and its streaming surface.
type PipelineMetrics struct {
	QueriesTotal         *prometheus.CounterVec
	QueryDurationSeconds *prometheus.HistogramVec
	TokensTotal          prometheus.Counter
	TimeToFirstTokenSecs prometheus.Histogram
	ActiveStreams        prometheus.Gauge
	ErrorsTotal          *prometheus.CounterVec
	KeepAlivesTotal      prometheus.Counter
	ClientDisconnects    prometheus.Counter
	RouteDowngradesTotal prometheus.Counter
	SearchHitsPerQuery   prometheus.Histogram
	EmbeddingFailures    prometheus.Counter
}

// DefaultMetrics is the process-wide instance. Nil-checked at every use so
// tests can run without registering collectors.
var DefaultMetrics = NewPipelineMetrics()

func NewPipelineMetrics() *PipelineMetrics {
	return &PipelineMetrics{
		QueriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "queries_total",
			Help:      "Pipeline runs by final route and outcome.",
		}, []string{"route", "status"}),
		QueryDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end pipeline latency.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 45},
		}, []string{"route"}),
		TokensTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tokens_streamed_total",
			Help:      "Answer tokens delivered over streams.",
		}),
		TimeToFirstTokenSecs: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "time_to_first_token_seconds",
			Help:      "Latency until the first answer token.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 30},
		}),
		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_streams",
			Help:      "Currently attached SSE subscribers.",
		}),
		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "errors_total",
			Help:      "Pipeline errors by stage.",
		}, []string{"stage"}),
		KeepAlivesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "keepalives_total",
			Help:      "Keepalive comments written to streams.",
		}),
		ClientDisconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "client_disconnects_total",
			Help:      "Streams whose subscriber went away mid-query.",
		}),
		RouteDowngradesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "route_downgrades_total",
			Help:      "Memory or including routes downgraded to without.",
		}),
		SearchHitsPerQuery: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "search_hits_per_query",
			Help:      "Hit counts returned by the search engine.",
			Buckets:   []float64{0, 1, 5, 10, 20, 40, 80},
		}),
		EmbeddingFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "embedding_failures_total",
			Help:      "Queries that proceeded without a vector.",
		}),
	}
}
