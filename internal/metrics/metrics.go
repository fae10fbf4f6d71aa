// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "anistream"

var (
	// UpstreamRequests counts fetch-client hops by outcome.
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_requests_total",
		Help:      "Upstream HTTP hops by outcome (ok, redirect, error, network).",
	}, []string{"outcome"})

	// Resolutions counts stream resolutions by the path that answered.
	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resolutions_total",
		Help:      "Stream resolutions by source (unified, direct, not_found, error).",
	}, []string{"source"})

	UnifiedLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unified_lookups_total",
		Help:      "Unified accelerator lookups by outcome.",
	}, []string{"outcome"})

	RelayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_requests_total",
		Help:      "Relayed media by kind and outcome.",
	}, []string{"kind", "outcome"})

	RelayBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_bytes_total",
		Help:      "Bytes relayed to clients by kind.",
	}, []string{"kind"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Inbound API requests by route and status code.",
	}, []string{"route", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Inbound API request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
