// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "appdist"

// metrics holds the server's collectors. A nil *metrics records
// nothing, so handlers never need to check.
type metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ingests         *prometheus.CounterVec
	ingestedBytes   *prometheus.CounterVec
	downloads       *prometheus.CounterVec
}

// newMetrics registers the collectors on a fresh registry. Process and
// Go runtime collectors are included when runtime is true.
func newMetrics(runtime bool) *metrics {
	registry := prometheus.NewRegistry()
	if runtime {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(registry)

	return &metrics{
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern, method, and status code.",
		}, []string{"route", "method", "code"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 30, 120, 600},
		}, []string{"route"}),
		ingests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ingests_total",
			Help:      "Upload attempts by platform and result.",
		}, []string{"platform", "result"}),
		ingestedBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ingested_bytes_total",
			Help:      "Bytes of successfully ingested artifacts.",
		}, []string{"platform"}),
		downloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "downloads_total",
			Help:      "Artifact downloads by platform.",
		}, []string{"platform"}),
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *metrics) observeRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// observeIngest records one upload attempt. result is "ok" or the error
// code returned to the client.
func (m *metrics) observeIngest(platform, result string, size int) {
	if m == nil {
		return
	}
	m.ingests.WithLabelValues(platform, result).Inc()
	if result == "ok" {
		m.ingestedBytes.WithLabelValues(platform).Add(float64(size))
	}
}

func (m *metrics) observeDownload(platform string) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(platform).Inc()
}
