// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the HTTP surface.
type Metrics struct {
	// RequestDuration observes wall time per request, labeled by method
	// and status class.
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics registers the HTTP metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatehouse_http_request_duration_seconds",
			Help:    "HTTP request duration by method and status class.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
}
