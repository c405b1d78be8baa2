// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments dispatched requests.
type Metrics struct {
	// RequestsTotal counts envelopes by type and outcome.
	RequestsTotal *prometheus.CounterVec

	// LoginsTotal counts login attempts by outcome: accepted, refused,
	// or error.
	LoginsTotal *prometheus.CounterVec

	// SessionsRefreshed counts session ids rotated during authorize.
	SessionsRefreshed prometheus.Counter
}

// NewMetrics registers the dispatcher metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_requests_total",
			Help: "Dispatched request envelopes by type and outcome.",
		}, []string{"type", "outcome"}),
		LoginsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		SessionsRefreshed: factory.NewCounter(prometheus.CounterOpts{
			Name: "gatehouse_sessions_refreshed_total",
			Help: "Session ids rotated during authorization.",
		}),
	}
}
