// Copyright (C) 2025 SkillGate (engineering@skillgate.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the assistant.
//
// # Description
//
// Metrics cover the terminal outcome of every request, refusal reasons,
// stream lifecycle, and provider failures. Exposed on /metrics; scrape with
// Prometheus and alert on provider_errors_total and refusals by reason.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "skillgate"
const assistantSubsystem = "assistant"

// Metrics holds the Prometheus instruments for the chat pipeline.
// Initialize once at startup via InitMetrics().
type Metrics struct {
	// RequestsTotal counts chat requests by terminal outcome.
	// Labels: outcome (answered, refused, blocked, error)
	RequestsTotal *prometheus.CounterVec

	// RefusalsTotal counts refused/blocked requests by reason.
	// Labels: reason (rate_limited, off_topic, no_relevant_docs, ...)
	RefusalsTotal *prometheus.CounterVec

	// ActiveStreams gauges currently open SSE streams.
	ActiveStreams prometheus.Gauge

	// StreamDurationSeconds measures full request duration by outcome.
	StreamDurationSeconds *prometheus.HistogramVec

	// TokensStreamedTotal counts generator tokens forwarded to clients.
	TokensStreamedTotal prometheus.Counter

	// RateLimitDeniedTotal counts admission denials.
	RateLimitDeniedTotal prometheus.Counter

	// ProviderErrorsTotal counts provider failures by provider name.
	ProviderErrorsTotal *prometheus.CounterVec
}

// DefaultMetrics is the process-wide metrics instance, nil until
// InitMetrics runs. Handlers nil-check before recording so tests can run
// without registration.
var DefaultMetrics *Metrics

// InitMetrics registers all instruments on the default registry and
// installs the result as DefaultMetrics.
func InitMetrics() *Metrics {
	m := &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "requests_total",
				Help:      "Chat requests by terminal outcome.",
			},
			[]string{"outcome"},
		),
		RefusalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "refusals_total",
				Help:      "Refused or blocked requests by reason.",
			},
			[]string{"reason"},
		),
		ActiveStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "active_streams",
				Help:      "Currently open SSE streams.",
			},
		),
		StreamDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Request duration from receipt to stream close.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
		TokensStreamedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "tokens_streamed_total",
				Help:      "Generator tokens forwarded to clients.",
			},
		),
		RateLimitDeniedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "rate_limit_denied_total",
				Help:      "Requests denied by admission control.",
			},
		),
		ProviderErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: assistantSubsystem,
				Name:      "provider_errors_total",
				Help:      "LLM provider failures by provider.",
			},
			[]string{"provider"},
		),
	}
	DefaultMetrics = m
	return m
}

// RecordOutcome increments the request counter for a terminal outcome and
// observes the stream duration.
func (m *Metrics) RecordOutcome(outcome string, seconds float64) {
	m.RequestsTotal.WithLabelValues(outcome).Inc()
	m.StreamDurationSeconds.WithLabelValues(outcome).Observe(seconds)
}

// RecordRefusal increments the refusal counter for a reason.
func (m *Metrics) RecordRefusal(reason string) {
	m.RefusalsTotal.WithLabelValues(reason).Inc()
}

// StreamStarted marks a stream as open.
func (m *Metrics) StreamStarted() {
	m.ActiveStreams.Inc()
}

// StreamEnded marks a stream as closed.
func (m *Metrics) StreamEnded() {
	m.ActiveStreams.Dec()
}

// AddTokens records forwarded generator tokens.
func (m *Metrics) AddTokens(n int) {
	m.TokensStreamedTotal.Add(float64(n))
}

// RecordRateLimitDenied records an admission denial.
func (m *Metrics) RecordRateLimitDenied() {
	m.RateLimitDeniedTotal.Inc()
}

// RecordProviderError records a provider failure.
func (m *Metrics) RecordProviderError(provider string) {
	m.ProviderErrorsTotal.WithLabelValues(provider).Inc()
}
