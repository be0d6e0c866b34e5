// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

// Package metrics provides Prometheus instrumentation for Riskgate:
// analysis throughput, per-detector latency and errors, risk-level
// distribution, and HTTP request metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AnalysesTotal counts full analysis requests by resulting risk level.
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_analyses_total",
			Help: "Total number of full risk analyses by risk level",
		},
		[]string{"risk_level"},
	)

	// DetectorDuration tracks per-detector evaluation latency.
	DetectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riskgate_detector_duration_seconds",
			Help:    "Duration of individual detector evaluations in seconds",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"detector"},
	)

	// DetectorErrors counts detector evaluations that degraded to an
	// error or unavailable signal.
	DetectorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_detector_errors_total",
			Help: "Total number of detector evaluations that degraded to error or timeout",
		},
		[]string{"detector", "reason"},
	)

	// SignalRisk observes the per-signal risk score distribution.
	SignalRisk = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riskgate_signal_risk_score",
			Help:    "Distribution of per-signal risk scores",
			Buckets: []float64{0, 10, 25, 50, 60, 75, 85, 90, 100},
		},
		[]string{"detector"},
	)

	// StoreOperationDuration tracks event-store call latency.
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riskgate_store_operation_duration_seconds",
			Help:    "Duration of event store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// HTTP endpoint metrics.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riskgate_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "riskgate_api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)
)

// RecordAnalysis records a completed full analysis.
func RecordAnalysis(riskLevel string) {
	AnalysesTotal.WithLabelValues(riskLevel).Inc()
}

// RecordDetector records one detector evaluation.
func RecordDetector(detector string, riskScore int, duration time.Duration) {
	DetectorDuration.WithLabelValues(detector).Observe(duration.Seconds())
	SignalRisk.WithLabelValues(detector).Observe(float64(riskScore))
}

// RecordDetectorError records a degraded detector evaluation.
func RecordDetectorError(detector, reason string) {
	DetectorErrors.WithLabelValues(detector, reason).Inc()
}

// RecordStoreOperation records an event-store call.
func RecordStoreOperation(operation string, duration time.Duration) {
	StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAPIRequest records an HTTP request with its outcome.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(start bool) {
	if start {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
