// Package telemetry provides application-level observability for the security engine.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<ATP_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint returns the Prometheus text exposition
// format and is intended to be scraped every 15–60 seconds. It is NOT served
// by the Gin router, which keeps the scrape path off the public ingress and
// clear of the rate-limiting middleware.
//
// # Metric Groups
//
//   - Audit event counters and the risk score distribution
//   - Alert creation counters and detector/sweep error counters
//   - Pattern sweep duration and per-sweep match counts
//   - API key lifecycle counters (generated, rotated, deactivated) and
//     validation outcomes
//   - Notification delivery counters
//
// # Label Cardinality
//
// Event counters are labelled by outcome and severity (both small closed
// sets), never by user id, IP, or action string — those are unbounded and
// belong in the store-backed indices, not in label sets.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Audit ingestion metrics.
//
// EventsRecordedTotal is a CounterVec with labels {outcome, severity}.
//
// Example PromQL queries:
//   - Ingestion rate:     rate(security_events_recorded_total[5m])
//   - Failure share (%):  sum(rate(security_events_recorded_total{outcome="failure"}[5m])) / sum(rate(security_events_recorded_total[5m])) * 100
//
// EventRiskScore is a Histogram over the computed per-event risk score with
// buckets aligned to the scorer's weight breakpoints.
//
// Example PromQL queries:
//   - p95 risk score:  histogram_quantile(0.95, rate(security_event_risk_score_bucket[1h]))
var (
	EventsRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_events_recorded_total",
			Help: "Total number of audit events recorded, by outcome and severity.",
		},
		[]string{"outcome", "severity"},
	)

	EventRiskScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "security_event_risk_score",
			Help:    "Distribution of computed per-event risk scores (0-100).",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)
)

// Detection metrics.
//
// AlertsCreatedTotal is a CounterVec with labels {type, severity}; "type" is
// the detector or pattern identifier (failed_login_attempts, sql_injection, ...),
// a small closed set defined in code.
//
// DetectorErrorsTotal counts swallowed inline-detector failures, by detector.
// An alert on increase(security_detector_errors_total[15m]) > 0 is the
// recommended way to notice silent detection degradation.
var (
	AlertsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_alerts_created_total",
			Help: "Total number of security alerts created, by type and severity.",
		},
		[]string{"type", "severity"},
	)

	DetectorErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_detector_errors_total",
			Help: "Total number of inline detector failures (caught and logged, never propagated).",
		},
		[]string{"detector"},
	)
)

// Pattern sweep metrics — recorded by the pattern sweep background job.
//
// PatternSweepDuration is a Histogram using the default buckets; each
// observation is one complete sweep over the recent-event sample.
//
// PatternSweepMatchesTotal is a CounterVec with label {pattern} counting
// events matched per pattern across sweeps.
var (
	PatternSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "security_pattern_sweep_duration_seconds",
			Help:    "Duration of a single threat pattern sweep.",
			Buckets: prometheus.DefBuckets,
		},
	)

	PatternSweepMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_pattern_sweep_matches_total",
			Help: "Total number of events matched by threat patterns, by pattern id.",
		},
		[]string{"pattern"},
	)
)

// API key lifecycle metrics.
//
// APIKeyValidationsTotal is a CounterVec with label {result} where result is
// one of ok, no_match, inactive, expired. A rising no_match rate is an early
// signal of credential-stuffing against the key surface.
var (
	APIKeysGeneratedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "security_api_keys_generated_total",
			Help: "Total number of API keys generated.",
		},
	)

	APIKeysRotatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "security_api_keys_rotated_total",
			Help: "Total number of API keys replaced by rotation.",
		},
	)

	APIKeysDeactivatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_api_keys_deactivated_total",
			Help: "Total number of API keys deactivated, by reason (explicit, expired, evicted, rotation_grace).",
		},
		[]string{"reason"},
	)

	APIKeyValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_api_key_validations_total",
			Help: "Total number of API key validation attempts, by result.",
		},
		[]string{"result"},
	)
)

// NotificationsSentTotal is a CounterVec with labels {channel, result}
// (result: ok, error) incremented per dispatch attempt. A stalled ok counter
// combined with open high-severity alerts signals a broken delivery channel.
var NotificationsSentTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "security_notifications_sent_total",
		Help: "Total number of alert/report notifications dispatched, by channel and result.",
	},
	[]string{"channel", "result"},
)

// Daily snapshot gauges — set by the metrics snapshot job from the store's
// daily counters so dashboards survive scrape gaps and process restarts.
var (
	EventsTodayGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "security_events_today",
			Help: "Number of audit events recorded so far today (UTC), from the store's daily counter.",
		},
	)

	AlertsTodayGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "security_alerts_today",
			Help: "Number of alerts created so far today (UTC), from the store's daily counter.",
		},
	)
)
