// Package security implements the audit, threat-detection, and alerting
// engine: risk scoring of individual events, persistence with secondary
// indices, sliding-window anomaly detectors that run inline with ingestion, a
// signature library swept on a schedule, and the alert lifecycle that feeds
// notification dispatch. All state lives in the key-value store; every entry
// point is safe for concurrent use.
package security

import (
	"strings"
	"time"
)

// Outcome classifies how an audited operation ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// ParseOutcome normalises a string to an Outcome, defaulting to success.
func ParseOutcome(s string) Outcome {
	switch strings.ToLower(s) {
	case "failure", "failed":
		return OutcomeFailure
	case "denied", "deny":
		return OutcomeDenied
	default:
		return OutcomeSuccess
	}
}

// Severity grades events and alerts for triage.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity normalises a string to a Severity, defaulting to low.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(s) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium", "moderate":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// rank orders severities for min-severity filtering (notifications).
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is at or above min.
func (s Severity) AtLeast(min Severity) bool {
	return s.rank() >= min.rank()
}

// EventSource captures where a request originated.
type EventSource struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`
	Referer   string `json:"referer,omitempty"`
}

// AuditEvent is an immutable record of a single security-relevant operation.
// ID, Timestamp, and RiskScore are assigned by the recorder at creation and
// the record is never mutated afterwards; it ages out via the retention TTL.
type AuditEvent struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	UserID     string         `json:"user_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id,omitempty"`
	Outcome    Outcome        `json:"outcome"`
	Severity   Severity       `json:"severity"`
	Source     EventSource    `json:"source"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	RiskScore  int            `json:"risk_score"`
}

// AlertStatus is the lifecycle state of a SecurityAlert.
type AlertStatus string

const (
	AlertOpen          AlertStatus = "open"
	AlertInvestigating AlertStatus = "investigating"
	AlertResolved      AlertStatus = "resolved"
	AlertFalsePositive AlertStatus = "false_positive"
)

// alertTransitions is the allowed status graph. Anything not listed is
// rejected with ErrInvalidTransition; resolved and false_positive are terminal.
var alertTransitions = map[AlertStatus][]AlertStatus{
	AlertOpen:          {AlertInvestigating},
	AlertInvestigating: {AlertResolved, AlertFalsePositive},
}

// CanTransition reports whether an alert may move from to next.
func CanTransition(from, to AlertStatus) bool {
	for _, allowed := range alertTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Active reports whether the status still requires attention.
func (s AlertStatus) Active() bool {
	return s == AlertOpen || s == AlertInvestigating
}

// SecurityAlert is raised by a detector or pattern match and worked by a
// human (or downstream system) through the status lifecycle.
type SecurityAlert struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Type        string         `json:"type"`
	Severity    Severity       `json:"severity"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	UserID      string         `json:"user_id,omitempty"`
	SourceIP    string         `json:"source_ip,omitempty"`
	EventIDs    []string       `json:"events,omitempty"`
	Status      AlertStatus    `json:"status"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Store key layout. Events carry three secondary id-list indices plus a
// bounded global recent index consumed by the pattern sweep.
const (
	eventKeyPrefix     = "event:"
	userEventsPrefix   = "events:user:"
	ipEventsPrefix     = "events:ip:"
	actionEventsPrefix = "events:action:"
	recentEventsKey    = "events:recent"

	alertKeyPrefix  = "alert:"
	activeAlertsKey = "alerts:active"

	metricKeyPrefix = "metric:"
)

func eventKey(id string) string      { return eventKeyPrefix + id }
func userEventsKey(id string) string { return userEventsPrefix + id }
func ipEventsKey(ip string) string   { return ipEventsPrefix + ip }
func actionEventsKey(a string) string {
	return actionEventsPrefix + strings.ToLower(a)
}
func alertKey(id string) string { return alertKeyPrefix + id }

// dailyMetricKey builds the per-day counter key, e.g. metric:events:2026-08-28.
func dailyMetricKey(name string, day time.Time) string {
	return metricKeyPrefix + name + ":" + day.UTC().Format("2006-01-02")
}
