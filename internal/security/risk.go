// risk.go computes the per-event risk score. The score is a pure function of
// the event's outcome, severity, action string, and metadata flags — no I/O,
// fully deterministic, clamped to [0,100]. An explainable additive score
// beats an opaque model for security triage: an analyst can read the factors
// straight off the event.
package security

import "strings"

// Additive risk weights. Any single factor can dominate: a low-severity
// success event still reaches a moderate score through behavioural metadata
// flags alone.
const (
	riskOutcomeFailure = 20
	riskOutcomeDenied  = 30

	riskSeverityLow      = 10
	riskSeverityMedium   = 25
	riskSeverityHigh     = 50
	riskSeverityCritical = 80

	riskActionLogin  = 15
	riskActionAdmin  = 30
	riskActionDelete = 25
	riskActionExport = 20

	riskFlagSuspicious       = 40
	riskFlagMultipleFailures = 30
	riskFlagUnusualLocation  = 25

	// MaxRiskScore caps the additive total.
	MaxRiskScore = 100
)

// Metadata flag keys recognised by the scorer. Producers set these to true
// when behavioural context warrants extra suspicion.
const (
	FlagSuspiciousActivity = "suspicious_activity"
	FlagMultipleFailures   = "multiple_failures"
	FlagUnusualLocation    = "unusual_location"
)

// RiskScore returns the risk score for the given event attributes. Action
// substring checks are case-insensitive and not mutually exclusive — an
// "admin_delete" action collects both the admin and delete weights.
func RiskScore(outcome Outcome, severity Severity, action string, metadata map[string]any) int {
	score := 0

	switch outcome {
	case OutcomeFailure:
		score += riskOutcomeFailure
	case OutcomeDenied:
		score += riskOutcomeDenied
	}

	switch severity {
	case SeverityLow:
		score += riskSeverityLow
	case SeverityMedium:
		score += riskSeverityMedium
	case SeverityHigh:
		score += riskSeverityHigh
	case SeverityCritical:
		score += riskSeverityCritical
	}

	a := strings.ToLower(action)
	if strings.Contains(a, "login") {
		score += riskActionLogin
	}
	if strings.Contains(a, "admin") {
		score += riskActionAdmin
	}
	if strings.Contains(a, "delete") {
		score += riskActionDelete
	}
	if strings.Contains(a, "export") {
		score += riskActionExport
	}

	if flagSet(metadata, FlagSuspiciousActivity) {
		score += riskFlagSuspicious
	}
	if flagSet(metadata, FlagMultipleFailures) {
		score += riskFlagMultipleFailures
	}
	if flagSet(metadata, FlagUnusualLocation) {
		score += riskFlagUnusualLocation
	}

	if score > MaxRiskScore {
		score = MaxRiskScore
	}
	return score
}

// flagSet reports whether metadata[key] is truthy. JSON round-trips deliver
// booleans, but producers occasionally send "true" strings; accept both.
func flagSet(metadata map[string]any, key string) bool {
	v, ok := metadata[key]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true")
	default:
		return false
	}
}
