// detectors.go implements the three inline sliding-window anomaly detectors.
// Each runs synchronously after RecordEvent, reads at most a fixed-size
// sample of recent index entries, and raises at most one alert per trigger.
// The sample bound is a cost cap, not a guarantee: bursts larger than the
// sample degrade to possible false negatives instead of unbounded scans on
// the hot path.
package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/config"
)

// Alert type identifiers emitted by the inline detectors.
const (
	AlertTypeFailedLogins = "failed_login_attempts"
	AlertTypeHighRisk     = "high_risk_activity"
	AlertTypeDataAccess   = "excessive_data_access"
)

// FailedLoginDetector raises an alert when one source IP accumulates too
// many failed login events inside the trailing window.
type FailedLoginDetector struct {
	recorder *Recorder
	alerts   *AlertManager
	cfg      config.DetectorsConfig
}

// NewFailedLoginDetector applies reference defaults (threshold 5, window
// 15m, sample 20) for unset config values.
func NewFailedLoginDetector(r *Recorder, a *AlertManager, cfg config.DetectorsConfig) *FailedLoginDetector {
	if cfg.FailedLoginThreshold <= 0 {
		cfg.FailedLoginThreshold = 5
	}
	if cfg.FailedLoginWindow <= 0 {
		cfg.FailedLoginWindow = 15 * time.Minute
	}
	if cfg.FailedLoginSample <= 0 {
		cfg.FailedLoginSample = 20
	}
	return &FailedLoginDetector{recorder: r, alerts: a, cfg: cfg}
}

func (d *FailedLoginDetector) Name() string { return "failed_login" }

func (d *FailedLoginDetector) Check(ctx context.Context, event *AuditEvent) error {
	if event.Outcome != OutcomeFailure || !strings.Contains(strings.ToLower(event.Action), "login") {
		return nil
	}
	if event.Source.IP == "" {
		return nil
	}

	recent := d.recorder.IPEvents(ctx, event.Source.IP, d.cfg.FailedLoginSample, 0)
	cutoff := time.Now().UTC().Add(-d.cfg.FailedLoginWindow)

	var matched []string
	for _, e := range recent {
		if e.Outcome != OutcomeFailure || !strings.Contains(strings.ToLower(e.Action), "login") {
			continue
		}
		if e.Timestamp.Before(cutoff) {
			continue
		}
		matched = append(matched, e.ID)
	}

	if len(matched) < d.cfg.FailedLoginThreshold {
		return nil
	}

	_, err := d.alerts.CreateAlert(ctx, &SecurityAlert{
		Type:     AlertTypeFailedLogins,
		Severity: SeverityHigh,
		Title:    "Repeated failed login attempts",
		Description: fmt.Sprintf("%d failed login attempts from %s within %s",
			len(matched), event.Source.IP, d.cfg.FailedLoginWindow),
		UserID:   event.UserID,
		SourceIP: event.Source.IP,
		EventIDs: matched,
		Metadata: map[string]any{
			"window":    d.cfg.FailedLoginWindow.String(),
			"threshold": d.cfg.FailedLoginThreshold,
		},
	})
	return err
}

// HighRiskDetector raises an alert immediately when a single event's risk
// score crosses the threshold.
type HighRiskDetector struct {
	alerts    *AlertManager
	threshold int
}

// NewHighRiskDetector applies the reference default threshold of 70 when unset.
func NewHighRiskDetector(a *AlertManager, cfg config.DetectorsConfig) *HighRiskDetector {
	threshold := cfg.HighRiskThreshold
	if threshold <= 0 {
		threshold = 70
	}
	return &HighRiskDetector{alerts: a, threshold: threshold}
}

func (d *HighRiskDetector) Name() string { return "high_risk" }

func (d *HighRiskDetector) Check(ctx context.Context, event *AuditEvent) error {
	if event.RiskScore < d.threshold {
		return nil
	}

	severity := SeverityHigh
	if event.Severity == SeverityCritical {
		severity = SeverityCritical
	}

	_, err := d.alerts.CreateAlert(ctx, &SecurityAlert{
		Type:     AlertTypeHighRisk,
		Severity: severity,
		Title:    "High-risk activity detected",
		Description: fmt.Sprintf("event %q on %s scored %d (threshold %d)",
			event.Action, event.Resource, event.RiskScore, d.threshold),
		UserID:   event.UserID,
		SourceIP: event.Source.IP,
		EventIDs: []string{event.ID},
		Metadata: map[string]any{
			"risk_score": event.RiskScore,
			"threshold":  d.threshold,
		},
	})
	return err
}

// DataAccessDetector raises an alert when one user performs too many read or
// export actions inside the trailing window.
type DataAccessDetector struct {
	recorder *Recorder
	alerts   *AlertManager
	cfg      config.DetectorsConfig
}

// NewDataAccessDetector applies reference defaults (threshold 100, window
// 1h, sample 100) for unset config values.
func NewDataAccessDetector(r *Recorder, a *AlertManager, cfg config.DetectorsConfig) *DataAccessDetector {
	if cfg.DataAccessThreshold <= 0 {
		cfg.DataAccessThreshold = 100
	}
	if cfg.DataAccessWindow <= 0 {
		cfg.DataAccessWindow = time.Hour
	}
	if cfg.DataAccessSample <= 0 {
		cfg.DataAccessSample = 100
	}
	return &DataAccessDetector{recorder: r, alerts: a, cfg: cfg}
}

func (d *DataAccessDetector) Name() string { return "data_access" }

// dataAccessAction reports whether the action reads data in bulk.
func dataAccessAction(action string) bool {
	a := strings.ToLower(action)
	return strings.Contains(a, "read") || strings.Contains(a, "export") ||
		strings.Contains(a, "download") || strings.Contains(a, "list")
}

func (d *DataAccessDetector) Check(ctx context.Context, event *AuditEvent) error {
	if event.UserID == "" || !dataAccessAction(event.Action) {
		return nil
	}

	recent := d.recorder.UserEvents(ctx, event.UserID, d.cfg.DataAccessSample, 0)
	cutoff := time.Now().UTC().Add(-d.cfg.DataAccessWindow)

	var matched []string
	for _, e := range recent {
		if !dataAccessAction(e.Action) || e.Timestamp.Before(cutoff) {
			continue
		}
		matched = append(matched, e.ID)
	}

	if len(matched) < d.cfg.DataAccessThreshold {
		return nil
	}

	_, err := d.alerts.CreateAlert(ctx, &SecurityAlert{
		Type:     AlertTypeDataAccess,
		Severity: SeverityMedium,
		Title:    "Excessive data access",
		Description: fmt.Sprintf("user %s performed %d data access operations within %s",
			event.UserID, len(matched), d.cfg.DataAccessWindow),
		UserID:   event.UserID,
		SourceIP: event.Source.IP,
		EventIDs: matched,
		Metadata: map[string]any{
			"window":    d.cfg.DataAccessWindow.String(),
			"threshold": d.cfg.DataAccessThreshold,
		},
	})
	return err
}
