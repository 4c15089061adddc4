// alerts.go implements the alert lifecycle: creation with an active index,
// listing of alerts still requiring attention, and validated status
// transitions. Alerts age out via the retention TTL; the active index is
// additionally pruned as soon as an alert reaches a terminal status so it
// does not grow for the full retention window.
package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/store"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/telemetry"
)

// AlertSink receives alerts as they are created. Implementations decide
// whether and how to notify (channel routing, severity filtering); the
// engine only hands over the alert. A nil sink disables dispatch.
type AlertSink interface {
	AlertCreated(ctx context.Context, alert *SecurityAlert)
}

// AlertManager persists and transitions security alerts.
type AlertManager struct {
	store     store.Store
	retention time.Duration
	sink      AlertSink
}

// NewAlertManager creates an AlertManager. retention is the TTL applied to
// alert records; sink may be nil.
func NewAlertManager(s store.Store, retention time.Duration, sink AlertSink) *AlertManager {
	return &AlertManager{store: s, retention: retention, sink: sink}
}

// CreateAlert assigns id, timestamp, and open status, persists the alert,
// and appends it to the active index. High and critical alerts log at
// elevated visibility and are handed to the sink.
func (m *AlertManager) CreateAlert(ctx context.Context, alert *SecurityAlert) (*SecurityAlert, error) {
	if alert == nil || alert.Type == "" || alert.Title == "" {
		return nil, fmt.Errorf("%w: alert requires type and title", ErrInvalidInput)
	}

	alert.ID = uuid.New().String()
	alert.Timestamp = time.Now().UTC()
	alert.Status = AlertOpen
	if alert.Severity == "" {
		alert.Severity = SeverityMedium
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return nil, fmt.Errorf("marshal alert: %w", err)
	}
	if err := m.store.Set(ctx, alertKey(alert.ID), string(data), m.retention); err != nil {
		return nil, fmt.Errorf("persist alert: %w", err)
	}
	if err := m.store.PushFront(ctx, activeAlertsKey, alert.ID, m.retention); err != nil {
		return nil, fmt.Errorf("index alert: %w", err)
	}

	if _, err := m.store.Increment(ctx, dailyMetricKey("alerts", alert.Timestamp)); err != nil {
		slog.Warn("alert counter increment failed", "error", err)
	}
	telemetry.AlertsCreatedTotal.WithLabelValues(alert.Type, string(alert.Severity)).Inc()

	switch alert.Severity {
	case SeverityCritical:
		slog.Error("security alert created",
			"alert_id", alert.ID, "type", alert.Type, "severity", alert.Severity,
			"title", alert.Title, "user_id", alert.UserID, "source_ip", alert.SourceIP)
	case SeverityHigh:
		slog.Warn("security alert created",
			"alert_id", alert.ID, "type", alert.Type, "severity", alert.Severity,
			"title", alert.Title, "user_id", alert.UserID, "source_ip", alert.SourceIP)
	default:
		slog.Info("security alert created",
			"alert_id", alert.ID, "type", alert.Type, "severity", alert.Severity)
	}

	if m.sink != nil {
		m.sink.AlertCreated(ctx, alert)
	}
	return alert, nil
}

// GetAlert loads a single alert by id.
func (m *AlertManager) GetAlert(ctx context.Context, id string) (*SecurityAlert, error) {
	data, err := m.store.Get(ctx, alertKey(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("load alert %s: %w", id, err)
	}
	var alert SecurityAlert
	if err := json.Unmarshal([]byte(data), &alert); err != nil {
		return nil, fmt.Errorf("decode alert %s: %w", id, err)
	}
	return &alert, nil
}

// ActiveAlerts returns up to limit alerts whose status is open or
// investigating, newest first. Store failures degrade to an empty result so
// dashboards stay up through transient outages.
func (m *AlertManager) ActiveAlerts(ctx context.Context, limit int) []*SecurityAlert {
	if limit <= 0 {
		limit = 50
	}
	// Over-read the index: some candidates will have expired or already
	// reached a terminal status.
	ids, err := m.store.Range(ctx, activeAlertsKey, 0, int64(limit*2-1))
	if err != nil {
		slog.Warn("active alerts listing degraded to empty", "error", err)
		return nil
	}

	alerts := make([]*SecurityAlert, 0, limit)
	for _, id := range ids {
		alert, err := m.GetAlert(ctx, id)
		if err != nil {
			continue
		}
		if !alert.Status.Active() {
			continue
		}
		alerts = append(alerts, alert)
		if len(alerts) >= limit {
			break
		}
	}
	return alerts
}

// UpdateAlertStatus moves an alert to newStatus after validating the
// transition. Terminal statuses prune the alert from the active index.
// Returns ErrAlertNotFound for unknown ids; a missing alert is never created
// as a side effect.
func (m *AlertManager) UpdateAlertStatus(ctx context.Context, id string, newStatus AlertStatus) (*SecurityAlert, error) {
	alert, err := m.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}

	if !CanTransition(alert.Status, newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, alert.Status, newStatus)
	}

	alert.Status = newStatus

	data, err := json.Marshal(alert)
	if err != nil {
		return nil, fmt.Errorf("marshal alert: %w", err)
	}

	// Re-persist with the remaining TTL so the update does not extend the
	// record's life beyond the retention window.
	ttl, err := m.store.TTL(ctx, alertKey(id))
	if err != nil || ttl <= 0 {
		ttl = m.retention
	}
	if err := m.store.Set(ctx, alertKey(id), string(data), ttl); err != nil {
		return nil, fmt.Errorf("persist alert %s: %w", id, err)
	}

	if !newStatus.Active() {
		if err := m.store.RemoveFromList(ctx, activeAlertsKey, id); err != nil {
			slog.Warn("active index prune failed", "alert_id", id, "error", err)
		}
	}

	slog.Info("alert status updated", "alert_id", id, "status", newStatus)
	return alert, nil
}
