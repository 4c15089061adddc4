package security

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/store"
)

// recordingSink captures alerts handed to the sink for assertions.
type recordingSink struct {
	alerts []*SecurityAlert
}

func (s *recordingSink) AlertCreated(ctx context.Context, alert *SecurityAlert) {
	s.alerts = append(s.alerts, alert)
}

func newTestAlertManager(sink AlertSink) (*AlertManager, *store.MemoryStore) {
	st := store.NewMemoryStore()
	return NewAlertManager(st, 90*24*time.Hour, sink), st
}

// ---------------------------------------------------------------------------
// CreateAlert
// ---------------------------------------------------------------------------

func TestCreateAlert(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns id, timestamp, open status", func(t *testing.T) {
		m, _ := newTestAlertManager(nil)
		alert, err := m.CreateAlert(ctx, &SecurityAlert{
			Type:  AlertTypeHighRisk,
			Title: "High-risk activity detected",
		})
		if err != nil {
			t.Fatalf("CreateAlert() error = %v", err)
		}
		if alert.ID == "" {
			t.Error("alert ID not assigned")
		}
		if alert.Timestamp.IsZero() {
			t.Error("alert timestamp not assigned")
		}
		if alert.Status != AlertOpen {
			t.Errorf("alert status = %q, want %q", alert.Status, AlertOpen)
		}
		if alert.Severity != SeverityMedium {
			t.Errorf("default severity = %q, want %q", alert.Severity, SeverityMedium)
		}
	})

	t.Run("rejects missing type or title", func(t *testing.T) {
		m, _ := newTestAlertManager(nil)
		if _, err := m.CreateAlert(ctx, &SecurityAlert{Title: "no type"}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("CreateAlert() error = %v, want ErrInvalidInput", err)
		}
		if _, err := m.CreateAlert(ctx, &SecurityAlert{Type: "no_title"}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("CreateAlert() error = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("dispatches to the sink", func(t *testing.T) {
		sink := &recordingSink{}
		m, _ := newTestAlertManager(sink)
		alert, err := m.CreateAlert(ctx, &SecurityAlert{
			Type:     AlertTypeFailedLogins,
			Title:    "Repeated failed login attempts",
			Severity: SeverityHigh,
		})
		if err != nil {
			t.Fatalf("CreateAlert() error = %v", err)
		}
		if len(sink.alerts) != 1 {
			t.Fatalf("sink received %d alerts, want 1", len(sink.alerts))
		}
		if sink.alerts[0].ID != alert.ID {
			t.Errorf("sink alert ID = %q, want %q", sink.alerts[0].ID, alert.ID)
		}
	})

	t.Run("round-trips through GetAlert", func(t *testing.T) {
		m, _ := newTestAlertManager(nil)
		created, _ := m.CreateAlert(ctx, &SecurityAlert{
			Type:     "sql_injection",
			Title:    "SQL injection attempt",
			Severity: SeverityHigh,
			EventIDs: []string{"e1", "e2"},
		})
		got, err := m.GetAlert(ctx, created.ID)
		if err != nil {
			t.Fatalf("GetAlert() error = %v", err)
		}
		if got.Type != "sql_injection" || len(got.EventIDs) != 2 {
			t.Errorf("GetAlert() = %+v, want type sql_injection with 2 event ids", got)
		}
	})
}

func TestGetAlertNotFound(t *testing.T) {
	m, _ := newTestAlertManager(nil)
	if _, err := m.GetAlert(context.Background(), "missing"); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("GetAlert() error = %v, want ErrAlertNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// Status transitions
// ---------------------------------------------------------------------------

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to AlertStatus
		want     bool
	}{
		{AlertOpen, AlertInvestigating, true},
		{AlertInvestigating, AlertResolved, true},
		{AlertInvestigating, AlertFalsePositive, true},
		{AlertOpen, AlertResolved, false},
		{AlertOpen, AlertFalsePositive, false},
		{AlertResolved, AlertOpen, false},
		{AlertResolved, AlertInvestigating, false},
		{AlertFalsePositive, AlertResolved, false},
		{AlertInvestigating, AlertOpen, false},
		{AlertOpen, AlertOpen, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestUpdateAlertStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("full lifecycle to resolved", func(t *testing.T) {
		m, _ := newTestAlertManager(nil)
		alert, _ := m.CreateAlert(ctx, &SecurityAlert{Type: "t", Title: "x"})

		updated, err := m.UpdateAlertStatus(ctx, alert.ID, AlertInvestigating)
		if err != nil {
			t.Fatalf("UpdateAlertStatus(investigating) error = %v", err)
		}
		if updated.Status != AlertInvestigating {
			t.Errorf("status = %q, want investigating", updated.Status)
		}

		updated, err = m.UpdateAlertStatus(ctx, alert.ID, AlertResolved)
		if err != nil {
			t.Fatalf("UpdateAlertStatus(resolved) error = %v", err)
		}
		if updated.Status != AlertResolved {
			t.Errorf("status = %q, want resolved", updated.Status)
		}
	})

	t.Run("skipping investigation is rejected", func(t *testing.T) {
		m, _ := newTestAlertManager(nil)
		alert, _ := m.CreateAlert(ctx, &SecurityAlert{Type: "t", Title: "x"})
		if _, err := m.UpdateAlertStatus(ctx, alert.ID, AlertResolved); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("UpdateAlertStatus() error = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("terminal state is frozen", func(t *testing.T) {
		m, _ := newTestAlertManager(nil)
		alert, _ := m.CreateAlert(ctx, &SecurityAlert{Type: "t", Title: "x"})
		_, _ = m.UpdateAlertStatus(ctx, alert.ID, AlertInvestigating)
		_, _ = m.UpdateAlertStatus(ctx, alert.ID, AlertFalsePositive)
		if _, err := m.UpdateAlertStatus(ctx, alert.ID, AlertOpen); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("UpdateAlertStatus() error = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("unknown id is not created", func(t *testing.T) {
		m, _ := newTestAlertManager(nil)
		if _, err := m.UpdateAlertStatus(ctx, "ghost", AlertInvestigating); !errors.Is(err, ErrAlertNotFound) {
			t.Errorf("UpdateAlertStatus() error = %v, want ErrAlertNotFound", err)
		}
		if _, err := m.GetAlert(ctx, "ghost"); !errors.Is(err, ErrAlertNotFound) {
			t.Error("failed status update must not create the alert")
		}
	})
}

// ---------------------------------------------------------------------------
// Active index
// ---------------------------------------------------------------------------

func TestActiveAlerts(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestAlertManager(nil)

	first, _ := m.CreateAlert(ctx, &SecurityAlert{Type: "t", Title: "first"})
	second, _ := m.CreateAlert(ctx, &SecurityAlert{Type: "t", Title: "second"})
	third, _ := m.CreateAlert(ctx, &SecurityAlert{Type: "t", Title: "third"})

	t.Run("newest first", func(t *testing.T) {
		active := m.ActiveAlerts(ctx, 10)
		if len(active) != 3 {
			t.Fatalf("ActiveAlerts() returned %d, want 3", len(active))
		}
		if active[0].ID != third.ID || active[2].ID != first.ID {
			t.Errorf("ActiveAlerts() order = [%s %s %s], want newest first",
				active[0].Title, active[1].Title, active[2].Title)
		}
	})

	t.Run("investigating still counts as active", func(t *testing.T) {
		_, _ = m.UpdateAlertStatus(ctx, second.ID, AlertInvestigating)
		if got := len(m.ActiveAlerts(ctx, 10)); got != 3 {
			t.Errorf("ActiveAlerts() returned %d, want 3", got)
		}
	})

	t.Run("terminal status leaves the index", func(t *testing.T) {
		_, _ = m.UpdateAlertStatus(ctx, second.ID, AlertResolved)
		active := m.ActiveAlerts(ctx, 10)
		if len(active) != 2 {
			t.Fatalf("ActiveAlerts() returned %d, want 2", len(active))
		}
		for _, a := range active {
			if a.ID == second.ID {
				t.Error("resolved alert still listed as active")
			}
		}
	})

	t.Run("limit respected", func(t *testing.T) {
		if got := len(m.ActiveAlerts(ctx, 1)); got != 1 {
			t.Errorf("ActiveAlerts(1) returned %d, want 1", got)
		}
	})
}
