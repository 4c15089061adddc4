// router.go bridges the security engine's alert stream onto notification
// channels: critical alerts page, high alerts go to chat, everything else
// relies on the daily report. Dispatch is fire-and-forget from the engine's
// point of view — a slow or failing channel never blocks alert creation.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/safego"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/security"
)

// Channel names the router dispatches to. Channels are matched against the
// configured notification channel names.
const (
	ChannelEmail = "email"
	ChannelChat  = "chat"
	ChannelPager = "pager"
)

// dispatchTimeout bounds a single asynchronous delivery attempt.
const dispatchTimeout = 10 * time.Second

// AlertRouter implements security.AlertSink over a MultiNotifier.
type AlertRouter struct {
	notifier *MultiNotifier
}

// NewAlertRouter creates an AlertRouter.
func NewAlertRouter(notifier *MultiNotifier) *AlertRouter {
	return &AlertRouter{notifier: notifier}
}

// AlertCreated routes a freshly created alert to the channel matching its
// severity. Delivery happens on a background goroutine with its own timeout.
func (r *AlertRouter) AlertCreated(ctx context.Context, alert *security.SecurityAlert) {
	var channel string
	switch alert.Severity {
	case security.SeverityCritical:
		channel = ChannelPager
	case security.SeverityHigh:
		channel = ChannelChat
	default:
		return
	}

	msg := &Message{
		Timestamp: alert.Timestamp,
		Channel:   channel,
		Severity:  string(alert.Severity),
		Title:     alert.Title,
		Body: fmt.Sprintf("[%s] %s — %s (alert %s, %d event(s))",
			alert.Severity, alert.Type, alert.Description, alert.ID, len(alert.EventIDs)),
		Payload: alert,
	}

	safego.Go(func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		// Errors are already counted and logged per channel by the notifier.
		_ = r.notifier.Send(sendCtx, msg)
	})
}

// SendReport delivers a generated security report to the email channel.
func (r *AlertRouter) SendReport(ctx context.Context, report *security.Report) error {
	msg := &Message{
		Timestamp: report.GeneratedAt,
		Channel:   ChannelEmail,
		Severity:  "low",
		Title: fmt.Sprintf("Security report %s — %s",
			report.Start.Format("2006-01-02"), report.End.Format("2006-01-02")),
		Body: fmt.Sprintf("%d events, %d alerts (%d active), avg risk %.1f",
			report.TotalEvents, report.TotalAlerts, report.ActiveAlerts, report.AverageRiskScore),
		Payload: report,
	}
	return r.notifier.Send(ctx, msg)
}
