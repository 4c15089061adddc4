// report.go aggregates daily counters and a bounded recent sample into the
// security report consumed by the daily report job and the reporting API.
package security

import (
	"context"
	"sort"
	"time"
)

// Report summarises security activity over a date range. Counts come from
// the store's daily counters; breakdowns come from a bounded recent-event
// sample and are therefore best-effort, matching the search semantics.
type Report struct {
	Start             time.Time        `json:"start"`
	End               time.Time        `json:"end"`
	GeneratedAt       time.Time        `json:"generated_at"`
	TotalEvents       int64            `json:"total_events"`
	TotalAlerts       int64            `json:"total_alerts"`
	ActiveAlerts      int              `json:"active_alerts"`
	EventsByOutcome   map[string]int   `json:"events_by_outcome"`
	EventsBySeverity  map[string]int   `json:"events_by_severity"`
	TopActions        []NamedCount     `json:"top_actions"`
	TopSourceIPs      []NamedCount     `json:"top_source_ips"`
	AverageRiskScore  float64          `json:"average_risk_score"`
	HighRiskEvents    int              `json:"high_risk_events"`
	AlertsBySeverity  map[string]int   `json:"alerts_by_severity"`
	SampledEventCount int              `json:"sampled_event_count"`
}

// NamedCount pairs a label with an occurrence count for top-N listings.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// reportSampleSize bounds the recent-event sample the breakdowns are built
// from. Totals are exact (daily counters); distributions are approximate.
const reportSampleSize = 500

// reportTopN is how many entries the top-action and top-IP listings carry.
const reportTopN = 10

// GenerateReport builds a Report covering [start, end]. Totals sum the daily
// counters for each day in the range; distribution fields are computed from
// a bounded sample of recent events filtered to the range.
func (r *Recorder) GenerateReport(ctx context.Context, alerts *AlertManager, start, end time.Time) *Report {
	report := &Report{
		Start:            start.UTC(),
		End:              end.UTC(),
		GeneratedAt:      time.Now().UTC(),
		EventsByOutcome:  make(map[string]int),
		EventsBySeverity: make(map[string]int),
		AlertsBySeverity: make(map[string]int),
	}

	for day := start.UTC().Truncate(24 * time.Hour); !day.After(end.UTC()); day = day.Add(24 * time.Hour) {
		report.TotalEvents += r.DailyCounter(ctx, "events", day)
		report.TotalAlerts += r.DailyCounter(ctx, "alerts", day)
	}

	active := alerts.ActiveAlerts(ctx, 100)
	report.ActiveAlerts = len(active)
	for _, alert := range active {
		report.AlertsBySeverity[string(alert.Severity)]++
	}

	actionCounts := make(map[string]int)
	ipCounts := make(map[string]int)
	var riskSum int

	for _, event := range r.RecentEvents(ctx, reportSampleSize) {
		if event.Timestamp.Before(report.Start) || event.Timestamp.After(report.End) {
			continue
		}
		report.SampledEventCount++
		report.EventsByOutcome[string(event.Outcome)]++
		report.EventsBySeverity[string(event.Severity)]++
		actionCounts[event.Action]++
		if event.Source.IP != "" {
			ipCounts[event.Source.IP]++
		}
		riskSum += event.RiskScore
		if event.RiskScore >= 70 {
			report.HighRiskEvents++
		}
	}

	if report.SampledEventCount > 0 {
		report.AverageRiskScore = float64(riskSum) / float64(report.SampledEventCount)
	}
	report.TopActions = topCounts(actionCounts, reportTopN)
	report.TopSourceIPs = topCounts(ipCounts, reportTopN)

	return report
}

// topCounts returns the n highest counts, ties broken alphabetically so
// report output is stable.
func topCounts(counts map[string]int, n int) []NamedCount {
	out := make([]NamedCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, NamedCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
