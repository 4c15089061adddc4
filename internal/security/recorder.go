// recorder.go implements audit event ingestion and retrieval. Recording an
// event persists it with the retention TTL, prepends its id to the per-user,
// per-IP, and per-action secondary indices (plus a bounded global recent
// index consumed by the pattern sweep), and then runs the inline detectors.
// Detector failures are caught and logged, never propagated: ingestion must
// not fail because detection failed.
package security

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/config"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/store"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/telemetry"
)

// searchCandidateLimit bounds how many ids SearchEvents pulls from the chosen
// index before post-filtering. The search is explicitly best-effort: callers
// must not assume completeness beyond this window.
const searchCandidateLimit = 200

// Detector is an inline anomaly check run synchronously after each recorded
// event. Implementations read bounded samples only; an error aborts just that
// detector, not ingestion.
type Detector interface {
	Name() string
	Check(ctx context.Context, event *AuditEvent) error
}

// Recorder ingests audit events and serves bounded reads over them.
type Recorder struct {
	store     store.Store
	alerts    *AlertManager
	detectors []Detector
	retention time.Duration
	cfg       config.SecurityConfig
}

// NewRecorder creates a Recorder. Detectors are registered afterwards via
// RegisterDetector so the recorder and detectors can share the AlertManager
// without a construction cycle.
func NewRecorder(s store.Store, alerts *AlertManager, cfg config.SecurityConfig) *Recorder {
	return &Recorder{
		store:     s,
		alerts:    alerts,
		retention: cfg.Retention(),
		cfg:       cfg,
	}
}

// RegisterDetector appends a detector to the inline detection chain.
func (r *Recorder) RegisterDetector(d Detector) {
	r.detectors = append(r.detectors, d)
}

// RecordEvent assigns id, timestamp, and risk score, persists the event, and
// maintains the secondary indices. The returned event is the stored record.
func (r *Recorder) RecordEvent(ctx context.Context, event *AuditEvent) (*AuditEvent, error) {
	if event == nil || event.Action == "" || event.Resource == "" {
		return nil, fmt.Errorf("%w: event requires action and resource", ErrInvalidInput)
	}

	event.ID = uuid.New().String()
	event.Timestamp = time.Now().UTC()
	if event.Outcome == "" {
		event.Outcome = OutcomeSuccess
	}
	if event.Severity == "" {
		event.Severity = SeverityLow
	}
	event.RiskScore = RiskScore(event.Outcome, event.Severity, event.Action, event.Metadata)

	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	if err := r.store.Set(ctx, eventKey(event.ID), string(data), r.retention); err != nil {
		return nil, fmt.Errorf("persist event: %w", err)
	}

	r.index(ctx, event)

	if _, err := r.store.Increment(ctx, dailyMetricKey("events", event.Timestamp)); err != nil {
		slog.Warn("event counter increment failed", "error", err)
	}
	telemetry.EventsRecordedTotal.WithLabelValues(string(event.Outcome), string(event.Severity)).Inc()
	telemetry.EventRiskScore.Observe(float64(event.RiskScore))

	r.runDetectors(ctx, event)

	return event, nil
}

// index prepends the event id to every applicable secondary list, refreshing
// each list's TTL. Index failures are logged and ignored — the primary record
// is already durable, and a partial index only narrows later searches.
func (r *Recorder) index(ctx context.Context, event *AuditEvent) {
	push := func(key string) {
		if err := r.store.PushFront(ctx, key, event.ID, r.retention); err != nil {
			slog.Warn("event index push failed", "index", key, "error", err)
		}
	}
	if event.UserID != "" {
		push(userEventsKey(event.UserID))
	}
	if event.Source.IP != "" {
		push(ipEventsKey(event.Source.IP))
	}
	push(actionEventsKey(event.Action))

	// Recent index TTL only needs to outlive the sweep window, not retention.
	recentTTL := r.cfg.Patterns.Window * 2
	if recentTTL <= 0 {
		recentTTL = 2 * time.Hour
	}
	if err := r.store.PushFront(ctx, recentEventsKey, event.ID, recentTTL); err != nil {
		slog.Warn("recent index push failed", "error", err)
	}
}

// runDetectors runs every registered detector under a recover guard so a
// panicking or failing detector can never take down ingestion.
func (r *Recorder) runDetectors(ctx context.Context, event *AuditEvent) {
	for _, d := range r.detectors {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					telemetry.DetectorErrorsTotal.WithLabelValues(d.Name()).Inc()
					slog.Error("detector panicked", "detector", d.Name(), "panic", rec)
				}
			}()
			if err := d.Check(ctx, event); err != nil {
				telemetry.DetectorErrorsTotal.WithLabelValues(d.Name()).Inc()
				slog.Error("detector failed", "detector", d.Name(), "event_id", event.ID, "error", err)
			}
		}()
	}
}

// GetEvent loads a single event by id.
func (r *Recorder) GetEvent(ctx context.Context, id string) (*AuditEvent, error) {
	data, err := r.store.Get(ctx, eventKey(id))
	if err != nil {
		return nil, err
	}
	var event AuditEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", id, err)
	}
	return &event, nil
}

// UserEvents returns the user's events in the [offset, offset+limit) index
// window, newest first. Store failures degrade to an empty result.
func (r *Recorder) UserEvents(ctx context.Context, userID string, limit, offset int) []*AuditEvent {
	return r.eventsFromIndex(ctx, userEventsKey(userID), limit, offset)
}

// IPEvents returns events originating from ip, newest first.
func (r *Recorder) IPEvents(ctx context.Context, ip string, limit, offset int) []*AuditEvent {
	return r.eventsFromIndex(ctx, ipEventsKey(ip), limit, offset)
}

// RecentEvents returns up to limit events from the global recent index.
func (r *Recorder) RecentEvents(ctx context.Context, limit int) []*AuditEvent {
	return r.eventsFromIndex(ctx, recentEventsKey, limit, 0)
}

// eventsFromIndex resolves an id-list window to events, dropping missing or
// corrupt records, and defensively re-sorts by timestamp descending — list
// order is not guaranteed consistent under concurrent writers.
func (r *Recorder) eventsFromIndex(ctx context.Context, listKey string, limit, offset int) []*AuditEvent {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	ids, err := r.store.Range(ctx, listKey, int64(offset), int64(offset+limit-1))
	if err != nil {
		slog.Warn("event listing degraded to empty", "index", listKey, "error", err)
		return nil
	}

	events := make([]*AuditEvent, 0, len(ids))
	for _, id := range ids {
		event, err := r.GetEvent(ctx, id)
		if err != nil {
			continue
		}
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	return events
}

// SearchFilters narrows a SearchEvents candidate set. Zero values are
// ignored. MinRiskScore of 0 matches everything.
type SearchFilters struct {
	UserID       string
	Action       string
	Resource     string
	Outcome      Outcome
	Severity     Severity
	Start        time.Time
	End          time.Time
	MinRiskScore int
}

// SearchEvents picks the most selective index available (user if given, else
// action), pulls a bounded candidate set, and applies the remaining filters
// in memory. Best-effort by design: this is not a query planner, and results
// beyond the candidate window are not found.
func (r *Recorder) SearchEvents(ctx context.Context, filters SearchFilters, limit int) []*AuditEvent {
	if limit <= 0 {
		limit = 50
	}

	var indexKey string
	switch {
	case filters.UserID != "":
		indexKey = userEventsKey(filters.UserID)
	case filters.Action != "":
		indexKey = actionEventsKey(filters.Action)
	default:
		indexKey = recentEventsKey
	}

	candidates := r.eventsFromIndex(ctx, indexKey, searchCandidateLimit, 0)

	matched := make([]*AuditEvent, 0, limit)
	for _, event := range candidates {
		if !matchesFilters(event, filters) {
			continue
		}
		matched = append(matched, event)
		if len(matched) >= limit {
			break
		}
	}
	return matched
}

func matchesFilters(event *AuditEvent, f SearchFilters) bool {
	if f.UserID != "" && event.UserID != f.UserID {
		return false
	}
	if f.Action != "" && !strings.EqualFold(event.Action, f.Action) {
		return false
	}
	if f.Resource != "" && event.Resource != f.Resource {
		return false
	}
	if f.Outcome != "" && event.Outcome != f.Outcome {
		return false
	}
	if f.Severity != "" && event.Severity != f.Severity {
		return false
	}
	if !f.Start.IsZero() && event.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && event.Timestamp.After(f.End) {
		return false
	}
	if f.MinRiskScore > 0 && event.RiskScore < f.MinRiskScore {
		return false
	}
	return true
}

// DailyCounter reads the store's per-day counter for name on day, returning
// 0 when absent or unavailable.
func (r *Recorder) DailyCounter(ctx context.Context, name string, day time.Time) int64 {
	val, err := r.store.Get(ctx, dailyMetricKey(name, day))
	if err != nil {
		return 0
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
