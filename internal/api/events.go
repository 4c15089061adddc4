// events.go implements the audit event handlers: recording, lookup, the
// per-user and per-IP history views, search, and the activity report.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/security"
)

// SecurityHandlers serves the audit event, alert, and report endpoints.
type SecurityHandlers struct {
	recorder *security.Recorder
	alerts   *security.AlertManager
}

// NewSecurityHandlers creates the security endpoint handler set.
func NewSecurityHandlers(recorder *security.Recorder, alerts *security.AlertManager) *SecurityHandlers {
	return &SecurityHandlers{recorder: recorder, alerts: alerts}
}

// recordEventRequest is the POST /v1/security/events payload. Outcome and
// severity are free-form strings normalised server-side so that callers in
// other languages do not need to match Go's enum casing.
type recordEventRequest struct {
	UserID     string               `json:"user_id"`
	SessionID  string               `json:"session_id"`
	Action     string               `json:"action" binding:"required"`
	Resource   string               `json:"resource" binding:"required"`
	ResourceID string               `json:"resource_id"`
	Outcome    string               `json:"outcome"`
	Severity   string               `json:"severity"`
	Source     security.EventSource `json:"source"`
	Metadata   map[string]any       `json:"metadata"`
}

// @Summary      Record an audit event
// @Description  Persists a security-relevant event, computes its risk score, and runs the inline anomaly detectors.
// @Tags         Security
// @Accept       json
// @Produce      json
// @Success      201  {object}  security.AuditEvent
// @Failure      400  {object}  map[string]interface{}  "validation error"
// @Failure      500  {object}  map[string]interface{}  "store unavailable"
// @Router       /v1/security/events [post]
func (h *SecurityHandlers) RecordEvent(c *gin.Context) {
	var req recordEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action and resource are required"})
		return
	}

	event := &security.AuditEvent{
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		Action:     req.Action,
		Resource:   req.Resource,
		ResourceID: req.ResourceID,
		Outcome:    security.ParseOutcome(req.Outcome),
		Severity:   security.ParseSeverity(req.Severity),
		Source:     req.Source,
		Metadata:   req.Metadata,
	}
	if event.Source.IP == "" {
		event.Source.IP = c.ClientIP()
	}

	recorded, err := h.recorder.RecordEvent(c.Request.Context(), event)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record event"})
		return
	}
	c.JSON(http.StatusCreated, recorded)
}

// @Summary      Get an audit event
// @Tags         Security
// @Produce      json
// @Success      200  {object}  security.AuditEvent
// @Failure      404  {object}  map[string]interface{}  "event not found"
// @Router       /v1/security/events/{id} [get]
func (h *SecurityHandlers) GetEvent(c *gin.Context) {
	event, err := h.recorder.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	c.JSON(http.StatusOK, event)
}

// @Summary      Search audit events
// @Description  Filters a bounded candidate set of recent events. Results beyond the candidate window are not returned; narrow by user_id or action for deeper history.
// @Tags         Security
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "events, count"
// @Router       /v1/security/events [get]
func (h *SecurityHandlers) SearchEvents(c *gin.Context) {
	filters := security.SearchFilters{
		UserID:   c.Query("user_id"),
		Action:   c.Query("action"),
		Resource: c.Query("resource"),
	}
	if outcome := c.Query("outcome"); outcome != "" {
		filters.Outcome = security.ParseOutcome(outcome)
	}
	if severity := c.Query("severity"); severity != "" {
		filters.Severity = security.ParseSeverity(severity)
	}
	if start := c.Query("start"); start != "" {
		if t, err := time.Parse(time.RFC3339, start); err == nil {
			filters.Start = t
		}
	}
	if end := c.Query("end"); end != "" {
		if t, err := time.Parse(time.RFC3339, end); err == nil {
			filters.End = t
		}
	}
	if minRisk := c.Query("min_risk_score"); minRisk != "" {
		if n, err := strconv.Atoi(minRisk); err == nil {
			filters.MinRiskScore = n
		}
	}

	events := h.recorder.SearchEvents(c.Request.Context(), filters, limitParam(c, 50))
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// @Summary      List a user's recent events
// @Tags         Security
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "events, count"
// @Router       /v1/security/users/{user_id}/events [get]
func (h *SecurityHandlers) UserEvents(c *gin.Context) {
	events := h.recorder.UserEvents(c.Request.Context(), c.Param("user_id"),
		limitParam(c, 50), offsetParam(c))
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// @Summary      List events from a source IP
// @Tags         Security
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "events, count"
// @Router       /v1/security/ips/{ip}/events [get]
func (h *SecurityHandlers) IPEvents(c *gin.Context) {
	events := h.recorder.IPEvents(c.Request.Context(), c.Param("ip"),
		limitParam(c, 50), offsetParam(c))
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// @Summary      Security activity report
// @Description  Aggregates daily counters and a recent-event sample over the requested range (default: trailing 24h).
// @Tags         Security
// @Produce      json
// @Success      200  {object}  security.Report
// @Router       /v1/security/report [get]
func (h *SecurityHandlers) GetReport(c *gin.Context) {
	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour)
	if s := c.Query("start"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			start = t
		}
	}
	if e := c.Query("end"); e != "" {
		if t, err := time.Parse(time.RFC3339, e); err == nil {
			end = t
		}
	}
	if end.Before(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must be after start"})
		return
	}

	report := h.recorder.GenerateReport(c.Request.Context(), h.alerts, start, end)
	c.JSON(http.StatusOK, report)
}

// limitParam reads the ?limit query parameter, clamped to [1, 500].
func limitParam(c *gin.Context, def int) int {
	n, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || n <= 0 {
		return def
	}
	if n > 500 {
		return 500
	}
	return n
}

// offsetParam reads the ?offset query parameter, defaulting to 0.
func offsetParam(c *gin.Context) int {
	n, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
