// audit.go provides Gin middleware that records each request as an audit
// event through the security recorder. This is the inline ingestion path:
// every recorded event is scored and run through the detectors, so anomalies
// surface within one request of occurring.
package middleware

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/safego"
	"github.com/anuraag2601/ai-travel-planner-sub001/internal/security"
)

// Context keys under which upstream auth middleware stores caller identity.
const (
	UserIDKey    = "user_id"
	SessionIDKey = "session_id"
)

// recordTimeout bounds the asynchronous event write so a slow store cannot
// pile up goroutines behind a traffic burst.
const recordTimeout = 5 * time.Second

// AuditMiddleware records every request (except OPTIONS) as an audit event.
// Recording happens asynchronously after the response is written, so the
// request path never waits on the store or the detectors.
func AuditMiddleware(recorder *security.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == "OPTIONS" {
			return
		}

		event := &security.AuditEvent{
			Action:   actionFor(c),
			Resource: resourceFor(c.Request.URL.Path),
			Outcome:  outcomeFor(c.Writer.Status()),
			Severity: severityFor(c.Request.Method, c.Writer.Status()),
			Source: security.EventSource{
				IP:        c.ClientIP(),
				UserAgent: c.Request.UserAgent(),
				Method:    c.Request.Method,
				Path:      c.Request.URL.Path,
				Referer:   c.Request.Referer(),
			},
			Metadata: map[string]any{
				"status_code": c.Writer.Status(),
			},
		}
		if userID := c.GetString(UserIDKey); userID != "" {
			event.UserID = userID
		}
		if sessionID := c.GetString(SessionIDKey); sessionID != "" {
			event.SessionID = sessionID
		}
		if requestID := c.GetString(RequestIDKey); requestID != "" {
			event.Metadata["request_id"] = requestID
		}

		safego.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
			defer cancel()
			// Failures are logged by the recorder; a lost inline event is
			// preferable to coupling request latency to the store.
			_, _ = recorder.RecordEvent(ctx, event)
		})
	}
}

// actionFor derives the event action verb from the request. Auth endpoints
// map to "login" so the brute-force detector sees them; everything else is
// "<verb> <resource>".
func actionFor(c *gin.Context) string {
	path := c.Request.URL.Path
	if strings.Contains(path, "/login") || strings.Contains(path, "/auth") {
		return "login"
	}

	verb := map[string]string{
		"GET":    "read",
		"POST":   "create",
		"PUT":    "update",
		"PATCH":  "update",
		"DELETE": "delete",
	}[c.Request.Method]
	if verb == "" {
		verb = strings.ToLower(c.Request.Method)
	}
	return fmt.Sprintf("%s %s", verb, resourceFor(path))
}

// resourceFor maps a URL path to a coarse resource name.
func resourceFor(path string) string {
	for _, resource := range []string{"itineraries", "flights", "hotels", "users", "alerts", "events", "keys", "admin"} {
		if strings.Contains(path, "/"+resource) {
			return resource
		}
	}
	return "api"
}

// outcomeFor maps an HTTP status to an event outcome.
func outcomeFor(status int) security.Outcome {
	switch {
	case status == 401 || status == 403:
		return security.OutcomeDenied
	case status >= 400:
		return security.OutcomeFailure
	default:
		return security.OutcomeSuccess
	}
}

// severityFor grades a request: denied writes are high, other failures
// medium, successful writes medium, reads low.
func severityFor(method string, status int) security.Severity {
	write := method != "GET" && method != "HEAD"
	switch {
	case (status == 401 || status == 403) && write:
		return security.SeverityHigh
	case status >= 400:
		return security.SeverityMedium
	case write:
		return security.SeverityMedium
	default:
		return security.SeverityLow
	}
}
