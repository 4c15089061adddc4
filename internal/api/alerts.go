// alerts.go implements the alert endpoints: listing active alerts, fetching a
// single alert, and moving an alert through its status lifecycle.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/security"
)

// updateAlertStatusRequest is the PUT /v1/security/alerts/:id/status payload.
type updateAlertStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// @Summary      List active alerts
// @Description  Returns alerts still in an open or investigating status, newest first.
// @Tags         Security
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "alerts, count"
// @Router       /v1/security/alerts [get]
func (h *SecurityHandlers) ActiveAlerts(c *gin.Context) {
	alerts := h.alerts.ActiveAlerts(c.Request.Context(), limitParam(c, 50))
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

// @Summary      Get an alert
// @Tags         Security
// @Produce      json
// @Success      200  {object}  security.SecurityAlert
// @Failure      404  {object}  map[string]interface{}  "alert not found"
// @Router       /v1/security/alerts/{id} [get]
func (h *SecurityHandlers) GetAlert(c *gin.Context) {
	alert, err := h.alerts.GetAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return
	}
	c.JSON(http.StatusOK, alert)
}

// @Summary      Update alert status
// @Description  Moves an alert along the lifecycle open → investigating → resolved/false_positive. Invalid transitions are rejected.
// @Tags         Security
// @Accept       json
// @Produce      json
// @Success      200  {object}  security.SecurityAlert
// @Failure      400  {object}  map[string]interface{}  "missing status"
// @Failure      404  {object}  map[string]interface{}  "alert not found"
// @Failure      409  {object}  map[string]interface{}  "invalid transition"
// @Router       /v1/security/alerts/{id}/status [put]
func (h *SecurityHandlers) UpdateAlertStatus(c *gin.Context) {
	var req updateAlertStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	alert, err := h.alerts.UpdateAlertStatus(c.Request.Context(), c.Param("id"), security.AlertStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, security.ErrAlertNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		case errors.Is(err, security.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update alert"})
		}
		return
	}
	c.JSON(http.StatusOK, alert)
}
