// keys.go implements the API key management endpoints. The plaintext secret
// appears exactly twice in a key's life: in the generate response and in the
// rotate response for its replacement. Every other response carries only the
// key's metadata.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anuraag2601/ai-travel-planner-sub001/internal/keys"
)

// KeyHandlers serves the API key endpoints.
type KeyHandlers struct {
	manager *keys.Manager
}

// NewKeyHandlers creates the key endpoint handler set.
func NewKeyHandlers(manager *keys.Manager) *KeyHandlers {
	return &KeyHandlers{manager: manager}
}

// createKeyRequest is the POST /v1/keys payload.
type createKeyRequest struct {
	Name        string   `json:"name" binding:"required"`
	UserID      string   `json:"user_id" binding:"required"`
	Permissions []string `json:"permissions"`
	ExpiryDays  int      `json:"expiry_days"`
}

// validateKeyRequest is the POST /v1/keys/validate payload.
type validateKeyRequest struct {
	Key string `json:"key" binding:"required"`
}

// @Summary      Generate an API key
// @Description  Creates a new key for a user. The response is the only time the plaintext secret is available; only its digest is stored.
// @Tags         Keys
// @Accept       json
// @Produce      json
// @Success      201  {object}  keys.ApiKey
// @Failure      400  {object}  map[string]interface{}  "validation error"
// @Router       /v1/keys [post]
func (h *KeyHandlers) CreateKey(c *gin.Context) {
	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and user_id are required"})
		return
	}

	key, err := h.manager.Generate(c.Request.Context(), req.Name, req.UserID, req.Permissions, req.ExpiryDays)
	if err != nil {
		if errors.Is(err, keys.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate key"})
		return
	}
	c.JSON(http.StatusCreated, key)
}

// @Summary      Validate an API key
// @Description  Checks a presented secret against the stored digest and returns the key's metadata when it is active and unexpired.
// @Tags         Keys
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "valid, key"
// @Failure      401  {object}  map[string]interface{}  "valid: false"
// @Router       /v1/keys/validate [post]
func (h *KeyHandlers) ValidateKey(c *gin.Context) {
	var req validateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}

	key, err := h.manager.Validate(c.Request.Context(), req.Key)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"valid": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "key": redacted(key)})
}

// @Summary      List a user's keys
// @Tags         Keys
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "keys, count"
// @Router       /v1/users/{user_id}/keys [get]
func (h *KeyHandlers) UserKeys(c *gin.Context) {
	userKeys := h.manager.UserKeys(c.Request.Context(), c.Param("user_id"))
	out := make([]*keys.ApiKey, 0, len(userKeys))
	for _, key := range userKeys {
		out = append(out, redacted(key))
	}
	c.JSON(http.StatusOK, gin.H{"keys": out, "count": len(out)})
}

// @Summary      Rotate a user's keys
// @Description  Generates replacements for keys past the rotation interval. Old keys keep validating through the grace period so callers can cut over without downtime.
// @Tags         Keys
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "rotated, count"
// @Router       /v1/users/{user_id}/keys/rotate [post]
func (h *KeyHandlers) RotateUserKeys(c *gin.Context) {
	rotated, err := h.manager.RotateUserKeys(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rotation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rotated": rotated, "count": len(rotated)})
}

// @Summary      Trigger a fleet-wide rotation sweep
// @Tags         Keys
// @Produce      json
// @Success      202  {object}  map[string]interface{}  "status: accepted"
// @Router       /v1/keys/rotate [post]
func (h *KeyHandlers) RotateAll(c *gin.Context) {
	if err := h.manager.RotateAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rotation sweep failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// @Summary      Deactivate an API key
// @Tags         Keys
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: deactivated"
// @Failure      404  {object}  map[string]interface{}  "key not found"
// @Router       /v1/keys/{id} [delete]
func (h *KeyHandlers) DeactivateKey(c *gin.Context) {
	if err := h.manager.Deactivate(c.Request.Context(), c.Param("id"), "manual"); err != nil {
		if errors.Is(err, keys.ErrKeyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to deactivate key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

// redacted returns a copy of key with the secret digest blanked.
func redacted(key *keys.ApiKey) *keys.ApiKey {
	out := *key
	out.Secret = ""
	return &out
}
