package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/keyroute/keyroute-server/src/models"
	"github.com/keyroute/keyroute-server/src/services"
)

// DynamicKeyHandler handles dynamic key CRUD for the dashboard
type DynamicKeyHandler struct {
	keyService *services.KeyService
	analytics  *services.AnalyticsService
}

// NewDynamicKeyHandler creates a new dynamic key handler
func NewDynamicKeyHandler(keyService *services.KeyService, analytics *services.AnalyticsService) *DynamicKeyHandler {
	return &DynamicKeyHandler{
		keyService: keyService,
		analytics:  analytics,
	}
}

// DynamicKeyRequest represents the create/edit form payload
type DynamicKeyRequest struct {
	Name      string     `json:"name" binding:"required"`
	Path      string     `json:"path"`
	Algorithm string     `json:"algorithm" binding:"required"`
	Prefix    string     `json:"prefix"`
	ExpiresAt *time.Time `json:"expires_at"`
	IsActive  *bool      `json:"is_active"`
}

// toParams converts the request body into service params. is_active
// defaults to true, matching the dashboard's create form.
func (r DynamicKeyRequest) toParams() services.DynamicKeyParams {
	isActive := true
	if r.IsActive != nil {
		isActive = *r.IsActive
	}
	return services.DynamicKeyParams{
		Name:      r.Name,
		Path:      r.Path,
		Algorithm: models.Algorithm(r.Algorithm),
		Prefix:    models.PrefixType(r.Prefix),
		ExpiresAt: r.ExpiresAt,
		IsActive:  isActive,
	}
}

// writeKeyError maps service errors to HTTP statuses
func writeKeyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidAlgorithm), errors.Is(err, services.ErrInvalidPrefix):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrPathTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "path already in use"})
	case errors.Is(err, services.ErrKeyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "dynamic key not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// parseIDParam parses the :id path parameter
func parseIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// DynamicKeyListResponse represents a list of dynamic keys with total count
type DynamicKeyListResponse struct {
	Keys  []*models.DynamicKey `json:"keys"`
	Total int                  `json:"total"`
}

// HandleList returns all dynamic keys
func (h *DynamicKeyHandler) HandleList(c *gin.Context) {
	keys, err := h.keyService.GetDynamicKeys(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list dynamic keys"})
		return
	}

	c.JSON(http.StatusOK, DynamicKeyListResponse{
		Keys:  keys,
		Total: len(keys),
	})
}

// HandleCreate creates a new dynamic key. A blank path gets a random slug.
func (h *DynamicKeyHandler) HandleCreate(c *gin.Context) {
	var req DynamicKeyRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	dk, err := h.keyService.CreateDynamicKey(c.Request.Context(), req.toParams())
	if err != nil {
		writeKeyError(c, err)
		return
	}

	h.analytics.TrackKeyCreated(c.Request.Context(), services.HashPath(dk.Path), string(dk.Algorithm))

	c.JSON(http.StatusCreated, dk)
}

// HandleGet returns one dynamic key by ID
func (h *DynamicKeyHandler) HandleGet(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	dk, err := h.keyService.GetDynamicKey(c.Request.Context(), id)
	if err != nil {
		writeKeyError(c, err)
		return
	}

	c.JSON(http.StatusOK, dk)
}

// HandleUpdate replaces the editable fields of a dynamic key
func (h *DynamicKeyHandler) HandleUpdate(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req DynamicKeyRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	dk, err := h.keyService.UpdateDynamicKey(c.Request.Context(), id, req.toParams())
	if err != nil {
		writeKeyError(c, err)
		return
	}

	c.JSON(http.StatusOK, dk)
}

// HandleDelete removes a dynamic key
func (h *DynamicKeyHandler) HandleDelete(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.keyService.DeleteDynamicKey(c.Request.Context(), id); err != nil {
		writeKeyError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// SetMembersRequest replaces the member set of a dynamic key
type SetMembersRequest struct {
	MemberIDs []uuid.UUID `json:"member_ids"`
}

// HandleSetMembers replaces the upstream keys a dynamic key balances across
func (h *DynamicKeyHandler) HandleSetMembers(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req SetMembersRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.keyService.SetMembers(c.Request.Context(), id, req.MemberIDs); err != nil {
		writeKeyError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "updated",
		"members": len(req.MemberIDs),
	})
}
