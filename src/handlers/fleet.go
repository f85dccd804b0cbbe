package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/keyroute/keyroute-server/src/models"
	"github.com/keyroute/keyroute-server/src/services"
)

// FleetHandler handles server and upstream key management
type FleetHandler struct {
	fleetService *services.FleetService
}

// NewFleetHandler creates a new fleet handler
func NewFleetHandler(fleetService *services.FleetService) *FleetHandler {
	return &FleetHandler{fleetService: fleetService}
}

// writeFleetError maps service errors to HTTP statuses
func writeFleetError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrServerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
	case errors.Is(err, services.ErrUpstreamKeyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "upstream key not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// ServerRequest represents the create/edit payload for a server
type ServerRequest struct {
	Name     string `json:"name" binding:"required"`
	Hostname string `json:"hostname" binding:"required"`
	IsActive *bool  `json:"is_active"`
}

// ServerListResponse represents a list of servers with total count
type ServerListResponse struct {
	Servers []*models.Server `json:"servers"`
	Total   int              `json:"total"`
}

// HandleListServers returns all servers
func (h *FleetHandler) HandleListServers(c *gin.Context) {
	servers, err := h.fleetService.GetServers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list servers"})
		return
	}

	c.JSON(http.StatusOK, ServerListResponse{
		Servers: servers,
		Total:   len(servers),
	})
}

// HandleCreateServer registers a backend server
func (h *FleetHandler) HandleCreateServer(c *gin.Context) {
	var req ServerRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	srv, err := h.fleetService.CreateServer(c.Request.Context(), req.Name, req.Hostname)
	if err != nil {
		writeFleetError(c, err)
		return
	}

	c.JSON(http.StatusCreated, srv)
}

// HandleUpdateServer replaces the editable fields of a server
func (h *FleetHandler) HandleUpdateServer(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req ServerRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	srv, err := h.fleetService.UpdateServer(c.Request.Context(), id, req.Name, req.Hostname, isActive)
	if err != nil {
		writeFleetError(c, err)
		return
	}

	c.JSON(http.StatusOK, srv)
}

// HandleDeleteServer removes a server and its upstream keys
func (h *FleetHandler) HandleDeleteServer(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.fleetService.DeleteServer(c.Request.Context(), id); err != nil {
		writeFleetError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// UpstreamKeyRequest represents the create/edit payload for an upstream key
type UpstreamKeyRequest struct {
	Name     string `json:"name" binding:"required"`
	Cipher   string `json:"cipher"`
	Secret   string `json:"secret" binding:"required"`
	Port     int    `json:"port" binding:"required"`
	IsActive *bool  `json:"is_active"`
}

// UpstreamKeyListResponse represents a server's upstream keys with total count
type UpstreamKeyListResponse struct {
	Keys  []*models.UpstreamKey `json:"keys"`
	Total int                   `json:"total"`
}

// HandleListServerKeys returns the upstream keys of one server
func (h *FleetHandler) HandleListServerKeys(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	keys, err := h.fleetService.GetServerKeys(c.Request.Context(), id)
	if err != nil {
		writeFleetError(c, err)
		return
	}

	c.JSON(http.StatusOK, UpstreamKeyListResponse{
		Keys:  keys,
		Total: len(keys),
	})
}

// HandleCreateServerKey adds an upstream key to a server
func (h *FleetHandler) HandleCreateServerKey(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req UpstreamKeyRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	cipher := req.Cipher
	if cipher == "" {
		cipher = "chacha20-ietf-poly1305"
	}

	uk, err := h.fleetService.CreateUpstreamKey(c.Request.Context(), id, req.Name, cipher, req.Secret, req.Port)
	if err != nil {
		writeFleetError(c, err)
		return
	}

	c.JSON(http.StatusCreated, uk)
}

// HandleUpdateKey replaces the editable fields of an upstream key
func (h *FleetHandler) HandleUpdateKey(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req UpstreamKeyRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	cipher := req.Cipher
	if cipher == "" {
		cipher = "chacha20-ietf-poly1305"
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	uk, err := h.fleetService.UpdateUpstreamKey(c.Request.Context(), id, req.Name, cipher, req.Secret, req.Port, isActive)
	if err != nil {
		writeFleetError(c, err)
		return
	}

	c.JSON(http.StatusOK, uk)
}

// HandleDeleteKey removes an upstream key
func (h *FleetHandler) HandleDeleteKey(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.fleetService.DeleteUpstreamKey(c.Request.Context(), id); err != nil {
		writeFleetError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
