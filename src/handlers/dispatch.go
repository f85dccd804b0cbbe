package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/keyroute/keyroute-server/src/models"
	"github.com/keyroute/keyroute-server/src/services"
)

// Broadcaster pushes live access events to connected dashboard streams
type Broadcaster interface {
	BroadcastEvent(event interface{})
}

// DispatchHandler handles the public access endpoint
type DispatchHandler struct {
	dispatchService *services.DispatchService
	analytics       *services.AnalyticsService
	broadcaster     Broadcaster
}

// NewDispatchHandler creates a new dispatch handler
func NewDispatchHandler(dispatchService *services.DispatchService, analytics *services.AnalyticsService) *DispatchHandler {
	return &DispatchHandler{
		dispatchService: dispatchService,
		analytics:       analytics,
	}
}

// SetBroadcaster wires the live event stream
func (h *DispatchHandler) SetBroadcaster(b Broadcaster) {
	h.broadcaster = b
}

// AccessEvent is the payload broadcast to dashboard streams per connection
type AccessEvent struct {
	KeyID    string    `json:"key_id"`
	KeyName  string    `json:"key_name"`
	Server   string    `json:"server"`
	ClientIP string    `json:"client_ip"`
	At       time.Time `json:"at"`
}

// HandleAccess resolves a dynamic key path to one upstream connection config.
// The response follows the ssconf shape proxy clients expect.
func (h *DispatchHandler) HandleAccess(c *gin.Context) {
	path := c.Param("path")
	result, err := h.dispatchService.Resolve(c.Request.Context(), path, c.ClientIP())
	if err != nil {
		switch {
		case errors.Is(err, services.ErrKeyNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		case errors.Is(err, services.ErrKeyInactive):
			c.JSON(http.StatusForbidden, gin.H{"error": "access key disabled"})
		case errors.Is(err, services.ErrKeyExpired):
			c.JSON(http.StatusGone, gin.H{"error": "access key expired"})
		case errors.Is(err, services.ErrNoEligibleMembers):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no servers available"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	payload := gin.H{
		"server":      result.Member.Hostname,
		"server_port": result.Member.Port,
		"password":    result.Member.Secret,
		"method":      result.Member.Cipher,
	}
	if result.Prefix != nil {
		payload["prefix"] = result.Prefix.Bytes
	}

	h.analytics.TrackKeyDispatched(c.Request.Context(), services.HashPath(path), string(result.Key.Algorithm))

	if h.broadcaster != nil {
		h.broadcaster.BroadcastEvent(AccessEvent{
			KeyID:    result.Key.ID.String(),
			KeyName:  result.Key.Name,
			Server:   result.Member.ServerName,
			ClientIP: c.ClientIP(),
			At:       time.Now(),
		})
	}

	c.JSON(http.StatusOK, payload)
}

// AccessRecordListResponse is a page of access records
type AccessRecordListResponse struct {
	Records []models.AccessRecord `json:"records"`
	Total   int                   `json:"total"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

// HandleListAccessRecords returns recent access records with pagination
func (h *DispatchHandler) HandleListAccessRecords(c *gin.Context) {
	limit := parseQueryInt(c, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	offset := parseQueryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	records, total, err := h.dispatchService.GetAccessRecords(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list access records"})
		return
	}

	c.JSON(http.StatusOK, AccessRecordListResponse{
		Records: records,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// parseQueryInt parses an integer query parameter with a default
func parseQueryInt(c *gin.Context, name string, defaultValue int) int {
	raw := c.Query(name)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}
