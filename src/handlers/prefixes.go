package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/keyroute/keyroute-server/src/models"
)

// PrefixHandler serves the static prefix catalog
type PrefixHandler struct{}

// NewPrefixHandler creates a new prefix handler
func NewPrefixHandler() *PrefixHandler {
	return &PrefixHandler{}
}

// HandleList returns all prefix catalog entries in display order
func (h *PrefixHandler) HandleList(c *gin.Context) {
	catalog := models.PrefixCatalog()
	c.JSON(http.StatusOK, gin.H{
		"prefixes": catalog,
		"total":    len(catalog),
	})
}
