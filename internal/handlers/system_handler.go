package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health - GET /health
// Unauthenticated; terminals use it as their connectivity probe.
func (h *Handler) Health(c *gin.Context) {
	body := gin.H{
		"status":     "online",
		"instanceId": h.InstanceID,
	}
	if h.Hub != nil {
		body["subscribers"] = h.Hub.Subscribers()
	}
	c.JSON(http.StatusOK, body)
}

// Notifications - GET /api/ws
func (h *Handler) Notifications(c *gin.Context) {
	if h.Hub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notifications are disabled"})
		return
	}
	h.Hub.ServeWS(c.Writer, c.Request)
}
