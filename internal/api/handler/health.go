package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/site_compare_server/internal/pkg/queue"
	"github.com/qs3c/site_compare_server/internal/pkg/ws"
)

type HealthHandler struct {
	hub   *ws.Hub
	queue *queue.Queue
}

// NewHealthHandler q 为 nil 时不报告队列长度
func NewHealthHandler(hub *ws.Hub, q *queue.Queue) *HealthHandler {
	return &HealthHandler{hub: hub, queue: q}
}

// Healthz 存活检查
// GET /healthz
func (h *HealthHandler) Healthz(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.hub != nil {
		body["watchers"] = h.hub.ConnectionCount()
	}
	if h.queue != nil {
		if n, err := h.queue.Length(c.Request.Context()); err == nil {
			body["queued"] = n
		} else {
			body["queued"] = -1
		}
	}
	c.JSON(http.StatusOK, body)
}
