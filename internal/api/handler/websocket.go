package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/site_compare_server/internal/pkg/response"
	"github.com/qs3c/site_compare_server/internal/pkg/ws"
)

var upgrader = websocket.Upgrader{
	// 跨域由 CORS 中间件控制
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type WebSocketHandler struct {
	hub *ws.Hub
}

func NewWebSocketHandler(hub *ws.Hub) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
	}
}

// Handle 观察异步批次的事件
// GET /api/v1/ws?batch_id=xxx
func (h *WebSocketHandler) Handle(c *gin.Context) {
	batchID := c.Query("batch_id")
	if batchID == "" {
		response.ParamError(c, "missing batch_id")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("failed to upgrade connection")
		return
	}

	client := &ws.Client{
		BatchID: batchID,
		Conn:    conn,
	}
	h.hub.Register(client)

	// 观察者不发送消息，读循环只用于检测断开
	go func() {
		defer h.hub.Unregister(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}
