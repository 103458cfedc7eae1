package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/site_compare_server/internal/pkg/pubsub"
)

// Hub 按批次 ID 管理观察者连接
type Hub struct {
	// 同一批次可以有多个观察者（多标签页、重连等场景）
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	BatchID string
	Conn    *websocket.Conn
	mu      sync.Mutex // 写锁，防止并发写入
}

// Message 推送给观察者的事件，Type 与事件流中的事件名一致
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.BatchID] == nil {
		h.clients[client.BatchID] = make(map[*Client]struct{})
	}
	h.clients[client.BatchID][client] = struct{}{}

	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	logrus.WithFields(logrus.Fields{
		"batch_id":    client.BatchID,
		"batch_conns": len(h.clients[client.BatchID]),
		"total":       total,
	}).Info("watcher connected")
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[client.BatchID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.BatchID)
		}
	}
	logrus.WithField("batch_id", client.BatchID).Info("watcher disconnected")
}

// SendToBatch 向批次的所有观察者发送消息
func (h *Hub) SendToBatch(batchID string, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns, ok := h.clients[batchID]
	if !ok {
		h.mu.RUnlock()
		return nil
	}
	// 复制一份引用，避免长时间持锁
	clients := make([]*Client, 0, len(conns))
	for c := range conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.mu.Lock()
		err := c.Conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			logrus.WithError(err).WithField("batch_id", batchID).Warn("websocket write failed")
		}
	}
	return nil
}

// Forward 把 worker 通过 pubsub 发布的事件转发给该批次的观察者，作为 Subscriber 的回调使用
func (h *Hub) Forward(msg *pubsub.BatchMessage) {
	if !h.IsWatched(msg.BatchID) {
		return
	}
	if err := h.SendToBatch(msg.BatchID, &Message{Type: msg.Event, Data: msg.Data}); err != nil {
		logrus.WithError(err).WithField("batch_id", msg.BatchID).Warn("failed to forward event")
	}
}

// IsWatched 批次是否有观察者
func (h *Hub) IsWatched(batchID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, ok := h.clients[batchID]
	return ok && len(conns) > 0
}

// ConnectionCount 获取在线连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
