package handler

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/site_compare_server/internal/pkg/pubsub"
	"github.com/qs3c/site_compare_server/internal/pkg/response"
	"github.com/qs3c/site_compare_server/internal/pkg/ws"
)

func TestWebSocketHandler_MissingBatchID(t *testing.T) {
	router := gin.New()
	router.GET("/ws", NewWebSocketHandler(ws.NewHub()).Handle)

	req := httptest.NewRequest("GET", "/ws", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestWebSocketHandler_Watch(t *testing.T) {
	hub := ws.NewHub()
	router := gin.New()
	router.GET("/ws", NewWebSocketHandler(hub).Handle)
	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?batch_id=b1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.IsWatched("b1") }, time.Second, 10*time.Millisecond)

	hub.Forward(&pubsub.BatchMessage{BatchID: "b1", Event: "start_url", Data: []byte(`{"index":1}`)})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"start_url","data":{"index":1}}`, string(data))

	conn.Close()
	assert.Eventually(t, func() bool { return !hub.IsWatched("b1") }, time.Second, 10*time.Millisecond)
}
