package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/site_compare_server/internal/model"
	"github.com/qs3c/site_compare_server/internal/pkg/response"
	"github.com/qs3c/site_compare_server/internal/testutil"
)

func batchRouter(h *BatchHandler) *gin.Engine {
	router := gin.New()
	router.POST("/batches", h.Create)
	router.GET("/batches/:id", h.Get)
	return router
}

func postJSON(router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestBatchHandler_Create(t *testing.T) {
	ctx, cleanup := setupBatchService(t, &stubRunner{}, true)
	defer cleanup()
	router := batchRouter(NewBatchHandler(ctx.Service))

	w := postJSON(router, "/batches", gin.H{"urls": []string{"a.com", "b.com"}})

	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["total"])
	batchID := data["batch_id"].(string)
	assert.Contains(t, data["watch_url"], batchID)

	msg, err := ctx.Queue.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, batchID, msg.BatchID)
}

func TestBatchHandler_Create_Errors(t *testing.T) {
	ctx, cleanup := setupBatchService(t, &stubRunner{}, true)
	defer cleanup()
	router := batchRouter(NewBatchHandler(ctx.Service))

	tests := []struct {
		name     string
		body     interface{}
		wantCode int
	}{
		{"missing urls", gin.H{}, response.CodeParamError},
		{"empty urls", gin.H{"urls": []string{"", " "}}, response.CodeParamError},
		{"too many urls", gin.H{"urls": []string{"a", "b", "c", "d", "e"}}, response.CodeParamError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(router, "/batches", tt.body)
			resp := parseResponse(t, w)
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestBatchHandler_Create_NoRedis(t *testing.T) {
	ctx, cleanup := setupBatchService(t, &stubRunner{}, false)
	defer cleanup()

	w := postJSON(batchRouter(NewBatchHandler(ctx.Service)), "/batches", gin.H{"urls": []string{"a.com"}})

	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeServiceUnavailable, resp.Code)
}

func TestBatchHandler_Get(t *testing.T) {
	ctx, cleanup := setupBatchService(t, &stubRunner{}, false)
	defer cleanup()

	batch := testutil.TestBatch(t, ctx.DB, testutil.WithURLs("https://a.com", "https://b.com"))
	testutil.TestSiteSuccess(t, ctx.DB, batch.ID, 1, "https://a.com", testutil.SampleRecord("a.com", 90))
	testutil.TestSiteFailure(t, ctx.DB, batch.ID, 2, "https://b.com", "FormNotFound", "form not found")

	req := httptest.NewRequest("GET", "/batches/"+batch.ID, nil)
	w := httptest.NewRecorder()
	batchRouter(NewBatchHandler(ctx.Service)).ServeHTTP(w, req)

	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, batch.ID, data["id"])
	assert.Equal(t, model.BatchDone, data["status"])

	sites := data["sites"].([]interface{})
	require.Len(t, sites, 2)
	first := sites[0].(map[string]interface{})
	assert.Equal(t, float64(90), first["data"].(map[string]interface{})["Overall Score"])
	second := sites[1].(map[string]interface{})
	assert.Equal(t, "FormNotFound", second["error"])
	assert.Equal(t, "form not found", second["reason"])
}

func TestBatchHandler_Get_NotFound(t *testing.T) {
	ctx, cleanup := setupBatchService(t, &stubRunner{}, false)
	defer cleanup()

	req := httptest.NewRequest("GET", "/batches/missing", nil)
	w := httptest.NewRecorder()
	batchRouter(NewBatchHandler(ctx.Service)).ServeHTTP(w, req)

	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}
