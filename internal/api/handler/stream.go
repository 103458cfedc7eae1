package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/site_compare_server/internal/api/middleware"
	"github.com/qs3c/site_compare_server/internal/model"
	"github.com/qs3c/site_compare_server/internal/model/dto"
	"github.com/qs3c/site_compare_server/internal/orchestrator"
	"github.com/qs3c/site_compare_server/internal/pkg/response"
	"github.com/qs3c/site_compare_server/internal/service"
)

type StreamHandler struct {
	batchService *service.BatchService
}

func NewStreamHandler(batchService *service.BatchService) *StreamHandler {
	return &StreamHandler{
		batchService: batchService,
	}
}

// Stream 运行一个批次并以 SSE 推送事件，客户端断开即取消批次
// GET /stream?u=a.com&u=b.com
func (h *StreamHandler) Stream(c *gin.Context) {
	batch, err := h.batchService.Create(c.QueryArray("u"), model.SourceStream)
	if err != nil {
		if isURLError(err) {
			c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
				Code:    response.CodeParamError,
				Message: err.Error(),
			})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Code:    response.CodeServerError,
			Message: err.Error(),
		})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header(middleware.HeaderBatchID, batch.ID)
	c.Status(http.StatusOK)
	c.Writer.Flush()

	sink := &sseSink{ctx: c.Request.Context(), w: c.Writer}
	if _, err := h.batchService.Execute(c.Request.Context(), batch, sink); err != nil {
		logrus.WithError(err).WithField("batch_id", batch.ID).Warn("stream closed before done")
	}
}

// Stop 显式停止一个正在推送的批次
// POST /api/v1/stream/:batch_id/stop
func (h *StreamHandler) Stop(c *gin.Context) {
	batchID := c.Param("batch_id")
	stopped := h.batchService.Stop(batchID)
	response.Success(c, dto.StopResponse{BatchID: batchID, Stopped: stopped})
}

// sseSink 每个事件写成一条 SSE 消息并立即刷出。
// 客户端断开后不再写出，批次由请求 ctx 取消，事件仍会落库。
type sseSink struct {
	ctx context.Context
	w   gin.ResponseWriter
}

func (s *sseSink) Emit(e orchestrator.Event) error {
	if s.ctx.Err() != nil {
		return nil
	}
	if err := sse.Encode(s.w, sse.Event{Event: string(e.Type), Data: e.Payload}); err != nil {
		return err
	}
	s.w.Flush()
	return nil
}

func isURLError(err error) bool {
	return errors.Is(err, orchestrator.ErrNoURLs) || errors.Is(err, orchestrator.ErrTooManyURLs)
}
