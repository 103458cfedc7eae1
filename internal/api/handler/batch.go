package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/site_compare_server/internal/model/dto"
	"github.com/qs3c/site_compare_server/internal/pkg/response"
	"github.com/qs3c/site_compare_server/internal/service"
)

type BatchHandler struct {
	batchService *service.BatchService
}

func NewBatchHandler(batchService *service.BatchService) *BatchHandler {
	return &BatchHandler{
		batchService: batchService,
	}
}

// Create 创建异步批次，进度通过 WebSocket 观察
// POST /api/v1/batches
func (h *BatchHandler) Create(c *gin.Context) {
	var req dto.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.batchService.Enqueue(c.Request.Context(), &req)
	if err != nil {
		switch {
		case isURLError(err):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrQueueUnavailable):
			response.UnavailableError(c, err.Error())
		default:
			logrus.WithError(err).Error("enqueue batch failed")
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "已加入队列", resp)
}

// Get 批次状态与站点结果
// GET /api/v1/batches/:id
func (h *BatchHandler) Get(c *gin.Context) {
	resp, err := h.batchService.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrBatchNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		logrus.WithError(err).Error("get batch failed")
		response.ServerError(c, "")
		return
	}

	response.Success(c, resp)
}
