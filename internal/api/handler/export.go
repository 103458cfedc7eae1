package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/site_compare_server/internal/pkg/export"
	"github.com/qs3c/site_compare_server/internal/pkg/response"
	"github.com/qs3c/site_compare_server/internal/service"
)

type ExportHandler struct {
	batchService *service.BatchService
}

func NewExportHandler(batchService *service.BatchService) *ExportHandler {
	return &ExportHandler{
		batchService: batchService,
	}
}

// Export 下载最近完成批次的对比表格
// GET /api/v1/export
func (h *ExportHandler) Export(c *gin.Context) {
	batch, data, err := h.batchService.Export()
	if err != nil {
		if errors.Is(err, service.ErrNoData) {
			response.NotFoundError(c, err.Error())
			return
		}
		logrus.WithError(err).Error("export failed")
		response.ServerError(c, "")
		return
	}

	filename := fmt.Sprintf("site_compare_%s.xlsx", batch.ID)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, export.ContentType, data)
}
