package worker

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/site_compare_server/internal/repository"
)

const (
	reuploadInterval = 5 * time.Minute
	reuploadBatch    = 50
)

// Reuploader 后台把本地报表补传到 OSS
type Reuploader struct {
	batchRepo *repository.BatchRepository
	uploader  ReportUploader
}

// NewReuploader 创建重传器
func NewReuploader(batchRepo *repository.BatchRepository, uploader ReportUploader) *Reuploader {
	return &Reuploader{
		batchRepo: batchRepo,
		uploader:  uploader,
	}
}

// Start 启动后台重传循环
func (r *Reuploader) Start(ctx context.Context) {
	// 启动后先执行一次
	r.Run()

	ticker := time.NewTicker(reuploadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("reuploader stopped")
			return
		case <-ticker.C:
			r.Run()
		}
	}
}

// Run 执行一轮补传，返回成功数量
func (r *Reuploader) Run() int {
	batches, err := r.batchRepo.ListPendingReports(reuploadBatch)
	if err != nil {
		logrus.WithError(err).Error("reuploader: failed to query local reports")
		return 0
	}
	if len(batches) == 0 {
		return 0
	}

	logrus.WithField("count", len(batches)).Info("reuploader: found local reports")

	uploaded := 0
	for _, b := range batches {
		log := logrus.WithField("batch_id", b.ID)

		data, err := os.ReadFile(b.ReportPath)
		if err != nil {
			log.WithError(err).Warn("reuploader: failed to read local report")
			continue
		}

		url, err := r.uploader.UploadReportWithRetry(b.ID, data)
		if err != nil {
			log.WithError(err).Warn("reuploader: upload failed")
			continue
		}

		if err := r.batchRepo.MarkReportUploaded(b.ID, url); err != nil {
			log.WithError(err).Error("reuploader: failed to update batch")
			continue
		}

		if err := os.Remove(b.ReportPath); err != nil {
			log.WithError(err).Warn("reuploader: failed to remove local report")
		}
		uploaded++
		log.Info("reuploader: report uploaded")
	}
	return uploaded
}
