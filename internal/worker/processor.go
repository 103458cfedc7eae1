package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/site_compare_server/config"
	"github.com/qs3c/site_compare_server/internal/model"
	"github.com/qs3c/site_compare_server/internal/orchestrator"
	"github.com/qs3c/site_compare_server/internal/pkg/export"
	"github.com/qs3c/site_compare_server/internal/pkg/pubsub"
	"github.com/qs3c/site_compare_server/internal/pkg/queue"
	"github.com/qs3c/site_compare_server/internal/repository"
	"github.com/qs3c/site_compare_server/internal/service"
)

const publishTimeout = 3 * time.Second

// ReportUploader 报表对象存储，*oss.Client 实现了该接口
type ReportUploader interface {
	UploadReportWithRetry(batchID string, data []byte) (string, error)
}

// Processor 异步批次处理器
type Processor struct {
	batchService *service.BatchService
	batchRepo    *repository.BatchRepository
	uploader     ReportUploader
	publisher    *pubsub.Publisher
	cfg          *config.Config
}

// NewProcessor uploader 或 publisher 为 nil 时分别跳过上传和事件发布
func NewProcessor(
	batchService *service.BatchService,
	batchRepo *repository.BatchRepository,
	uploader ReportUploader,
	publisher *pubsub.Publisher,
	cfg *config.Config,
) *Processor {
	return &Processor{
		batchService: batchService,
		batchRepo:    batchRepo,
		uploader:     uploader,
		publisher:    publisher,
		cfg:          cfg,
	}
}

// Process 运行队列中的批次，事件发布到 pubsub，结束后生成对比报表
func (p *Processor) Process(ctx context.Context, msg *queue.BatchMessage) error {
	log := logrus.WithField("batch_id", msg.BatchID)

	batch, err := p.batchRepo.GetByID(msg.BatchID)
	if err != nil {
		return fmt.Errorf("failed to get batch: %w", err)
	}
	if batch.Status != model.BatchPending {
		log.WithField("status", batch.Status).Info("batch already handled, skipping")
		return nil
	}

	summary, err := p.batchService.Execute(ctx, batch, p.eventSink(batch.ID))
	if err != nil {
		return fmt.Errorf("run batch: %w", err)
	}
	if summary.Succeeded == 0 {
		log.Info("no successful site, report skipped")
		return nil
	}

	if err := p.storeReport(batch.ID); err != nil {
		return fmt.Errorf("store report: %w", err)
	}
	return nil
}

// eventSink 发布失败只记日志：观察者是可选的，不能因此中止批次
func (p *Processor) eventSink(batchID string) orchestrator.Sink {
	return orchestrator.SinkFunc(func(e orchestrator.Event) error {
		if p.publisher == nil {
			return nil
		}
		data, err := e.Data()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.publisher.Publish(ctx, batchID, string(e.Type), data); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"batch_id": batchID,
				"event":    e.Type,
			}).Warn("failed to publish event")
		}
		return nil
	})
}

// storeReport 上传 OSS；未配置或上传失败时写入本地目录，由 Reuploader 之后补传
func (p *Processor) storeReport(batchID string) error {
	log := logrus.WithField("batch_id", batchID)

	batch, err := p.batchRepo.GetByID(batchID)
	if err != nil {
		return err
	}
	cols, err := service.ReportColumns(batch)
	if err != nil {
		return err
	}
	data, err := export.Bytes(cols)
	if err != nil {
		return err
	}

	if p.uploader != nil {
		url, err := p.uploader.UploadReportWithRetry(batch.ID, data)
		if err == nil {
			batch.ReportURL = url
			log.WithField("url", url).Info("report uploaded")
			return p.batchRepo.Update(batch)
		}
		log.WithError(err).Warn("report upload failed, saving locally")
	}

	path, err := p.saveLocal(batch.ID, data)
	if err != nil {
		return err
	}
	batch.ReportPath = path
	log.WithField("path", path).Info("report saved locally")
	return p.batchRepo.Update(batch)
}

func (p *Processor) saveLocal(batchID string, data []byte) (string, error) {
	dir := p.cfg.Retention.ReportDir
	if dir == "" {
		dir = "reports"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report dir: %w", err)
	}
	path := filepath.Join(dir, batchID+".xlsx")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
