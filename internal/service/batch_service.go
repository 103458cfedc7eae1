package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/qs3c/site_compare_server/config"
	"github.com/qs3c/site_compare_server/internal/model"
	"github.com/qs3c/site_compare_server/internal/model/dto"
	"github.com/qs3c/site_compare_server/internal/orchestrator"
	"github.com/qs3c/site_compare_server/internal/parser"
	"github.com/qs3c/site_compare_server/internal/pkg/export"
	"github.com/qs3c/site_compare_server/internal/pkg/metrics"
	"github.com/qs3c/site_compare_server/internal/pkg/queue"
	"github.com/qs3c/site_compare_server/internal/repository"
)

var (
	ErrBatchNotFound    = errors.New("批次不存在")
	ErrQueueUnavailable = errors.New("未配置 Redis，无法创建异步批次")
	ErrNoData           = export.ErrNoData
)

type BatchService struct {
	orch      *orchestrator.Orchestrator
	batchRepo *repository.BatchRepository
	queue     *queue.Queue
	cfg       *config.Config
	log       *logrus.Entry

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewBatchService q 为 nil 时异步批次不可用
func NewBatchService(
	orch *orchestrator.Orchestrator,
	batchRepo *repository.BatchRepository,
	q *queue.Queue,
	cfg *config.Config,
) *BatchService {
	return &BatchService{
		orch:      orch,
		batchRepo: batchRepo,
		queue:     q,
		cfg:       cfg,
		log:       logrus.WithField("component", "batch_service"),
		running:   make(map[string]context.CancelFunc),
	}
}

// Create 校验 URL 并创建待运行的批次
func (s *BatchService) Create(rawURLs []string, source string) (*model.Batch, error) {
	urls, err := orchestrator.NormalizeURLs(rawURLs, s.cfg.Analysis.Defaults().MaxURLs)
	if err != nil {
		return nil, err
	}

	batch := &model.Batch{
		ID:     uuid.NewString(),
		Source: source,
		Status: model.BatchPending,
		URLs:   urls,
		Total:  len(urls),
	}
	if err := s.batchRepo.Create(batch); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	return batch, nil
}

// Execute 运行批次直到结束、被取消或 sink 失效，并把结果写入数据库
func (s *BatchService) Execute(ctx context.Context, batch *model.Batch, sink orchestrator.Sink) (*orchestrator.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.track(batch.ID, cancel)
	defer s.untrack(batch.ID)

	metrics.RecordBatchStart(batch.Source)

	now := time.Now()
	batch.Status = model.BatchRunning
	batch.StartedAt = &now
	batch.Total = len(batch.URLs)
	if err := s.batchRepo.Update(batch); err != nil {
		return nil, fmt.Errorf("mark batch running: %w", err)
	}

	rec := newRecorder(s.batchRepo, batch)
	job := orchestrator.NewJob(batch.ID, batch.URLs)
	summary, runErr := s.orch.Run(ctx, job, orchestrator.Tee(rec, sink))

	s.finish(batch, summary, runErr)
	return summary, runErr
}

func (s *BatchService) finish(batch *model.Batch, summary *orchestrator.Summary, runErr error) {
	log := s.log.WithField("batch_id", batch.ID)

	completed := time.Now()
	batch.CompletedAt = &completed
	if summary != nil {
		batch.Succeeded = summary.Succeeded
		batch.Failed = summary.Failed
	}
	switch {
	case runErr != nil:
		batch.Status = model.BatchFailed
		batch.ErrorMessage = runErr.Error()
		log.WithError(runErr).Warn("batch aborted")
	case summary.Cancelled:
		batch.Status = model.BatchCancelled
	default:
		batch.Status = model.BatchDone
	}

	if err := s.batchRepo.Update(batch); err != nil {
		log.WithError(err).Error("failed to save batch status")
	}
}

// Stop 取消正在运行的批次，批次不在运行时返回 false
func (s *BatchService) Stop(batchID string) bool {
	s.mu.Lock()
	cancel, ok := s.running[batchID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.log.WithField("batch_id", batchID).Info("stop requested")
	cancel()
	return true
}

// IsRunning 批次是否由本进程运行中
func (s *BatchService) IsRunning(batchID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[batchID]
	return ok
}

func (s *BatchService) track(batchID string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.running[batchID] = cancel
	s.mu.Unlock()
}

func (s *BatchService) untrack(batchID string) {
	s.mu.Lock()
	delete(s.running, batchID)
	s.mu.Unlock()
}

// Enqueue 创建异步批次并放入 Redis 队列，由 worker 运行
func (s *BatchService) Enqueue(ctx context.Context, req *dto.CreateBatchRequest) (*dto.CreateBatchResponse, error) {
	if s.queue == nil {
		return nil, ErrQueueUnavailable
	}

	batch, err := s.Create(req.URLs, model.SourceQueue)
	if err != nil {
		return nil, err
	}

	msg := &queue.BatchMessage{BatchID: batch.ID, URLs: batch.URLs}
	if err := s.queue.Push(ctx, msg); err != nil {
		batch.Status = model.BatchFailed
		batch.ErrorMessage = err.Error()
		if uerr := s.batchRepo.Update(batch); uerr != nil {
			s.log.WithError(uerr).WithField("batch_id", batch.ID).Error("failed to mark batch failed")
		}
		return nil, fmt.Errorf("push batch: %w", err)
	}

	return &dto.CreateBatchResponse{
		BatchID:  batch.ID,
		Total:    batch.Total,
		WatchURL: "/api/v1/ws?batch_id=" + batch.ID,
	}, nil
}

// Get 批次状态及已完成的站点结果
func (s *BatchService) Get(id string) (*dto.BatchResponse, error) {
	batch, err := s.batchRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}

	resp := &dto.BatchResponse{
		ID:          batch.ID,
		Source:      batch.Source,
		Status:      batch.Status,
		URLs:        batch.URLs,
		Total:       batch.Total,
		Succeeded:   batch.Succeeded,
		Failed:      batch.Failed,
		ReportURL:   batch.ReportURL,
		CreatedAt:   batch.CreatedAt,
		CompletedAt: batch.CompletedAt,
		Sites:       make([]dto.SiteResponse, 0, len(batch.Sites)),
	}
	for i := range batch.Sites {
		site := &batch.Sites[i]
		rec, err := site.Record()
		if err != nil {
			return nil, fmt.Errorf("decode site %d: %w", site.Index, err)
		}
		resp.Sites = append(resp.Sites, dto.SiteResponse{
			Index:      site.Index,
			URL:        site.URL,
			Status:     site.Status,
			Error:      site.ErrorKind,
			Reason:     site.Reason,
			Data:       rec,
			DurationMs: site.DurationMs,
		})
	}
	return resp, nil
}

// Export 最近结束的批次的对比表格，该批次没有成功站点时返回 ErrNoData
func (s *BatchService) Export() (*model.Batch, []byte, error) {
	batch, err := s.batchRepo.LatestCompleted()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNoData
		}
		return nil, nil, err
	}
	if !hasSuccess(batch) {
		return nil, nil, ErrNoData
	}

	cols, err := ReportColumns(batch)
	if err != nil {
		return nil, nil, err
	}
	data, err := export.Bytes(cols)
	if err != nil {
		return nil, nil, err
	}
	return batch, data, nil
}

func hasSuccess(batch *model.Batch) bool {
	for i := range batch.Sites {
		if batch.Sites[i].Status == model.SiteSucceeded {
			return true
		}
	}
	return false
}

// ReportColumns 按站点序号生成表格列，未运行的站点不占列
func ReportColumns(batch *model.Batch) ([]export.Column, error) {
	cols := make([]export.Column, 0, len(batch.Sites))
	for i := range batch.Sites {
		site := &batch.Sites[i]
		col := export.Column{Index: site.Index, URL: site.URL, Reason: site.Reason}
		if site.Status == model.SiteSucceeded {
			rec, err := site.Record()
			if err != nil {
				return nil, fmt.Errorf("decode site %d: %w", site.Index, err)
			}
			if rec == nil {
				rec = parser.NewRecord()
			}
			col.Record = rec
		}
		cols = append(cols, col)
	}
	return cols, nil
}
