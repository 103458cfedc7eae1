package service

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/site_compare_server/internal/model"
	"github.com/qs3c/site_compare_server/internal/orchestrator"
	"github.com/qs3c/site_compare_server/internal/repository"
	"github.com/qs3c/site_compare_server/internal/runner"
)

// recorder 把 result 事件写入 site_results，并实时更新批次计数。
// 写库失败只记录日志，不影响事件流。
type recorder struct {
	batchRepo *repository.BatchRepository
	batch     *model.Batch
	started   map[int]time.Time
	log       *logrus.Entry
}

func newRecorder(batchRepo *repository.BatchRepository, batch *model.Batch) *recorder {
	return &recorder{
		batchRepo: batchRepo,
		batch:     batch,
		started:   make(map[int]time.Time),
		log:       logrus.WithFields(logrus.Fields{"component": "recorder", "batch_id": batch.ID}),
	}
}

func (r *recorder) Emit(e orchestrator.Event) error {
	switch p := e.Payload.(type) {
	case orchestrator.StartURLPayload:
		r.started[p.Index] = time.Now()
	case orchestrator.ResultPayload:
		r.save(p)
	}
	return nil
}

func (r *recorder) save(p orchestrator.ResultPayload) {
	log := r.log.WithField("index", p.Index)

	result := &model.SiteResult{
		BatchID:   r.batch.ID,
		Index:     p.Index,
		URL:       p.URL,
		ErrorKind: p.Error,
		Reason:    p.Reason,
	}
	if started, ok := r.started[p.Index]; ok {
		result.DurationMs = time.Since(started).Milliseconds()
	}

	switch {
	case p.Error == "":
		result.Status = model.SiteSucceeded
		r.batch.Succeeded++
		if err := result.SetRecord(p.Data); err != nil {
			log.WithError(err).Error("failed to encode record")
		}
	case p.Error == string(runner.KindTimedOut):
		result.Status = model.SiteTimedOut
		r.batch.Failed++
	default:
		result.Status = model.SiteFailed
		r.batch.Failed++
	}

	if err := r.batchRepo.SaveSiteResult(result); err != nil {
		log.WithError(err).Error("failed to save site result")
		return
	}
	if err := r.batchRepo.Update(r.batch); err != nil {
		log.WithError(err).Error("failed to update batch counters")
	}
}
