package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/site_compare_server/internal/model"
)

type BatchRepository struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) Create(batch *model.Batch) error {
	return r.db.Omit("Sites").Create(batch).Error
}

// GetByID 获取批次及其站点结果（按序号排序）
func (r *BatchRepository) GetByID(id string) (*model.Batch, error) {
	var batch model.Batch
	err := r.db.Preload("Sites", func(db *gorm.DB) *gorm.DB {
		return db.Order("site_index ASC")
	}).Where("id = ?", id).First(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *BatchRepository) Update(batch *model.Batch) error {
	return r.db.Omit("Sites").Save(batch).Error
}

// SaveSiteResult 写入站点结果，同一批次同一序号重复写入时覆盖
func (r *BatchRepository) SaveSiteResult(result *model.SiteResult) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "batch_id"}, {Name: "site_index"}},
		DoUpdates: clause.AssignmentColumns([]string{"url", "status", "error_kind", "reason", "data", "duration_ms"}),
	}).Create(result).Error
}

// LatestCompleted 最近结束（完成或取消）的批次，站点按序号排列
func (r *BatchRepository) LatestCompleted() (*model.Batch, error) {
	var batch model.Batch
	err := r.db.Preload("Sites", func(db *gorm.DB) *gorm.DB {
		return db.Order("site_index ASC")
	}).
		Where("status IN ?", []string{model.BatchDone, model.BatchCancelled}).
		Order("completed_at DESC").
		First(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// ListPendingReports 本地生成但尚未上传 OSS 的报表
func (r *BatchRepository) ListPendingReports(limit int) ([]*model.Batch, error) {
	var batches []*model.Batch
	err := r.db.Where("report_path <> '' AND (report_url = '' OR report_url IS NULL)").
		Order("completed_at ASC").
		Limit(limit).
		Find(&batches).Error
	return batches, err
}

// MarkReportUploaded 记录 OSS 地址并清除本地路径
func (r *BatchRepository) MarkReportUploaded(id, url string) error {
	return r.db.Model(&model.Batch{}).Where("id = ?", id).
		Updates(map[string]interface{}{"report_url": url, "report_path": ""}).Error
}

// ListExpired 创建时间早于 before 且已结束的批次
func (r *BatchRepository) ListExpired(before time.Time) ([]*model.Batch, error) {
	var batches []*model.Batch
	err := r.db.Where("created_at < ? AND status NOT IN ?", before, []string{model.BatchPending, model.BatchRunning}).
		Order("created_at ASC").
		Find(&batches).Error
	return batches, err
}

// DeleteOlderThan 删除创建时间早于 before 的批次及其站点结果，返回删除的批次
func (r *BatchRepository) DeleteOlderThan(before time.Time) ([]*model.Batch, error) {
	batches, err := r.ListExpired(before)
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, nil
	}

	ids := make([]string, len(batches))
	for i, b := range batches {
		ids[i] = b.ID
	}
	err = r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("batch_id IN ?", ids).Delete(&model.SiteResult{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&model.Batch{}).Error
	})
	if err != nil {
		return nil, err
	}
	return batches, nil
}
