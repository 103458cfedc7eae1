package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qs3c/site_compare_server/internal/model"
	"github.com/qs3c/site_compare_server/internal/parser"
)

// TestBatch 创建测试批次
func TestBatch(t *testing.T, db *gorm.DB, opts ...func(*model.Batch)) *model.Batch {
	t.Helper()

	now := time.Now()
	batch := &model.Batch{
		ID:          uuid.NewString(),
		Source:      model.SourceStream,
		Status:      model.BatchDone,
		URLs:        model.StringArray{"https://a.com", "https://b.com"},
		Total:       2,
		CreatedAt:   now,
		CompletedAt: &now,
	}

	for _, opt := range opts {
		opt(batch)
	}

	if err := db.Omit("Sites").Create(batch).Error; err != nil {
		t.Fatalf("Failed to create test batch: %v", err)
	}

	return batch
}

// WithStatus 设置批次状态
func WithStatus(status string) func(*model.Batch) {
	return func(b *model.Batch) {
		b.Status = status
	}
}

// WithCreatedAt 设置创建和完成时间
func WithCreatedAt(at time.Time) func(*model.Batch) {
	return func(b *model.Batch) {
		b.CreatedAt = at
		b.CompletedAt = &at
	}
}

// WithCompletedAt 设置批次结束时间
func WithCompletedAt(at time.Time) func(*model.Batch) {
	return func(b *model.Batch) {
		b.CompletedAt = &at
	}
}

// WithURLs 设置批次 URL
func WithURLs(urls ...string) func(*model.Batch) {
	return func(b *model.Batch) {
		b.URLs = urls
		b.Total = len(urls)
	}
}

// TestSiteSuccess 写入成功的站点结果
func TestSiteSuccess(t *testing.T, db *gorm.DB, batchID string, index int, url string, rec *parser.Record) *model.SiteResult {
	t.Helper()

	result := &model.SiteResult{
		BatchID: batchID,
		Index:   index,
		URL:     url,
		Status:  model.SiteSucceeded,
	}
	if err := result.SetRecord(rec); err != nil {
		t.Fatalf("Failed to encode record: %v", err)
	}
	if err := db.Create(result).Error; err != nil {
		t.Fatalf("Failed to create site result: %v", err)
	}
	return result
}

// TestSiteFailure 写入失败的站点结果
func TestSiteFailure(t *testing.T, db *gorm.DB, batchID string, index int, url, kind, reason string) *model.SiteResult {
	t.Helper()

	result := &model.SiteResult{
		BatchID:   batchID,
		Index:     index,
		URL:       url,
		Status:    model.SiteFailed,
		ErrorKind: kind,
		Reason:    reason,
	}
	if err := db.Create(result).Error; err != nil {
		t.Fatalf("Failed to create site result: %v", err)
	}
	return result
}

// SampleRecord 构造一个简单的提取结果
func SampleRecord(company string, overall float64) *parser.Record {
	rec := parser.NewRecord()
	rec.Set(parser.KeyCompany, parser.Text(company))
	rec.Set(parser.KeyOverall, parser.Number(overall))
	rec.Set(parser.KeyDescription, parser.Absent)
	return rec
}
