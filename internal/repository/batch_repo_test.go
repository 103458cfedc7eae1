package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/site_compare_server/internal/model"
	"github.com/qs3c/site_compare_server/internal/parser"
	"github.com/qs3c/site_compare_server/internal/testutil"
)

func TestBatchRepository_CreateAndGet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewBatchRepository(db)
	batch := &model.Batch{
		ID:     "b-1",
		Source: model.SourceQueue,
		Status: model.BatchPending,
		URLs:   model.StringArray{"https://a.com", "https://b.com"},
		Total:  2,
	}
	require.NoError(t, repo.Create(batch))

	// 乱序写入，读取时按序号排序
	testutil.TestSiteFailure(t, db, "b-1", 2, "https://b.com", "TimedOut", "timed out after 45s")
	testutil.TestSiteSuccess(t, db, "b-1", 1, "https://a.com", testutil.SampleRecord("A", 82))

	found, err := repo.GetByID("b-1")
	require.NoError(t, err)
	assert.Equal(t, model.BatchPending, found.Status)
	assert.Equal(t, []string{"https://a.com", "https://b.com"}, []string(found.URLs))
	require.Len(t, found.Sites, 2)
	assert.Equal(t, 1, found.Sites[0].Index)
	assert.Equal(t, 2, found.Sites[1].Index)

	rec, err := found.Sites[0].Record()
	require.NoError(t, err)
	assert.Equal(t, []string{parser.KeyCompany, parser.KeyOverall, parser.KeyDescription}, rec.Keys())
	overall, _ := rec.Get(parser.KeyOverall)
	assert.True(t, overall.IsNumber())

	failed, err := found.Sites[1].Record()
	require.NoError(t, err)
	assert.Nil(t, failed)
}

func TestBatchRepository_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	_, err := NewBatchRepository(db).GetByID("missing")
	assert.Error(t, err)
}

func TestBatchRepository_SaveSiteResult_Upsert(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewBatchRepository(db)
	batch := testutil.TestBatch(t, db)

	first := &model.SiteResult{BatchID: batch.ID, Index: 1, URL: "https://a.com", Status: model.SiteFailed, ErrorKind: "Cancelled"}
	require.NoError(t, repo.SaveSiteResult(first))

	second := &model.SiteResult{BatchID: batch.ID, Index: 1, URL: "https://a.com", Status: model.SiteSucceeded}
	require.NoError(t, second.SetRecord(testutil.SampleRecord("A", 70)))
	require.NoError(t, repo.SaveSiteResult(second))

	found, err := repo.GetByID(batch.ID)
	require.NoError(t, err)
	require.Len(t, found.Sites, 1)
	assert.Equal(t, model.SiteSucceeded, found.Sites[0].Status)
	assert.NotEmpty(t, found.Sites[0].Data)
}

func TestBatchRepository_LatestCompleted(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewBatchRepository(db)

	_, err := repo.LatestCompleted()
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	now := time.Now()
	old := testutil.TestBatch(t, db, testutil.WithCompletedAt(now.Add(-2*time.Hour)))
	testutil.TestSiteSuccess(t, db, old.ID, 1, "https://a.com", testutil.SampleRecord("A", 1))

	recent := testutil.TestBatch(t, db,
		testutil.WithStatus(model.BatchCancelled),
		testutil.WithCompletedAt(now.Add(-time.Hour)))
	testutil.TestSiteFailure(t, db, recent.ID, 2, "https://c.com", "Cancelled", "cancelled")
	testutil.TestSiteSuccess(t, db, recent.ID, 1, "https://b.com", testutil.SampleRecord("B", 2))

	// 失败和运行中的批次不算结束
	testutil.TestBatch(t, db, testutil.WithStatus(model.BatchFailed), testutil.WithCompletedAt(now))
	running := testutil.TestBatch(t, db, testutil.WithStatus(model.BatchRunning))
	testutil.TestSiteSuccess(t, db, running.ID, 1, "https://d.com", testutil.SampleRecord("D", 3))

	latest, err := repo.LatestCompleted()
	require.NoError(t, err)
	assert.Equal(t, recent.ID, latest.ID)
	require.Len(t, latest.Sites, 2)
	assert.Equal(t, 1, latest.Sites[0].Index)
	assert.Equal(t, 2, latest.Sites[1].Index)
}

func TestBatchRepository_Reports(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewBatchRepository(db)
	local := testutil.TestBatch(t, db, func(b *model.Batch) { b.ReportPath = "reports/x.xlsx" })
	testutil.TestBatch(t, db, func(b *model.Batch) { b.ReportURL = "https://cdn/x.xlsx" })

	pending, err := repo.ListPendingReports(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, local.ID, pending[0].ID)

	require.NoError(t, repo.MarkReportUploaded(local.ID, "https://cdn/reports/x.xlsx"))

	pending, err = repo.ListPendingReports(10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	found, err := repo.GetByID(local.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/reports/x.xlsx", found.ReportURL)
	assert.Empty(t, found.ReportPath)
}

func TestBatchRepository_DeleteOlderThan(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewBatchRepository(db)
	old := testutil.TestBatch(t, db, testutil.WithCreatedAt(time.Now().Add(-100*time.Hour)))
	testutil.TestSiteSuccess(t, db, old.ID, 1, "https://a.com", testutil.SampleRecord("A", 1))
	oldRunning := testutil.TestBatch(t, db,
		testutil.WithCreatedAt(time.Now().Add(-100*time.Hour)),
		testutil.WithStatus(model.BatchRunning))
	fresh := testutil.TestBatch(t, db)

	expired, err := repo.ListExpired(time.Now().Add(-72 * time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, old.ID, expired[0].ID)

	deleted, err := repo.DeleteOlderThan(time.Now().Add(-72 * time.Hour))
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, old.ID, deleted[0].ID)

	_, err = repo.GetByID(old.ID)
	assert.Error(t, err)
	_, err = repo.GetByID(oldRunning.ID)
	assert.NoError(t, err)
	_, err = repo.GetByID(fresh.ID)
	assert.NoError(t, err)

	var orphans int64
	require.NoError(t, db.Model(&model.SiteResult{}).Where("batch_id = ?", old.ID).Count(&orphans).Error)
	assert.Zero(t, orphans)
}
