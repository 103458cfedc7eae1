package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/qs3c/site_compare_server/config"
	"github.com/qs3c/site_compare_server/internal/model"
	"github.com/qs3c/site_compare_server/internal/model/dto"
	"github.com/qs3c/site_compare_server/internal/orchestrator"
	"github.com/qs3c/site_compare_server/internal/parser"
	"github.com/qs3c/site_compare_server/internal/pkg/export"
	"github.com/qs3c/site_compare_server/internal/pkg/queue"
	"github.com/qs3c/site_compare_server/internal/repository"
	"github.com/qs3c/site_compare_server/internal/runner"
	"github.com/qs3c/site_compare_server/internal/testutil"
)

// fakeRunner 按 URL 返回预设结果；block 中的 URL 会阻塞到 ctx 取消
type fakeRunner struct {
	mu      sync.Mutex
	fail    map[string]runner.Kind
	block   map[string]bool
	started chan string
}

func (r *fakeRunner) Run(ctx context.Context, task *runner.SiteTask, em runner.Emitter) runner.Outcome {
	r.mu.Lock()
	kind, failed := r.fail[task.URL]
	blocked := r.block[task.URL]
	r.mu.Unlock()

	if r.started != nil {
		r.started <- task.URL
	}
	em.Progress(runner.PhaseBrowser, 1, 4)
	if blocked {
		<-ctx.Done()
		return runner.Outcome{Err: &runner.TaskError{Kind: runner.KindCancelled, Reason: runner.ReasonCancelled}}
	}
	if failed {
		return runner.Outcome{Err: &runner.TaskError{Kind: kind, Reason: "boom"}}
	}
	em.Progress(runner.PhaseParsing, 3, 4)
	return runner.Outcome{Record: testutil.SampleRecord(parser.CompanyFromURL(task.URL), 80)}
}

type eventLog struct {
	mu     sync.Mutex
	events []orchestrator.Event
}

func (l *eventLog) Emit(e orchestrator.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) last() orchestrator.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

func setupBatchService(t *testing.T, r orchestrator.SiteRunner, q *queue.Queue) (*BatchService, *gorm.DB, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	cfg := &config.Config{Analysis: config.AnalysisConfig{MaxURLs: 4}}
	svc := NewBatchService(orchestrator.New(r), repository.NewBatchRepository(db), q, cfg)

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}
	return svc, db, cleanup
}

func TestBatchService_Create(t *testing.T) {
	svc, _, cleanup := setupBatchService(t, &fakeRunner{}, nil)
	defer cleanup()

	batch, err := svc.Create([]string{" a.com ", "", "http://b.com"}, model.SourceStream)
	require.NoError(t, err)

	assert.NotEmpty(t, batch.ID)
	assert.Equal(t, model.BatchPending, batch.Status)
	assert.Equal(t, []string{"https://a.com", "http://b.com"}, []string(batch.URLs))
	assert.Equal(t, 2, batch.Total)
}

func TestBatchService_Create_Invalid(t *testing.T) {
	svc, _, cleanup := setupBatchService(t, &fakeRunner{}, nil)
	defer cleanup()

	_, err := svc.Create([]string{"", "  "}, model.SourceStream)
	assert.ErrorIs(t, err, orchestrator.ErrNoURLs)

	_, err = svc.Create([]string{"a", "b", "c", "d", "e"}, model.SourceStream)
	assert.ErrorIs(t, err, orchestrator.ErrTooManyURLs)
}

func TestBatchService_Execute_PersistsResults(t *testing.T) {
	r := &fakeRunner{fail: map[string]runner.Kind{"https://b.com": runner.KindTimedOut}}
	svc, _, cleanup := setupBatchService(t, r, nil)
	defer cleanup()

	batch, err := svc.Create([]string{"a.com", "b.com"}, model.SourceStream)
	require.NoError(t, err)

	events := &eventLog{}
	summary, err := svc.Execute(context.Background(), batch, events)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, orchestrator.EventDone, events.last().Type)
	assert.False(t, svc.IsRunning(batch.ID))

	got, err := svc.Get(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchDone, got.Status)
	assert.Equal(t, 1, got.Succeeded)
	assert.Equal(t, 1, got.Failed)
	require.Len(t, got.Sites, 2)

	assert.Equal(t, model.SiteSucceeded, got.Sites[0].Status)
	require.NotNil(t, got.Sites[0].Data)
	v, ok := got.Sites[0].Data.Get(parser.KeyCompany)
	require.True(t, ok)
	assert.Equal(t, "a.com", v.String())

	assert.Equal(t, model.SiteTimedOut, got.Sites[1].Status)
	assert.Equal(t, string(runner.KindTimedOut), got.Sites[1].Error)
	assert.Equal(t, "boom", got.Sites[1].Reason)
	assert.Nil(t, got.Sites[1].Data)
}

func TestBatchService_Stop(t *testing.T) {
	r := &fakeRunner{
		block:   map[string]bool{"https://a.com": true},
		started: make(chan string, 4),
	}
	svc, _, cleanup := setupBatchService(t, r, nil)
	defer cleanup()

	batch, err := svc.Create([]string{"a.com", "b.com"}, model.SourceStream)
	require.NoError(t, err)

	events := &eventLog{}
	done := make(chan *orchestrator.Summary, 1)
	go func() {
		summary, err := svc.Execute(context.Background(), batch, events)
		assert.NoError(t, err)
		done <- summary
	}()

	<-r.started
	assert.True(t, svc.IsRunning(batch.ID))
	assert.True(t, svc.Stop(batch.ID))

	select {
	case summary := <-done:
		assert.True(t, summary.Cancelled)
		require.Len(t, summary.Results, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not stop")
	}

	assert.False(t, svc.Stop(batch.ID))
	got, err := svc.Get(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchCancelled, got.Status)
	require.Len(t, got.Sites, 1)
	assert.Equal(t, string(runner.KindCancelled), got.Sites[0].Error)
}

func TestBatchService_Execute_SinkFailure(t *testing.T) {
	svc, _, cleanup := setupBatchService(t, &fakeRunner{}, nil)
	defer cleanup()

	batch, err := svc.Create([]string{"a.com"}, model.SourceStream)
	require.NoError(t, err)

	broken := orchestrator.SinkFunc(func(e orchestrator.Event) error {
		if e.Type == orchestrator.EventResult {
			return errors.New("broken pipe")
		}
		return nil
	})
	_, err = svc.Execute(context.Background(), batch, broken)
	require.Error(t, err)

	got, err := svc.Get(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchFailed, got.Status)
	// 结果在写给客户端之前已落库
	require.Len(t, got.Sites, 1)
	assert.Equal(t, model.SiteSucceeded, got.Sites[0].Status)
}

func TestBatchService_Get_NotFound(t *testing.T) {
	svc, _, cleanup := setupBatchService(t, &fakeRunner{}, nil)
	defer cleanup()

	_, err := svc.Get("missing")
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestBatchService_Export_NoData(t *testing.T) {
	svc, db, cleanup := setupBatchService(t, &fakeRunner{}, nil)
	defer cleanup()

	_, _, err := svc.Export()
	assert.ErrorIs(t, err, ErrNoData)

	// 只有失败站点的批次同样没有数据
	batch := testutil.TestBatch(t, db)
	testutil.TestSiteFailure(t, db, batch.ID, 1, "https://a.com", string(runner.KindUnreachable), runner.ReasonUnreachable)
	_, _, err = svc.Export()
	assert.ErrorIs(t, err, ErrNoData)
}

func TestBatchService_Export_LatestBatchWithoutData(t *testing.T) {
	svc, db, cleanup := setupBatchService(t, &fakeRunner{}, nil)
	defer cleanup()

	now := time.Now()
	older := testutil.TestBatch(t, db, testutil.WithCompletedAt(now.Add(-time.Hour)))
	testutil.TestSiteSuccess(t, db, older.ID, 1, "https://a.com", testutil.SampleRecord("a.com", 80))

	_, _, err := svc.Export()
	require.NoError(t, err)

	// 最近结束的批次全部失败时不回退到更早的批次
	newer := testutil.TestBatch(t, db, testutil.WithCompletedAt(now))
	testutil.TestSiteFailure(t, db, newer.ID, 1, "https://b.com", string(runner.KindUnreachable), runner.ReasonUnreachable)

	_, _, err = svc.Export()
	assert.ErrorIs(t, err, ErrNoData)
}

func TestBatchService_Export(t *testing.T) {
	r := &fakeRunner{fail: map[string]runner.Kind{"https://b.com": runner.KindFormNotFound}}
	svc, _, cleanup := setupBatchService(t, r, nil)
	defer cleanup()

	batch, err := svc.Create([]string{"a.com", "b.com"}, model.SourceStream)
	require.NoError(t, err)
	_, err = svc.Execute(context.Background(), batch, &eventLog{})
	require.NoError(t, err)

	got, data, err := svc.Export()
	require.NoError(t, err)
	assert.Equal(t, batch.ID, got.ID)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(export.SheetName)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, []string{"Metric", "a.com", "b.com"}, rows[0])
	assert.Equal(t, export.FailedMarker, rows[1][2])
}

func TestBatchService_Enqueue(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	q := queue.NewQueue(client, "test_batches")
	svc, _, cleanup := setupBatchService(t, &fakeRunner{}, q)
	defer cleanup()

	resp, err := svc.Enqueue(context.Background(), &dto.CreateBatchRequest{URLs: []string{"a.com"}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "/api/v1/ws?batch_id="+resp.BatchID, resp.WatchURL)

	msg, err := q.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, resp.BatchID, msg.BatchID)
	assert.Equal(t, []string{"https://a.com"}, msg.URLs)

	got, err := svc.Get(resp.BatchID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchPending, got.Status)
	assert.Equal(t, model.SourceQueue, got.Source)
}

func TestBatchService_Enqueue_NoRedis(t *testing.T) {
	svc, _, cleanup := setupBatchService(t, &fakeRunner{}, nil)
	defer cleanup()

	_, err := svc.Enqueue(context.Background(), &dto.CreateBatchRequest{URLs: []string{"a.com"}})
	assert.ErrorIs(t, err, ErrQueueUnavailable)
}

func TestReportColumns(t *testing.T) {
	batch := &model.Batch{Sites: []model.SiteResult{
		{Index: 1, URL: "https://a.com", Status: model.SiteFailed, Reason: "unreachable"},
		{Index: 2, URL: "https://b.com", Status: model.SiteSucceeded},
	}}
	require.NoError(t, batch.Sites[1].SetRecord(testutil.SampleRecord("b.com", 70)))

	cols, err := ReportColumns(batch)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.True(t, cols[0].Failed())
	assert.Equal(t, "unreachable", cols[0].Reason)
	assert.False(t, cols[1].Failed())
	v, _ := cols[1].Record.Get(parser.KeyOverall)
	f, ok := v.Float()
	require.True(t, ok)
	assert.Equal(t, 70.0, f)
}
