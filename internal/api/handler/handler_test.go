package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/site_compare_server/config"
	"github.com/qs3c/site_compare_server/internal/orchestrator"
	"github.com/qs3c/site_compare_server/internal/parser"
	"github.com/qs3c/site_compare_server/internal/pkg/queue"
	"github.com/qs3c/site_compare_server/internal/pkg/response"
	"github.com/qs3c/site_compare_server/internal/repository"
	"github.com/qs3c/site_compare_server/internal/runner"
	"github.com/qs3c/site_compare_server/internal/service"
	"github.com/qs3c/site_compare_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubRunner 失败列表中的 URL 返回 Unreachable，其余成功
type stubRunner struct {
	unreachable map[string]bool
}

func (r *stubRunner) Run(ctx context.Context, task *runner.SiteTask, em runner.Emitter) runner.Outcome {
	em.Progress(runner.PhaseBrowser, 1, 4)
	if r.unreachable[task.URL] {
		return runner.Outcome{Err: &runner.TaskError{Kind: runner.KindUnreachable, Reason: runner.ReasonUnreachable}}
	}
	em.Debug("Found URL input via type=url")
	em.Progress(runner.PhaseParsing, 3, 4)
	return runner.Outcome{Record: testutil.SampleRecord(parser.CompanyFromURL(task.URL), 75)}
}

// testContext 本地测试上下文
type testContext struct {
	DB      *gorm.DB
	Service *service.BatchService
	Queue   *queue.Queue
}

// setupBatchService withRedis 为 true 时使用 miniredis 队列
func setupBatchService(t *testing.T, r orchestrator.SiteRunner, withRedis bool) (*testContext, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	cfg := &config.Config{Analysis: config.AnalysisConfig{MaxURLs: 4}}

	ctx := &testContext{DB: db}
	var closers []func()
	if withRedis {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		ctx.Queue = queue.NewQueue(client, "test_batches")
		closers = append(closers, func() {
			client.Close()
			mr.Close()
		})
	}
	ctx.Service = service.NewBatchService(orchestrator.New(r), repository.NewBatchRepository(db), ctx.Queue, cfg)

	cleanup := func() {
		for _, c := range closers {
			c()
		}
		testutil.CleanupTestDB(t, db)
	}
	return ctx, cleanup
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

type sseMessage struct {
	Event string
	Data  map[string]interface{}
}

// parseSSE 按空行切分事件
func parseSSE(t *testing.T, body string) []sseMessage {
	t.Helper()
	var (
		msgs []sseMessage
		cur  sseMessage
	)
	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			cur.Event = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &cur.Data))
		case line == "" && cur.Event != "":
			msgs = append(msgs, cur)
			cur = sseMessage{}
		}
	}
	require.NoError(t, sc.Err())
	return msgs
}
