// Package orchestrator 按顺序逐个运行站点任务，把进度和结果合并成一条有序事件流。
package orchestrator

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/site_compare_server/internal/parser"
	"github.com/qs3c/site_compare_server/internal/pkg/metrics"
	"github.com/qs3c/site_compare_server/internal/runner"
)

// SiteRunner 运行单个站点任务
type SiteRunner interface {
	Run(ctx context.Context, task *runner.SiteTask, em runner.Emitter) runner.Outcome
}

// Summary 批次结束时的统计
type Summary struct {
	Succeeded int
	Failed    int
	Cancelled bool
	Results   []Result
}

// Result 单个站点的终态
type Result struct {
	Index   int
	URL     string
	Outcome runner.Outcome
}

type Orchestrator struct {
	runner SiteRunner
	log    *logrus.Entry
}

func New(r SiteRunner) *Orchestrator {
	return &Orchestrator{
		runner: r,
		log:    logrus.WithField("component", "orchestrator"),
	}
}

// Run 严格按顺序执行 job 中的站点：同一时刻只有一个浏览器会话。
// 单站点失败只体现在 result 事件里；只有 sink 写入失败才返回错误，此时不再发送 done。
func (o *Orchestrator) Run(ctx context.Context, job *Job, sink Sink) (*Summary, error) {
	log := o.log.WithField("batch_id", job.ID)
	n := len(job.URLs)
	summary := &Summary{}

	job.setStatus(JobRunning)
	if err := sink.Emit(Event{Type: EventInit, Payload: InitPayload{
		BatchID: job.ID,
		Total:   n,
		Rows:    parser.RowHints(),
	}}); err != nil {
		return summary, fmt.Errorf("emit init: %w", err)
	}

	for i, url := range job.URLs {
		index := i + 1
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}

		job.setCurrent(index)
		log.WithFields(logrus.Fields{"index": index, "url": url}).Info("site started")
		if err := sink.Emit(Event{Type: EventStartURL, Payload: StartURLPayload{
			Index:   index,
			URL:     url,
			Host:    parser.CompanyFromURL(url),
			Percent: job.advance(slicePercent(index, n, 0, 1)),
		}}); err != nil {
			return summary, fmt.Errorf("emit start_url %d: %w", index, err)
		}

		out, err := o.runTask(ctx, job, index, url, sink)
		if err != nil {
			return summary, err
		}

		payload := ResultPayload{Index: index, URL: url}
		if out.Succeeded() {
			payload.Data = out.Record
			summary.Succeeded++
		} else {
			payload.Error = string(out.Err.Kind)
			payload.Reason = out.Err.Reason
			summary.Failed++
			if out.Err.Kind == runner.KindCancelled {
				summary.Cancelled = true
			}
		}
		summary.Results = append(summary.Results, Result{Index: index, URL: url, Outcome: out})

		if err := sink.Emit(Event{Type: EventResult, Payload: payload}); err != nil {
			return summary, fmt.Errorf("emit result %d: %w", index, err)
		}
		if summary.Cancelled {
			break
		}
	}

	status := JobDone
	if summary.Cancelled || ctx.Err() != nil {
		summary.Cancelled = true
		status = JobCancelled
		metrics.RecordBatchCancelled()
	}
	pct := job.finish(status)
	log.WithFields(logrus.Fields{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"cancelled": summary.Cancelled,
	}).Info("batch finished")

	if err := sink.Emit(Event{Type: EventDone, Payload: DonePayload{
		OK:        !summary.Cancelled,
		Cancelled: summary.Cancelled,
		Succeeded: summary.Succeeded,
		Failed:    summary.Failed,
		Percent:   pct,
	}}); err != nil {
		return summary, fmt.Errorf("emit done: %w", err)
	}
	return summary, nil
}

// runTask 运行单个站点；sink 失败时取消该站点并返回错误
func (o *Orchestrator) runTask(ctx context.Context, job *Job, index int, url string, sink Sink) (runner.Outcome, error) {
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	em := &taskEmitter{job: job, index: index, total: len(job.URLs), sink: sink, abort: cancel}
	task := &runner.SiteTask{Index: index, URL: url}
	out := o.runner.Run(taskCtx, task, em)
	if em.err != nil {
		return out, fmt.Errorf("emit for site %d: %w", index, em.err)
	}
	return out, nil
}

// taskEmitter 把单站点进度换算成批次总进度后写入 sink
type taskEmitter struct {
	job   *Job
	index int
	total int
	sink  Sink
	abort context.CancelFunc
	err   error
}

func (e *taskEmitter) Progress(phase string, p, of int) {
	if e.err != nil {
		return
	}
	e.emit(Event{Type: EventProgress, Payload: ProgressPayload{
		Index:   e.index,
		Phase:   phase,
		P:       p,
		Of:      of,
		Percent: e.job.advance(slicePercent(e.index, e.total, p, of)),
	}})
}

func (e *taskEmitter) Debug(message string) {
	if e.err != nil {
		return
	}
	e.emit(Event{Type: EventDebug, Payload: DebugPayload{Index: e.index, Message: message}})
}

func (e *taskEmitter) emit(ev Event) {
	if err := e.sink.Emit(ev); err != nil {
		e.err = err
		e.abort()
	}
}
