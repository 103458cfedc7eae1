// Package runner 单个站点的分析会话：
// 导航 → 填写 → 提交 → 轮询结果 → 提取，每一步都是有上限的等待。
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/site_compare_server/config"
	"github.com/qs3c/site_compare_server/internal/browser"
	"github.com/qs3c/site_compare_server/internal/locator"
	"github.com/qs3c/site_compare_server/internal/parser"
	"github.com/qs3c/site_compare_server/internal/pkg/metrics"
)

// Status 站点任务状态
type Status string

const (
	StatusQueued     Status = "queued"
	StatusNavigating Status = "navigating"
	StatusSubmitting Status = "submitting"
	StatusPolling    Status = "polling"
	StatusExtracting Status = "extracting"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusTimedOut   Status = "timed_out"
)

// 进度阶段文案
const (
	PhaseBrowser = "Creating fresh browser"
	PhaseSubmit  = "Submitting to RateMySite"
	PhaseWaiting = "Waiting for results"
	PhaseParsing = "Parsing output"
)

// SiteTask 单个站点任务，只由所属 Runner 修改
type SiteTask struct {
	Index     int
	URL       string
	Status    Status
	StartedAt time.Time
	Deadline  time.Time
}

// Emitter 接收进度和调试信息
type Emitter interface {
	Progress(phase string, p, of int)
	Debug(message string)
}

type nopEmitter struct{}

func (nopEmitter) Progress(string, int, int) {}
func (nopEmitter) Debug(string)              {}

// Outcome 任务终态：Record 与 Err 恰好一个非空
type Outcome struct {
	Record *parser.Record
	Err    *TaskError
}

func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Runner 为每个站点任务开启独立的浏览器会话
type Runner struct {
	rt     browser.Runtime
	cfg    config.AnalysisConfig
	locate *locator.Locator
	probe  *locator.Locator
	log    *logrus.Entry
}

func New(rt browser.Runtime, cfg config.AnalysisConfig) *Runner {
	cfg = cfg.Defaults()
	return &Runner{
		rt:     rt,
		cfg:    cfg,
		locate: locator.New(cfg.LocateWindow),
		probe:  locator.New(cfg.ProbeWindow),
		log:    logrus.WithField("component", "runner"),
	}
}

// Steps 单个任务的进度分母
func (r *Runner) Steps() int {
	return r.cfg.PollSteps + 4
}

// Run 执行一个站点任务。所有失败都转换为 Outcome.Err，不会向上抛出。
func (r *Runner) Run(ctx context.Context, task *SiteTask, em Emitter) Outcome {
	if em == nil {
		em = nopEmitter{}
	}
	start := time.Now()
	task.Status = StatusQueued
	task.StartedAt = start
	task.Deadline = start.Add(r.cfg.SiteTimeout)

	tctx, cancel := context.WithDeadline(ctx, task.Deadline)
	defer cancel()

	s := &session{
		Runner: r,
		parent: ctx,
		ctx:    tctx,
		task:   task,
		em:     em,
		of:     r.Steps(),
		log:    r.log.WithFields(logrus.Fields{"index": task.Index, "url": task.URL}),
	}
	rec, terr := s.run()

	switch {
	case terr == nil:
		task.Status = StatusSucceeded
		metrics.RecordSiteOutcome("succeeded", time.Since(start))
		s.log.WithField("fields", rec.Present()).Info("site analysis succeeded")
		return Outcome{Record: rec}
	case terr.Kind == KindTimedOut:
		task.Status = StatusTimedOut
	default:
		task.Status = StatusFailed
	}
	metrics.RecordSiteOutcome(terr.Kind.MetricLabel(), time.Since(start))
	s.log.WithError(terr.Err).WithField("kind", terr.Kind).Warn("site analysis failed")
	return Outcome{Err: terr}
}

type session struct {
	*Runner
	parent context.Context
	ctx    context.Context
	task   *SiteTask
	em     Emitter
	of     int
	log    *logrus.Entry
	sess   browser.Session
}

func (s *session) debug(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.log.Debug(msg)
	s.em.Debug(msg)
}

func (s *session) transition(st Status, phase string, p int) {
	s.task.Status = st
	s.log.WithField("phase", st).Debug("transition")
	s.em.Progress(phase, p, s.of)
}

// interrupted 取消优先于超时；两者都未发生返回 nil
func (s *session) interrupted() *TaskError {
	if err := s.parent.Err(); err != nil {
		return cancelled(err)
	}
	if err := s.ctx.Err(); err != nil {
		return timedOut(s.cfg.SiteTimeout, err)
	}
	return nil
}

// fail 把底层错误归类；上下文结束时一律按取消或超时处理
func (s *session) fail(err error, classify func(error) *TaskError) *TaskError {
	if terr := s.interrupted(); terr != nil {
		return terr
	}
	return classify(err)
}

func (s *session) run() (*parser.Record, *TaskError) {
	s.transition(StatusNavigating, PhaseBrowser, 1)
	if terr := s.interrupted(); terr != nil {
		return nil, terr
	}

	sess, err := s.rt.NewSession(s.ctx)
	if err != nil {
		return nil, s.fail(err, func(err error) *TaskError {
			if errors.Is(err, browser.ErrUnavailable) {
				return internal(ReasonUnavailable, err)
			}
			return internal("", err)
		})
	}
	metrics.SessionOpened()
	s.sess = sess
	defer s.release()

	page := sess.Page()
	if terr := s.navigate(page); terr != nil {
		return nil, terr
	}

	s.transition(StatusSubmitting, PhaseSubmit, 2)
	if terr := s.submit(page); terr != nil {
		return nil, terr
	}

	s.task.Status = StatusPolling
	if terr := s.poll(page); terr != nil {
		return nil, terr
	}

	s.transition(StatusExtracting, PhaseParsing, s.of-1)
	rec, terr := s.extract(page)
	if terr != nil {
		return nil, terr
	}
	// 超时与正常完成竞争时以超时为准
	if terr := s.interrupted(); terr != nil {
		return nil, terr
	}
	return rec, nil
}

// release 释放会话；已取消时不等待浏览器关闭
func (s *session) release() {
	closeSession := func() {
		if err := s.sess.Close(); err != nil {
			s.log.WithError(err).Warn("close browser session")
		}
		metrics.SessionClosed()
	}
	if s.parent.Err() != nil {
		go closeSession()
		return
	}
	closeSession()
}

func (s *session) navigate(page browser.Page) *TaskError {
	s.debug("Navigating to %s", s.cfg.ServiceURL)
	status, err := page.Goto(s.ctx, s.cfg.ServiceURL)
	if err != nil {
		return s.fail(err, func(err error) *TaskError {
			if browser.IsNavigationError(err) {
				return unreachable(err)
			}
			return internal("", err)
		})
	}
	if status >= 400 {
		return unreachable(&browser.NavigationError{URL: s.cfg.ServiceURL, Status: status})
	}
	s.debug("Page loaded (status %d)", status)
	s.dismissCookieBanner(page)
	return s.interrupted()
}

func (s *session) dismissCookieBanner(page browser.Page) {
	m, err := s.probe.Locate(s.ctx, page, locator.CookieBannerChain)
	if err != nil {
		if !errors.Is(err, locator.ErrNotFound) {
			s.debug("Cookie banner lookup failed: %v", err)
		}
		return
	}
	if err := m.Element.Click(s.ctx); err != nil {
		s.debug("Cookie banner click failed: %v", err)
		return
	}
	s.debug("Dismissed cookie banner via %s", m.Strategy.Name)
}

func (s *session) submit(page browser.Page) *TaskError {
	input, err := s.locate.Locate(s.ctx, page, locator.URLInputChain)
	if err != nil {
		if terr := s.interrupted(); terr != nil {
			return terr
		}
		if !errors.Is(err, locator.ErrNotFound) {
			return internal("", err)
		}
		s.debug("URL input not found after %d strategies", len(locator.URLInputChain.Strategies))
		return formNotFound(err)
	}
	s.debug("Found URL input via %s", input.Strategy.Name)

	if err := input.Element.Fill(s.ctx, s.task.URL); err != nil {
		return s.fail(err, func(err error) *TaskError { return internal("fill url input", err) })
	}

	button, err := s.locate.Locate(s.ctx, page, locator.SubmitChain)
	if err != nil && !errors.Is(err, locator.ErrNotFound) {
		return s.fail(err, func(err error) *TaskError { return internal("", err) })
	}
	switch {
	case button == nil:
		s.debug("Submit button not found")
	case s.click(button):
		return s.interrupted()
	}
	if terr := s.interrupted(); terr != nil {
		return terr
	}

	s.debug("Pressing Enter in URL input")
	if err := input.Element.Press(s.ctx, "Enter"); err != nil {
		return s.fail(err, func(err error) *TaskError { return formNotFound(err) })
	}
	return s.interrupted()
}

// click 点击提交按钮，按钮不可用或点击失败时返回 false，由调用方回退到回车提交
func (s *session) click(button *locator.Match) bool {
	enabled, err := button.Element.Enabled(s.ctx)
	if err != nil || !enabled {
		s.debug("Submit button via %s is not clickable", button.Strategy.Name)
		return false
	}
	if err := button.Element.Click(s.ctx); err != nil {
		s.debug("Submit click failed: %v", err)
		return false
	}
	s.debug("Clicked submit via %s", button.Strategy.Name)
	return true
}

// poll 每个间隔探测一次结果标记，每次探测前都上报进度
func (s *session) poll(page browser.Page) *TaskError {
	for k := 1; ; k++ {
		p := 2 + k
		if ceil := s.cfg.PollSteps + 2; p > ceil {
			p = ceil
		}
		s.em.Progress(PhaseWaiting, p, s.of)

		m, err := s.probe.Locate(s.ctx, page, locator.ScorePanelChain)
		if err == nil {
			s.debug("Results detected via %s after %d polls", m.Strategy.Name, k)
			return nil
		}
		if terr := s.interrupted(); terr != nil {
			return terr
		}
		if !errors.Is(err, locator.ErrNotFound) {
			return internal("", err)
		}
		if err := sleep(s.ctx, s.cfg.PollInterval); err != nil {
			return s.interrupted()
		}
	}
}

func (s *session) extract(page browser.Page) (*parser.Record, *TaskError) {
	if err := sleep(s.ctx, s.cfg.SettleDelay); err != nil {
		return nil, s.interrupted()
	}

	html, err := page.Content(s.ctx)
	if err != nil {
		if terr := s.interrupted(); terr != nil {
			return nil, terr
		}
		// 读取失败按空页面处理，空记录仍然是成功
		s.debug("Reading page content failed: %v", err)
		html = ""
	}

	rec := parser.Parse(html, s.task.URL)
	s.debug("Extracted %d of %d fields", rec.Present(), rec.Len())
	return rec, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
