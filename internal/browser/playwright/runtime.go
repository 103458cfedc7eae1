// Package playwright 使用 playwright-go 实现 browser 端口
package playwright

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pw "github.com/playwright-community/playwright-go"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/site_compare_server/config"
	"github.com/qs3c/site_compare_server/internal/browser"
)

const defaultActionTimeout = 10 * time.Second

// Runtime 持有 playwright driver 进程，每个会话启动独立的 chromium
type Runtime struct {
	cfg config.BrowserConfig

	mu     sync.Mutex
	pw     *pw.Playwright
	closed bool
}

// NewRuntime 启动 playwright driver
func NewRuntime(cfg config.BrowserConfig) (*Runtime, error) {
	if cfg.InstallDriver {
		logrus.Info("Installing playwright driver...")
		err := pw.Install(&pw.RunOptions{
			SkipInstallBrowsers: cfg.ExecutablePath != "",
			Browsers:            []string{"chromium"},
		})
		if err != nil {
			logrus.Warnf("Playwright driver installation warning: %v", err)
		}
	}

	instance, err := pw.Run()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", browser.ErrUnavailable, err)
	}
	return &Runtime{cfg: cfg, pw: instance}, nil
}

// Unavailable driver 启动失败时使用：服务照常启动，每个站点以 browser unavailable 失败
func Unavailable() *Runtime {
	return &Runtime{}
}

func (r *Runtime) launchOptions() pw.BrowserTypeLaunchOptions {
	opts := pw.BrowserTypeLaunchOptions{
		Headless: pw.Bool(r.cfg.Headless),
		Args: []string{
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-gpu",
		},
	}
	if r.cfg.ExecutablePath != "" {
		opts.ExecutablePath = pw.String(r.cfg.ExecutablePath)
	}
	return opts
}

// NewSession 启动一个全新的浏览器
func (r *Runtime) NewSession(ctx context.Context) (browser.Session, error) {
	r.mu.Lock()
	if r.closed || r.pw == nil {
		r.mu.Unlock()
		return nil, browser.ErrUnavailable
	}
	instance := r.pw
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := instance.Chromium.Launch(r.launchOptions())
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	width, height := r.cfg.WindowWidth, r.cfg.WindowHeight
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}
	bctx, err := b.NewContext(pw.BrowserNewContextOptions{
		Viewport: &pw.Size{Width: width, Height: height},
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("new browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}

	return &session{browser: b, page: &pwPage{page: page}}, nil
}

// Close 停止 driver
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.pw == nil {
		r.closed = true
		return nil
	}
	r.closed = true
	return r.pw.Stop()
}

type session struct {
	browser pw.Browser
	page    *pwPage
	once    sync.Once
	err     error
}

func (s *session) Page() browser.Page { return s.page }

func (s *session) Close() error {
	s.once.Do(func() {
		s.err = s.browser.Close()
	})
	return s.err
}

// timeoutMs 取 fallback 与 ctx 剩余时间中较小者
func timeoutMs(ctx context.Context, fallback time.Duration) *float64 {
	d := fallback
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < d {
			d = remaining
		}
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return pw.Float(float64(d.Milliseconds()))
}

func isTimeout(err error) bool {
	return errors.Is(err, pw.ErrTimeout)
}
