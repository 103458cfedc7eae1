// Package browsertest 提供无需真实浏览器的 browser 假实现
package browsertest

import (
	"context"
	"sync"
	"time"

	"github.com/qs3c/site_compare_server/internal/browser"
)

// Element 可记录操作的假元素
type Element struct {
	mu       sync.Mutex
	page     *Page
	text     string
	disabled bool
	clickErr error
	filled   []string
	clicks   int
	presses  []string
}

func NewElement(text string) *Element {
	return &Element{text: text}
}

// Disabled 标记为不可用
func (e *Element) Disabled() *Element {
	e.disabled = true
	return e
}

// FailClick 点击时返回错误
func (e *Element) FailClick(err error) *Element {
	e.clickErr = err
	return e
}

func (e *Element) Fill(ctx context.Context, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filled = append(e.filled, value)
	return nil
}

func (e *Element) Click(ctx context.Context) error {
	e.mu.Lock()
	if e.clickErr != nil {
		e.mu.Unlock()
		return e.clickErr
	}
	e.clicks++
	e.mu.Unlock()
	e.page.markSubmitted()
	return nil
}

func (e *Element) Press(ctx context.Context, key string) error {
	e.mu.Lock()
	e.presses = append(e.presses, key)
	e.mu.Unlock()
	if key == "Enter" {
		e.page.markSubmitted()
	}
	return nil
}

func (e *Element) Enabled(ctx context.Context) (bool, error) {
	return !e.disabled, nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	return e.text, nil
}

func (e *Element) Filled() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.filled...)
}

func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

func (e *Element) Presses() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.presses...)
}

type entry struct {
	el          *Element
	afterSubmit bool
}

// Page 按脚本返回元素的假页面
type Page struct {
	mu         sync.Mutex
	Status     int
	GotoErr    error
	WaitErr    error // 非 nil 时 WaitFor 直接返回，模拟页面崩溃或会话关闭
	HTML       string
	ContentErr error

	elements  map[browser.Selector]entry
	submitted bool
	visits    []string
	waits     []browser.Selector
}

func NewPage() *Page {
	return &Page{
		Status:   200,
		elements: make(map[browser.Selector]entry),
	}
}

// Add 页面加载后立即可见的元素
func (p *Page) Add(sel browser.Selector, el *Element) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	el.page = p
	p.elements[sel] = entry{el: el}
	return p
}

// AddAfterSubmit 提交（点击或回车）后才出现的元素
func (p *Page) AddAfterSubmit(sel browser.Selector, el *Element) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	el.page = p
	p.elements[sel] = entry{el: el, afterSubmit: true}
	return p
}

func (p *Page) markSubmitted() {
	p.mu.Lock()
	p.submitted = true
	p.mu.Unlock()
}

func (p *Page) Submitted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submitted
}

func (p *Page) Visits() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visits...)
}

func (p *Page) Waits() []browser.Selector {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.Selector(nil), p.waits...)
}

func (p *Page) Goto(ctx context.Context, url string) (int, error) {
	p.mu.Lock()
	p.visits = append(p.visits, url)
	status, err := p.Status, p.GotoErr
	p.mu.Unlock()
	if err != nil {
		return 0, &browser.NavigationError{URL: url, Err: err}
	}
	return status, nil
}

func (p *Page) lookup(sel browser.Selector) *Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.elements[sel]
	if !ok || (e.afterSubmit && !p.submitted) {
		return nil
	}
	return e.el
}

func (p *Page) WaitFor(ctx context.Context, sel browser.Selector, timeout time.Duration) (browser.Element, error) {
	p.mu.Lock()
	p.waits = append(p.waits, sel)
	waitErr := p.WaitErr
	p.mu.Unlock()
	if waitErr != nil {
		return nil, waitErr
	}

	deadline := time.Now().Add(timeout)
	for {
		if el := p.lookup(sel); el != nil {
			return el, nil
		}
		if !time.Now().Before(deadline) {
			return nil, browser.ErrNotFound
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (p *Page) Content(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.HTML, p.ContentErr
}

type session struct {
	rt   *Runtime
	page *Page
	once sync.Once
}

func (s *session) Page() browser.Page { return s.page }

func (s *session) Close() error {
	s.once.Do(func() {
		s.rt.mu.Lock()
		s.rt.closed++
		s.rt.mu.Unlock()
	})
	return nil
}

// Runtime 每次 NewSession 调用 NewPage 生成页面
type Runtime struct {
	mu       sync.Mutex
	NewPage  func() *Page
	Err      error
	opened   int
	closed   int
	lastPage *Page
}

func NewRuntime(newPage func() *Page) *Runtime {
	return &Runtime{NewPage: newPage}
}

func (r *Runtime) NewSession(ctx context.Context) (browser.Session, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	page := r.NewPage()
	r.mu.Lock()
	r.opened++
	r.lastPage = page
	r.mu.Unlock()
	return &session{rt: r, page: page}, nil
}

func (r *Runtime) Close() error { return nil }

func (r *Runtime) Opened() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened
}

func (r *Runtime) Closed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Runtime) LastPage() *Page {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPage
}
