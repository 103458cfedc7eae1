// Package browser 定义浏览器自动化能力的端口。
//
// 上层只依赖 导航 / 按策略查找元素 / 读取文本 这几个能力，
// 具体引擎（playwright）在 adapter 中实现，测试使用 browsertest 中的假实现。
package browser

import (
	"context"
	"time"
)

// By 元素查找方式
type By string

const (
	ByXPath       By = "xpath"
	ByCSS         By = "css"
	ByText        By = "text"
	ByRole        By = "role"
	ByPlaceholder By = "placeholder"
)

// Selector 单个查找描述
type Selector struct {
	By    By
	Value string
	Name  string // 仅 ByRole 使用：可访问名称
}

func (s Selector) String() string {
	if s.Name != "" {
		return string(s.By) + "=" + s.Value + "[" + s.Name + "]"
	}
	return string(s.By) + "=" + s.Value
}

// Runtime 创建浏览器会话
type Runtime interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}

// Session 一个独立的浏览器会话，生命周期属于单个站点任务
type Session interface {
	Page() Page
	Close() error
}

// Page 当前页面
type Page interface {
	// Goto 导航并等待页面加载，返回 HTTP 状态码（未知时为 0）
	Goto(ctx context.Context, url string) (int, error)
	// WaitFor 在 timeout 内等待元素出现，超时返回 ErrNotFound
	WaitFor(ctx context.Context, sel Selector, timeout time.Duration) (Element, error)
	// Content 当前页面完整 HTML
	Content(ctx context.Context) (string, error)
}

// Element 页面元素句柄
type Element interface {
	Fill(ctx context.Context, value string) error
	Click(ctx context.Context) error
	Press(ctx context.Context, key string) error
	Enabled(ctx context.Context) (bool, error)
	Text(ctx context.Context) (string, error)
}
