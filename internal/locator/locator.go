// Package locator 按有序策略链查找页面元素，第一个命中的策略胜出。
package locator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qs3c/site_compare_server/internal/browser"
)

// ErrNotFound 所有策略都在各自窗口内未命中
var ErrNotFound = errors.New("locator: not found")

// Role 语义角色
type Role string

const (
	RoleURLInput     Role = "URL input"
	RoleSubmit       Role = "submit button"
	RoleCookieBanner Role = "cookie banner"
	RoleScorePanel   Role = "score panel"
)

// Strategy 单个查找策略
type Strategy struct {
	Name     string
	Selector browser.Selector
}

// Chain 角色对应的策略链
type Chain struct {
	Role       Role
	Strategies []Strategy
}

// Match 命中结果
type Match struct {
	Element  browser.Element
	Strategy Strategy
	Attempts int
}

// Locator 为每个策略分配独立的等待窗口，与会话总超时无关
type Locator struct {
	window time.Duration
}

func New(window time.Duration) *Locator {
	return &Locator{window: window}
}

// Locate 依次尝试策略链，返回第一个命中的元素。
// 全部未命中返回 ErrNotFound；ctx 结束时返回 ctx.Err()；
// 页面本身出错（会话关闭等）时立即返回该错误，不再尝试后续策略。
func (l *Locator) Locate(ctx context.Context, page browser.Page, chain Chain) (*Match, error) {
	for i, s := range chain.Strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		el, err := page.WaitFor(ctx, s.Selector, l.window)
		if err == nil {
			return &Match{Element: el, Strategy: s, Attempts: i + 1}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, browser.ErrNotFound) {
			return nil, fmt.Errorf("%s via %s: %w", chain.Role, s.Name, err)
		}
	}
	return nil, ErrNotFound
}
