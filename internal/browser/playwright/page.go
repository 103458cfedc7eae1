package playwright

import (
	"context"
	"errors"
	"fmt"
	"time"

	pw "github.com/playwright-community/playwright-go"

	"github.com/qs3c/site_compare_server/internal/browser"
)

const navigationTimeout = 30 * time.Second

type pwPage struct {
	page pw.Page
}

func (p *pwPage) Goto(ctx context.Context, url string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	resp, err := p.page.Goto(url, pw.PageGotoOptions{
		WaitUntil: pw.WaitUntilStateDomcontentloaded,
		Timeout:   timeoutMs(ctx, navigationTimeout),
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, &browser.NavigationError{URL: url, Err: err}
	}
	if resp == nil {
		return 0, nil
	}
	status := resp.Status()
	if status >= 400 {
		return status, &browser.NavigationError{URL: url, Status: status}
	}
	return status, nil
}

func (p *pwPage) locator(sel browser.Selector) (pw.Locator, error) {
	switch sel.By {
	case browser.ByXPath:
		return p.page.Locator("xpath=" + sel.Value), nil
	case browser.ByCSS:
		return p.page.Locator(sel.Value), nil
	case browser.ByText:
		return p.page.GetByText(sel.Value), nil
	case browser.ByPlaceholder:
		return p.page.GetByPlaceholder(sel.Value), nil
	case browser.ByRole:
		opts := pw.PageGetByRoleOptions{}
		if sel.Name != "" {
			opts.Name = sel.Name
		}
		return p.page.GetByRole(pw.AriaRole(sel.Value), opts), nil
	default:
		return nil, fmt.Errorf("unsupported selector kind %q", sel.By)
	}
}

func (p *pwPage) WaitFor(ctx context.Context, sel browser.Selector, timeout time.Duration) (browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	loc, err := p.locator(sel)
	if err != nil {
		return nil, err
	}
	loc = loc.First()
	err = loc.WaitFor(pw.LocatorWaitForOptions{
		State:   pw.WaitForSelectorStateVisible,
		Timeout: timeoutMs(ctx, timeout),
	})
	if err != nil {
		return nil, waitError(ctx, err)
	}
	return &pwElement{loc: loc}, nil
}

// waitError 等待超时视为未找到，页面或浏览器关闭视为会话关闭，其余原样返回
func waitError(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case isTimeout(err):
		return browser.ErrNotFound
	case errors.Is(err, pw.ErrTargetClosed):
		return fmt.Errorf("%w: %v", browser.ErrSessionClosed, err)
	default:
		return err
	}
}

func (p *pwPage) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Content()
}

type pwElement struct {
	loc pw.Locator
}

func (e *pwElement) Fill(ctx context.Context, value string) error {
	return e.loc.Fill(value, pw.LocatorFillOptions{Timeout: timeoutMs(ctx, defaultActionTimeout)})
}

// Click 普通点击被遮挡时退回到 JS 点击
func (e *pwElement) Click(ctx context.Context) error {
	err := e.loc.Click(pw.LocatorClickOptions{Timeout: timeoutMs(ctx, defaultActionTimeout)})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if _, jsErr := e.loc.Evaluate("el => el.click()", nil); jsErr != nil {
		return fmt.Errorf("click: %v; js click: %w", err, jsErr)
	}
	return nil
}

func (e *pwElement) Press(ctx context.Context, key string) error {
	return e.loc.Press(key, pw.LocatorPressOptions{Timeout: timeoutMs(ctx, defaultActionTimeout)})
}

func (e *pwElement) Enabled(ctx context.Context) (bool, error) {
	return e.loc.IsEnabled(pw.LocatorIsEnabledOptions{Timeout: timeoutMs(ctx, defaultActionTimeout)})
}

func (e *pwElement) Text(ctx context.Context) (string, error) {
	return e.loc.InnerText(pw.LocatorInnerTextOptions{Timeout: timeoutMs(ctx, defaultActionTimeout)})
}
