package playwright

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	pw "github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"

	"github.com/qs3c/site_compare_server/config"
	"github.com/qs3c/site_compare_server/internal/browser"
)

func TestUnavailable(t *testing.T) {
	rt := Unavailable()

	_, err := rt.NewSession(context.Background())
	assert.ErrorIs(t, err, browser.ErrUnavailable)
	assert.NoError(t, rt.Close())
	assert.NoError(t, rt.Close())
}

func TestLaunchOptions(t *testing.T) {
	rt := &Runtime{cfg: config.BrowserConfig{Headless: true, ExecutablePath: "/usr/bin/chromium"}}

	opts := rt.launchOptions()
	assert.True(t, *opts.Headless)
	assert.Equal(t, "/usr/bin/chromium", *opts.ExecutablePath)
	assert.Contains(t, opts.Args, "--no-sandbox")

	opts = (&Runtime{}).launchOptions()
	assert.False(t, *opts.Headless)
	assert.Nil(t, opts.ExecutablePath)
}

func TestTimeoutMs(t *testing.T) {
	assert.Equal(t, float64(10000), *timeoutMs(context.Background(), 10*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got := *timeoutMs(ctx, 10*time.Second)
	assert.LessOrEqual(t, got, float64(2000))
	assert.Greater(t, got, float64(1000))

	expired, cancel2 := context.WithTimeout(context.Background(), -time.Second)
	defer cancel2()
	assert.Equal(t, float64(1), *timeoutMs(expired, 10*time.Second))
}

func TestWaitError(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, waitError(context.Background(), fmt.Errorf("%w: %w", pw.ErrPlaywright, pw.ErrTimeout)), browser.ErrNotFound)
	assert.ErrorIs(t, waitError(context.Background(), fmt.Errorf("%w: %w", pw.ErrPlaywright, pw.ErrTargetClosed)), browser.ErrSessionClosed)
	assert.ErrorIs(t, waitError(cancelled, pw.ErrTargetClosed), context.Canceled)

	other := errors.New("boom")
	err := waitError(context.Background(), other)
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, browser.ErrNotFound)
}
