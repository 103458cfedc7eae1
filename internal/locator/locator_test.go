package locator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/site_compare_server/internal/browser"
	"github.com/qs3c/site_compare_server/internal/browser/browsertest"
)

func testChain() Chain {
	return Chain{
		Role: RoleURLInput,
		Strategies: []Strategy{
			xpath("first", "//input[@type='url']"),
			xpath("second", "//input"),
			css("third", "textarea"),
		},
	}
}

func TestLocate_FirstStrategyWins(t *testing.T) {
	chain := testChain()
	first := browsertest.NewElement("first")
	second := browsertest.NewElement("second")
	page := browsertest.NewPage().
		Add(chain.Strategies[0].Selector, first).
		Add(chain.Strategies[1].Selector, second)

	m, err := New(20*time.Millisecond).Locate(context.Background(), page, chain)
	require.NoError(t, err)

	assert.Same(t, first, m.Element)
	assert.Equal(t, "first", m.Strategy.Name)
	assert.Equal(t, 1, m.Attempts)
	assert.Len(t, page.Waits(), 1, "should short-circuit on first match")
}

func TestLocate_FallsBackInOrder(t *testing.T) {
	chain := testChain()
	third := browsertest.NewElement("third")
	page := browsertest.NewPage().Add(chain.Strategies[2].Selector, third)

	m, err := New(10*time.Millisecond).Locate(context.Background(), page, chain)
	require.NoError(t, err)

	assert.Same(t, third, m.Element)
	assert.Equal(t, 3, m.Attempts)

	waits := page.Waits()
	require.Len(t, waits, 3)
	for i, s := range chain.Strategies {
		assert.Equal(t, s.Selector, waits[i])
	}
}

func TestLocate_NotFound(t *testing.T) {
	page := browsertest.NewPage()

	start := time.Now()
	m, err := New(10*time.Millisecond).Locate(context.Background(), page, testChain())

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, m)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond, "each strategy gets its own window")
}

func TestLocate_PageErrorStopsChain(t *testing.T) {
	chain := testChain()
	page := browsertest.NewPage().Add(chain.Strategies[1].Selector, browsertest.NewElement("second"))
	page.WaitErr = browser.ErrSessionClosed

	m, err := New(10*time.Millisecond).Locate(context.Background(), page, chain)

	assert.Nil(t, m)
	assert.ErrorIs(t, err, browser.ErrSessionClosed)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Len(t, page.Waits(), 1)
}

func TestLocate_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(time.Second).Locate(ctx, browsertest.NewPage(), testChain())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocate_EmptyChain(t *testing.T) {
	_, err := New(time.Millisecond).Locate(context.Background(), browsertest.NewPage(), Chain{Role: RoleSubmit})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDefaultChains(t *testing.T) {
	for _, chain := range []Chain{URLInputChain, SubmitChain, CookieBannerChain, ScorePanelChain} {
		assert.NotEmpty(t, chain.Strategies, "chain %s", chain.Role)
		for _, s := range chain.Strategies {
			assert.NotEmpty(t, s.Name)
			assert.NotEmpty(t, s.Selector.Value)
		}
	}
	assert.Equal(t, browser.ByXPath, ScorePanelChain.Strategies[0].Selector.By)
}
