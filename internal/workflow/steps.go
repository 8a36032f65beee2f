package workflow

import (
	"context"
	"time"

	"github.com/jakopako/bankpull/internal/browser"
)

const defaultStepTimeout = 30 * time.Second

// boundedPage limits every interaction with the wrapped page to timeout so
// that a locator matching nothing fails the step instead of waiting forever.
type boundedPage struct {
	browser.Page
	timeout time.Duration
}

func withStepTimeout(p browser.Page, timeout time.Duration) browser.Page {
	return &boundedPage{Page: p, timeout: timeout}
}

func (p *boundedPage) Navigate(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.Page.Navigate(ctx, url)
}

func (p *boundedPage) Back(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.Page.Back(ctx)
}

func (p *boundedPage) WaitFor(ctx context.Context, selector string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.Page.WaitFor(ctx, selector)
}

func (p *boundedPage) WaitLoaded(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.Page.WaitLoaded(ctx)
}

func (p *boundedPage) Click(ctx context.Context, selector string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.Page.Click(ctx, selector)
}

func (p *boundedPage) ClickNth(ctx context.Context, selector string, index int, child string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.Page.ClickNth(ctx, selector, index, child)
}

func (p *boundedPage) ReplaceText(ctx context.Context, selector, value string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.Page.ReplaceText(ctx, selector, value)
}
