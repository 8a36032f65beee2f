// Package browsertest provides a scriptable in-memory browser.Page.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Page records every interaction and serves a static document. Hooks can
// be set to inject errors or side effects per call.
type Page struct {
	Document string

	// OnClick is called for Click and ClickNth. A non-nil error fails the call.
	OnClick func(selector string) error
	// OnType is called for ReplaceText.
	OnType func(selector, value string) error
	// OnNavigate is called for Navigate and Back ("back" as url).
	OnNavigate func(url string) error
	// Stall makes Click and ReplaceText on the selectors it reports block
	// until ctx is done, like a browser waiting for an element that never appears.
	Stall func(selector string) bool

	mu    sync.Mutex
	calls []string
	waits int
}

func (p *Page) record(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

// Calls returns the recorded interactions, e.g. "click .apply" or "type #from=01/01/2024".
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// CallsWithPrefix returns the recorded interactions starting with prefix.
func (p *Page) CallsWithPrefix(prefix string) []string {
	out := []string{}
	for _, c := range p.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Waits returns how often WaitFor was called.
func (p *Page) Waits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waits
}

func (p *Page) count(selector string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.Document))
	if err != nil {
		return 0
	}
	return doc.Find(selector).Length()
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.record("navigate %s", url)
	if p.OnNavigate != nil {
		return p.OnNavigate(url)
	}
	return nil
}

func (p *Page) Back(ctx context.Context) error {
	p.record("back")
	if p.OnNavigate != nil {
		return p.OnNavigate("back")
	}
	return nil
}

// WaitFor succeeds immediately if the document contains a match and
// otherwise blocks until ctx is done.
func (p *Page) WaitFor(ctx context.Context, selector string) error {
	p.mu.Lock()
	p.waits++
	p.mu.Unlock()
	p.record("wait %s", selector)
	if p.count(selector) > 0 {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *Page) WaitLoaded(ctx context.Context) error {
	p.record("loaded")
	return nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	return p.Document, nil
}

func (p *Page) stall(ctx context.Context, selector string) error {
	if p.Stall == nil || !p.Stall(selector) {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *Page) Click(ctx context.Context, selector string) error {
	p.record("click %s", selector)
	if err := p.stall(ctx, selector); err != nil {
		return err
	}
	if p.OnClick != nil {
		return p.OnClick(selector)
	}
	return nil
}

func (p *Page) ClickNth(ctx context.Context, selector string, index int, child string) error {
	p.record("clicknth %s[%d]", selector, index)
	if n := p.count(selector); index >= n {
		return fmt.Errorf("no element at position %d for selector %s (found %d)", index, selector, n)
	}
	if p.OnClick != nil {
		return p.OnClick(fmt.Sprintf("%s[%d]", selector, index))
	}
	return nil
}

func (p *Page) ReplaceText(ctx context.Context, selector, value string) error {
	p.record("type %s=%s", selector, value)
	if err := p.stall(ctx, selector); err != nil {
		return err
	}
	if p.OnType != nil {
		return p.OnType(selector, value)
	}
	return nil
}

func (p *Page) Highlight(ctx context.Context, selector string, d time.Duration) (int, error) {
	p.record("highlight %s", selector)
	return p.count(selector), nil
}

// Dashboard renders a minimal account list using the default locators.
func Dashboard(names ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for _, n := range names {
		fmt.Fprintf(&b, `<li class="account-list-item"><a href="#"><span class="account-name"> %s </span></a></li>`, n)
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}
