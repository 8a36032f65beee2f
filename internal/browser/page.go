package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Page is the subset of page interactions the import workflow needs.
// All selectors are CSS selectors.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Back(ctx context.Context) error
	// WaitFor blocks until at least one element matches selector or ctx is done.
	WaitFor(ctx context.Context, selector string) error
	// WaitLoaded blocks until the document body is ready again after a navigation.
	WaitLoaded(ctx context.Context) error
	HTML(ctx context.Context) (string, error)
	// Click clicks the first match of selector and fails if there is none.
	Click(ctx context.Context, selector string) error
	// ClickNth clicks the element at position index among all matches of
	// selector. If child is not empty and matches inside that element, the
	// child is clicked instead.
	ClickNth(ctx context.Context, selector string, index int, child string) error
	// ReplaceText selects the current content of an input and types value
	// over it. It fails if nothing matches selector.
	ReplaceText(ctx context.Context, selector, value string) error
	// Highlight marks all matches of selector for d and returns the match count.
	Highlight(ctx context.Context, selector string, d time.Duration) (int, error)
}

// chromePage implements Page on top of a chromedp tab context.
type chromePage struct {
	tab context.Context
}

// run executes actions on the tab while honouring cancellation and
// deadline of the caller's context.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tab)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromePage) Back(ctx context.Context) error {
	return p.run(ctx,
		chromedp.NavigateBack(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (p *chromePage) WaitFor(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (p *chromePage) WaitLoaded(ctx context.Context) error {
	// give the click a moment to start the navigation before waiting on the body
	return p.run(ctx,
		chromedp.Sleep(500*time.Millisecond),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var body string
	err := p.run(ctx, chromedp.OuterHTML("html", &body, chromedp.ByQuery))
	return body, err
}

// first resolves the first match of selector without waiting for it to appear.
func first(ctx context.Context, selector string) (*cdp.Node, error) {
	var nodes []*cdp.Node
	if err := chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)).Do(ctx); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no element found for selector %s", selector)
	}
	return nodes[0], nil
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := first(ctx, selector)
		if err != nil {
			return err
		}
		return chromedp.MouseClickNode(node).Do(ctx)
	}))
}

func (p *chromePage) ClickNth(ctx context.Context, selector string, index int, child string) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var nodes []*cdp.Node
		if err := chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)).Do(ctx); err != nil {
			return err
		}
		if index < 0 || index >= len(nodes) {
			return fmt.Errorf("no element at position %d for selector %s (found %d)", index, selector, len(nodes))
		}
		target := nodes[index]
		if child != "" {
			var children []*cdp.Node
			if err := chromedp.Nodes(child, &children, chromedp.ByQuery, chromedp.FromNode(target), chromedp.AtLeast(0)).Do(ctx); err != nil {
				return err
			}
			if len(children) > 0 {
				target = children[0]
			}
		}
		return chromedp.MouseClickNode(target).Do(ctx)
	}))
}

func (p *chromePage) ReplaceText(ctx context.Context, selector, value string) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := first(ctx, selector)
		if err != nil {
			return err
		}
		// a triple click selects the whole content of the input
		if err := chromedp.MouseClickNode(node, chromedp.ClickCount(3)).Do(ctx); err != nil {
			return err
		}
		if err := chromedp.KeyEvent(kb.Backspace).Do(ctx); err != nil {
			return err
		}
		return chromedp.KeyEventNode(node, value).Do(ctx)
	}))
}

const highlightScript = `(function(sel, ms) {
	const elements = document.querySelectorAll(sel);
	elements.forEach(function(el) {
		el.style.border = '5px solid red';
		el.style.backgroundColor = 'rgba(255, 0, 0, 0.1)';
		setTimeout(function() {
			el.style.border = '';
			el.style.backgroundColor = '';
		}, ms);
	});
	return elements.length;
})(%s, %d)`

func (p *chromePage) Highlight(ctx context.Context, selector string, d time.Duration) (int, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return 0, err
	}
	var count int
	err = p.run(ctx, chromedp.Evaluate(fmt.Sprintf(highlightScript, sel, d.Milliseconds()), &count))
	return count, err
}
