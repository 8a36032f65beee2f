// Package bank reads the account list from the bank's dashboard.
package bank

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jakopako/bankpull/internal/browser"
	"github.com/jakopako/bankpull/internal/selectors"
)

// DefaultDiscoveryTimeout bounds the wait for the account list to appear.
const DefaultDiscoveryTimeout = 10 * time.Second

var ErrDiscoveryTimeout = errors.New("account list not found")

// Account is one account row as currently shown on the dashboard. Ordinal
// is its position among all account items and is only valid until the
// next full page navigation.
type Account struct {
	Ordinal int    `json:"ordinal"`
	Name    string `json:"name"`
}

// Discover waits up to timeout for the account items to appear and returns
// them in document order. A timeout of 0 uses DefaultDiscoveryTimeout.
func Discover(ctx context.Context, page browser.Page, sel selectors.Config, timeout time.Duration) ([]Account, error) {
	itemSel := sel.Get(selectors.AccountItem)
	if itemSel == "" {
		return nil, fmt.Errorf("%w: locator %s is not configured", ErrDiscoveryTimeout, selectors.AccountItem)
	}
	if timeout == 0 {
		timeout = DefaultDiscoveryTimeout
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := page.WaitFor(waitCtx, itemSel); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: no element matched %q within %v", ErrDiscoveryTimeout, itemSel, timeout)
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read dashboard: %w", err)
	}
	return ParseAccounts(html, sel)
}

// ParseAccounts extracts the accounts from a rendered dashboard document.
func ParseAccounts(html string, sel selectors.Config) ([]Account, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	nameSel := sel.Get(selectors.AccountName)
	accounts := []Account{}
	doc.Find(sel.Get(selectors.AccountItem)).Each(func(i int, s *goquery.Selection) {
		name := ""
		if nameSel != "" {
			name = strings.TrimSpace(s.Find(nameSel).First().Text())
		}
		if name == "" {
			name = fmt.Sprintf("Account %d", i)
		}
		accounts = append(accounts, Account{Ordinal: i, Name: name})
	})
	return accounts, nil
}

// Names returns the account names in order.
func Names(accounts []Account) []string {
	names := make([]string, 0, len(accounts))
	for _, a := range accounts {
		names = append(names, a.Name)
	}
	return names
}
