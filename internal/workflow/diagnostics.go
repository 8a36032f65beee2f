package workflow

import (
	"context"
	"log/slog"

	"github.com/jakopako/bankpull/internal/bank"
	"github.com/jakopako/bankpull/internal/log"
)

// LaunchSession makes sure the browser is running.
func (e *Engine) LaunchSession(ctx context.Context) error {
	_, err := e.sessions.Page(ctx)
	return err
}

// NavigateToLogin opens the bank's login page in the session so the
// operator can log in.
func (e *Engine) NavigateToLogin(ctx context.Context) error {
	url := e.settings().Bank.LoginURL
	if url == "" {
		return ErrNoLoginURL
	}
	page, err := e.sessions.Page(ctx)
	if err != nil {
		return err
	}
	log.LoggerFromContext(ctx).Info("navigating to login", slog.String("url", url))
	e.emit("Navigating to %s", url)
	if err := page.Navigate(ctx, url); err != nil {
		return err
	}
	e.emit("Please log in manually via the Browser tab.")
	return nil
}

// Highlight marks every element matching selector on the current page
// for HighlightDuration and returns how many there are.
func (e *Engine) Highlight(ctx context.Context, selector string) (int, error) {
	page, err := e.sessions.Page(ctx)
	if err != nil {
		return 0, err
	}
	count, err := page.Highlight(ctx, selector, HighlightDuration)
	if err != nil {
		e.emit("Error highlighting selector: %v", err)
		return 0, err
	}
	e.emit("Found and highlighted %d elements matching %q", count, selector)
	return count, nil
}

// Discover lists the accounts on the current page without importing anything.
func (e *Engine) Discover(ctx context.Context) ([]bank.Account, error) {
	snap := e.settings()
	page, err := e.sessions.Page(ctx)
	if err != nil {
		return nil, err
	}
	return bank.Discover(ctx, page, snap.Selectors, millis(snap.Workflow.DiscoveryTimeoutMS, bank.DefaultDiscoveryTimeout))
}
