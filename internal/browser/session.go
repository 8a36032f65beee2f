// Package browser owns the single visible Chromium instance the operator
// logs into and the page handle the import workflow drives.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"github.com/jakopako/bankpull/internal/config"
	"github.com/jakopako/bankpull/internal/log"
)

var ErrSessionLaunch = errors.New("failed to launch browser session")

// Session is one running browser process together with the tab it is driven through.
type Session struct {
	page   Page
	cancel func()
}

// startFunc starts a new browser process. It is replaced in tests.
type startFunc func(ctx context.Context, bc *config.BrowserConfig, downloadDir string) (*Session, error)

// Manager hands out the one browser session of the process. Launch is
// idempotent and Close releases the process again.
type Manager struct {
	cfg         *config.BrowserConfig
	downloadDir string
	start       startFunc
	logger      *slog.Logger

	mu      sync.Mutex
	session *Session
}

func NewManager(bc *config.BrowserConfig, downloadDir string) *Manager {
	return &Manager{
		cfg:         bc,
		downloadDir: downloadDir,
		start:       startChrome,
		logger:      slog.With(slog.String("component", "browser")),
	}
}

// Launch starts the browser unless a session is already active.
func (m *Manager) Launch(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.launchLocked(ctx)
}

func (m *Manager) launchLocked(ctx context.Context) error {
	if m.session != nil {
		return nil
	}
	m.logger.Info("launching browser", slog.String("display", m.cfg.Display), slog.String("download_dir", m.downloadDir))
	s, err := m.start(ctx, m.cfg, m.downloadDir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionLaunch, err)
	}
	m.session = s
	m.logger.Info("browser launched")
	return nil
}

// Page returns the active page, launching a session first if necessary.
func (m *Manager) Page(ctx context.Context) (Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.launchLocked(ctx); err != nil {
		return nil, err
	}
	return m.session.page, nil
}

// Close terminates the browser. It is a no-op without an active session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return
	}
	m.session.cancel()
	m.session = nil
	m.logger.Info("browser closed")
}

func (m *Manager) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// allocatorOptions returns the flags for a visible browser on the
// configured X display.
func allocatorOptions(bc *config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
		// hides the "controlled by automated software" banner
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("start-maximized", true),
	)
	if bc.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(bc.ExecPath))
	}
	if bc.Display != "" {
		opts = append(opts,
			chromedp.Flag("display", bc.Display),
			chromedp.Env("DISPLAY="+bc.Display),
		)
	}
	if bc.NoSandbox {
		opts = append(opts, chromedp.NoSandbox, chromedp.Flag("disable-setuid-sandbox", true))
	}
	if bc.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(bc.UserDataDir))
	}
	if bc.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(bc.UserAgent))
	}
	return opts
}

func startChrome(ctx context.Context, bc *config.BrowserConfig, downloadDir string) (*Session, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("component", "browser"))

	if err := os.MkdirAll(downloadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory %s: %w", downloadDir, err)
	}

	// The browser outlives the request that launched it, so it must not
	// inherit the caller's cancellation.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocatorOptions(bc)...)
	// the first context reuses the initial tab of the new browser
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
	)
	cancel := func() {
		cancelTab()
		cancelAlloc()
	}

	// the first Run starts the process and must use the tab context itself,
	// a derived context with a timeout would kill the browser when it expires
	err := chromedp.Run(tabCtx,
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(downloadDir).
			WithEventsEnabled(true),
	)
	if err != nil {
		cancel()
		return nil, err
	}

	return &Session{
		page:   &chromePage{tab: tabCtx},
		cancel: cancel,
	}, nil
}
