// Package workflow drives the logged in browser session through the bank's
// export of every mapped account and hands each export to the importer.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jakopako/bankpull/internal/bank"
	"github.com/jakopako/bankpull/internal/browser"
	"github.com/jakopako/bankpull/internal/download"
	"github.com/jakopako/bankpull/internal/log"
	"github.com/jakopako/bankpull/internal/selectors"
	"github.com/jakopako/bankpull/internal/settings"
	"github.com/jakopako/bankpull/internal/types"
	"github.com/jakopako/bankpull/internal/utils"
)

const (
	// HighlightDuration is how long highlighted elements stay marked.
	HighlightDuration = 3 * time.Second

	defaultFilterSettle = 2 * time.Second
	// maximum edit distance for the "did you mean" hint on unmapped accounts
	hintDistance = 3
)

var (
	ErrRunInProgress  = errors.New("an import is already running")
	ErrLocatorMissing = errors.New("required locator not configured")
	ErrNoLoginURL     = errors.New("bank login url not configured")
)

// SessionProvider hands out the page of the active browser session,
// launching it if necessary.
type SessionProvider interface {
	Page(ctx context.Context) (browser.Page, error)
}

// Uploader forwards a downloaded export to the importer.
type Uploader interface {
	Upload(ctx context.Context, filePath, targetConfigRef string) error
}

// Notifier receives progress messages. Emit must not block.
type Notifier interface {
	Emit(message string)
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Sessions SessionProvider
	// Settings is called once at the start of every run.
	Settings func() settings.Snapshot
	Watcher  *download.Watcher
	Uploader Uploader
	Notifier Notifier
}

// Engine runs imports. At most one run is active at any time.
type Engine struct {
	sessions SessionProvider
	settings func() settings.Snapshot
	watcher  *download.Watcher
	uploader Uploader
	notifier Notifier

	sleep download.SleepFunc
	newID func() string
	now   func() time.Time

	running sync.Mutex

	mu    sync.Mutex
	state State
	last  *types.RunResult
}

func New(d Deps) *Engine {
	return &Engine{
		sessions: d.Sessions,
		settings: d.Settings,
		watcher:  d.Watcher,
		uploader: d.Uploader,
		notifier: d.Notifier,
		sleep:    download.Sleep,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

func (e *Engine) emit(format string, args ...any) {
	if e.notifier == nil {
		return
	}
	e.notifier.Emit(fmt.Sprintf(format, args...))
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
}

// State returns the current state of the engine.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Running reports whether an import is in progress.
func (e *Engine) Running() bool {
	return e.State() != Idle
}

// LastResult returns a copy of the result of the current or most recent
// run, or nil if there was none yet.
func (e *Engine) LastResult() *types.RunResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return nil
	}
	r := *e.last
	r.Accounts = append([]types.AccountResult{}, e.last.Accounts...)
	return &r
}

// Start runs an import in the background and returns its id. Progress
// and the final outcome are only reported through the notifier and
// LastResult.
func (e *Engine) Start(ctx context.Context, dr types.DateRange) (string, error) {
	if !e.running.TryLock() {
		return "", ErrRunInProgress
	}
	e.setState(Starting)
	id := e.newID()
	// the run must survive the request that started it
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer e.running.Unlock()
		e.run(runCtx, id, dr)
	}()
	return id, nil
}

// Run performs an import and returns when it is done. The returned
// error is only non-nil if the run was aborted as a whole; failures of
// single accounts are recorded in the result.
func (e *Engine) Run(ctx context.Context, dr types.DateRange) (*types.RunResult, error) {
	if !e.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer e.running.Unlock()
	e.setState(Starting)
	return e.run(ctx, e.newID(), dr)
}

func (e *Engine) run(ctx context.Context, id string, dr types.DateRange) (*types.RunResult, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("component", "workflow"), slog.String("run", id))
	ctx = log.ContextWithLogger(ctx, logger)

	res := &types.RunResult{ID: id, DateRange: dr, StartedAt: e.now(), Accounts: []types.AccountResult{}}
	e.mu.Lock()
	e.last = res
	e.mu.Unlock()
	defer e.setState(Idle)

	logger.Info("starting import", slog.String("start", dr.Start), slog.String("end", dr.End))
	e.emit("Starting Import Process...")

	err := e.importAccounts(ctx, res, dr)

	e.mu.Lock()
	res.FinishedAt = e.now()
	if err != nil {
		res.Error = err.Error()
	}
	out := *res
	out.Accounts = append([]types.AccountResult{}, res.Accounts...)
	e.mu.Unlock()

	if err != nil {
		logger.Error("import failed", slog.String("err", err.Error()))
		e.emit("CRITICAL ERROR: %v", err)
		return &out, err
	}
	logger.Info("import completed",
		slog.Int("imported", out.Count(types.OutcomeImported)),
		slog.Int("skipped", out.Count(types.OutcomeSkipped)),
		slog.Int("accounts", len(out.Accounts)))
	e.emit("Import process completed.")
	return &out, nil
}

func (e *Engine) importAccounts(ctx context.Context, res *types.RunResult, dr types.DateRange) error {
	snap := e.settings()
	if missing := snap.Selectors.Missing(selectors.AccountItem); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrLocatorMissing, missing[0])
	}

	e.setState(Discovering)
	page, err := e.sessions.Page(ctx)
	if err != nil {
		return err
	}

	e.emit("Scanning for accounts...")
	accounts, err := bank.Discover(ctx, page, snap.Selectors, millis(snap.Workflow.DiscoveryTimeoutMS, bank.DefaultDiscoveryTimeout))
	if err != nil {
		if errors.Is(err, bank.ErrDiscoveryTimeout) {
			e.emit("Could not find account list. Are you logged in?")
		}
		return err
	}
	e.emit("Found %d accounts: %s", len(accounts), strings.Join(bank.Names(accounts), ", "))

	watcher := e.runWatcher(snap.Workflow)
	for _, acc := range accounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		ar := e.processAccount(ctx, page, snap, watcher, acc, dr)
		e.mu.Lock()
		res.Accounts = append(res.Accounts, ar)
		e.mu.Unlock()
	}
	return nil
}

// runWatcher returns a copy of the engine's watcher tuned for this run.
func (e *Engine) runWatcher(ws settings.WorkflowSettings) *download.Watcher {
	w := *e.watcher
	if ws.DownloadPollMS > 0 {
		w.PollInterval = time.Duration(ws.DownloadPollMS) * time.Millisecond
	}
	if ws.DownloadAttempts > 0 {
		w.MaxAttempts = ws.DownloadAttempts
	}
	return &w
}

func (e *Engine) processAccount(ctx context.Context, page browser.Page, snap settings.Snapshot, w *download.Watcher, acc bank.Account, dr types.DateRange) types.AccountResult {
	logger := log.LoggerFromContext(ctx).With(slog.String("account", acc.Name))
	ar := types.AccountResult{Name: acc.Name, Ordinal: acc.Ordinal}

	page = withStepTimeout(page, millis(snap.Workflow.StepTimeoutMS, defaultStepTimeout))

	mapping, ok := snap.Mapping(acc.Name)
	if !ok {
		e.setState(Skipped)
		ar.Outcome = types.OutcomeSkipped
		msg := fmt.Sprintf("Skipping %s (No configuration mapping found)", acc.Name)
		if hint, found := utils.ClosestString(acc.Name, snap.MappedNames(), hintDistance); found {
			msg += fmt.Sprintf(". Did you mean %q?", hint)
		}
		logger.Info("skipping unmapped account")
		e.emit("%s", msg)
		// the account page was never opened, so only an explicit dashboard url applies
		e.returnToDashboard(ctx, page, snap.Bank, false)
		return ar
	}

	e.emit("Processing %s...", acc.Name)

	e.setState(Filtering)
	entered, err := e.applyFilter(ctx, page, snap, acc, dr)
	// the dashboard has to be restored whatever happens next
	defer e.returnToDashboard(ctx, page, snap.Bank, entered)
	if err != nil {
		logger.Warn("failed to apply filter", slog.String("err", err.Error()))
		ar.FilterError = err.Error()
		e.emit("Error applying filters: %v. Continuing...", err)
	}

	e.setState(Downloading)
	e.emit("Downloading CSV...")
	path, err := e.download(ctx, page, snap.Selectors, w)
	if err != nil {
		logger.Warn("download failed", slog.String("err", err.Error()))
		ar.Outcome = types.OutcomeDownloadFailed
		ar.Error = err.Error()
		e.emit("Download failed: %v", err)
		return ar
	}
	ar.File = filepath.Base(path)
	e.emit("Downloaded: %s", ar.File)

	e.setState(Transferring)
	e.emit("Uploading to Firefly using config: %s", mapping.FireflyConfigPath)
	if err := e.uploader.Upload(ctx, path, mapping.FireflyConfigPath); err != nil {
		logger.Warn("upload failed", slog.String("file", path), slog.String("err", err.Error()))
		ar.Outcome = types.OutcomeTransferFailed
		ar.Error = err.Error()
		e.emit("Upload failed: %v", err)
		return ar
	}

	e.setState(CleaningUp)
	if err := w.Remove(path); err != nil {
		logger.Warn("failed to remove download", slog.String("file", path), slog.String("err", err.Error()))
		ar.Outcome = types.OutcomeCleanupFailed
		ar.Error = err.Error()
		e.emit("Failed to remove %s: %v", ar.File, err)
		return ar
	}
	ar.Outcome = types.OutcomeImported
	logger.Info("account imported", slog.String("file", ar.File))
	return ar
}

// applyFilter opens the account and restricts its transactions to dr.
// entered reports whether the account page was opened.
func (e *Engine) applyFilter(ctx context.Context, page browser.Page, snap settings.Snapshot, acc bank.Account, dr types.DateRange) (entered bool, err error) {
	sel := snap.Selectors
	if err := page.ClickNth(ctx, sel.Get(selectors.AccountItem), acc.Ordinal, sel.Get(selectors.AccountLink)); err != nil {
		return false, fmt.Errorf("failed to open account: %w", err)
	}
	if err := page.WaitLoaded(ctx); err != nil {
		return true, fmt.Errorf("account page did not load: %w", err)
	}

	e.emit("Applying date filter: %s - %s", dr.Start, dr.End)
	if s := sel.Get(selectors.FilterButton); s != "" {
		if err := page.Click(ctx, s); err != nil {
			return true, err
		}
	}
	inputs := []struct {
		loc   selectors.Locator
		value string
	}{
		{selectors.DateRangeStart, dr.Start},
		{selectors.DateRangeEnd, dr.End},
	}
	for _, in := range inputs {
		s := sel.Get(in.loc)
		if s == "" {
			continue
		}
		if err := page.ReplaceText(ctx, s, in.value); err != nil {
			return true, err
		}
	}
	if s := sel.Get(selectors.ApplyFilterButton); s != "" {
		if err := page.Click(ctx, s); err != nil {
			return true, err
		}
	}
	// results are usually reloaded asynchronously
	return true, e.sleep(ctx, millis(snap.Workflow.FilterSettleMS, defaultFilterSettle))
}

func (e *Engine) download(ctx context.Context, page browser.Page, sel selectors.Config, w *download.Watcher) (string, error) {
	ignore, err := w.Existing()
	if err != nil {
		ignore = map[string]struct{}{}
	}
	if s := sel.Get(selectors.DownloadButton); s != "" {
		if err := page.Click(ctx, s); err != nil {
			return "", fmt.Errorf("failed to trigger export: %w", err)
		}
	}
	if s := sel.Get(selectors.CSVOption); s != "" {
		if err := page.WaitFor(ctx, s); err != nil {
			return "", fmt.Errorf("csv option did not appear: %w", err)
		}
		if err := page.Click(ctx, s); err != nil {
			return "", fmt.Errorf("failed to select csv: %w", err)
		}
	}
	return w.Await(ctx, ignore)
}

func (e *Engine) returnToDashboard(ctx context.Context, page browser.Page, bs settings.BankSettings, entered bool) {
	logger := log.LoggerFromContext(ctx)
	var err error
	switch {
	case bs.DashboardURL != "":
		err = page.Navigate(ctx, bs.DashboardURL)
	case entered:
		err = page.Back(ctx)
	default:
		return
	}
	if err != nil {
		logger.Warn("failed to return to dashboard", slog.String("err", err.Error()))
	}
}

func millis(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
