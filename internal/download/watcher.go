// Package download detects completed export files in the directory the
// browser downloads into.
//
// The browser runs in its own process and gives no reliable completion
// signal, so the directory is polled and a file is considered complete
// once it carries the expected suffix. One extra interval is waited after
// the first match to let the final write settle. The directory is listed
// MaxAttempts times with a pause between listings, so the last listing is
// not followed by another wait before the timeout is reported.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const (
	DefaultSuffix       = ".csv"
	DefaultPollInterval = time.Second
	DefaultMaxAttempts  = 30
)

var ErrDownloadTimeout = errors.New("timeout waiting for download")

// partialSuffixes are written by browsers while a download is in progress.
var partialSuffixes = []string{".crdownload", ".part", ".tmp", ".download"}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Watcher polls Dir for a file ending in Suffix.
type Watcher struct {
	Fs           afero.Fs
	Dir          string
	Suffix       string
	PollInterval time.Duration
	MaxAttempts  int
	Sleep        SleepFunc

	logger *slog.Logger
}

// NewWatcher returns a Watcher on the OS filesystem with default settings.
func NewWatcher(dir string) *Watcher {
	return &Watcher{
		Fs:           afero.NewOsFs(),
		Dir:          dir,
		Suffix:       DefaultSuffix,
		PollInterval: DefaultPollInterval,
		MaxAttempts:  DefaultMaxAttempts,
		Sleep:        Sleep,
		logger:       slog.With(slog.String("component", "download")),
	}
}

func (w *Watcher) defaults() {
	if w.Fs == nil {
		w.Fs = afero.NewOsFs()
	}
	if w.Suffix == "" {
		w.Suffix = DefaultSuffix
	}
	if w.PollInterval == 0 {
		w.PollInterval = DefaultPollInterval
	}
	if w.MaxAttempts == 0 {
		w.MaxAttempts = DefaultMaxAttempts
	}
	if w.Sleep == nil {
		w.Sleep = Sleep
	}
	if w.logger == nil {
		w.logger = slog.With(slog.String("component", "download"))
	}
}

func isPartial(name string) bool {
	for _, s := range partialSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// matches returns the names of all completed files in Dir in lexical order.
func (w *Watcher) matches() ([]string, error) {
	entries, err := afero.ReadDir(w.Fs, w.Dir)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || isPartial(e.Name()) || !strings.HasSuffix(e.Name(), w.Suffix) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Existing returns the completed files currently present. Passing the
// result to Await makes it wait for a file that appears afterwards.
func (w *Watcher) Existing() (map[string]struct{}, error) {
	w.defaults()
	names, err := w.matches()
	if err != nil {
		return nil, err
	}
	existing := make(map[string]struct{}, len(names))
	for _, n := range names {
		existing[n] = struct{}{}
	}
	return existing, nil
}

// Await lists Dir at most MaxAttempts times, PollInterval apart, and
// returns the path of the first completed file whose name is not in
// ignore. A missing directory counts as an empty one.
func (w *Watcher) Await(ctx context.Context, ignore map[string]struct{}) (string, error) {
	w.defaults()
	for attempt := 1; attempt <= w.MaxAttempts; attempt++ {
		names, err := w.matches()
		if err != nil {
			w.logger.Debug(fmt.Sprintf("failed to list %s: %v", w.Dir, err))
		}
		for _, n := range names {
			if _, skip := ignore[n]; skip {
				continue
			}
			w.logger.Debug(fmt.Sprintf("found %s after %d attempts", n, attempt))
			// let the browser finish writing
			if err := w.Sleep(ctx, w.PollInterval); err != nil {
				return "", err
			}
			return filepath.Join(w.Dir, n), nil
		}
		if attempt == w.MaxAttempts {
			break
		}
		if err := w.Sleep(ctx, w.PollInterval); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: no %s file in %s after %d attempts", ErrDownloadTimeout, w.Suffix, w.Dir, w.MaxAttempts)
}

// Remove deletes an artifact returned by Await.
func (w *Watcher) Remove(path string) error {
	w.defaults()
	return w.Fs.Remove(path)
}
