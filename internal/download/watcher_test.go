package download

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// countingFs counts directory listings.
type countingFs struct {
	afero.Fs
	listings int
}

func (c *countingFs) Open(name string) (afero.File, error) {
	c.listings++
	return c.Fs.Open(name)
}

func newTestWatcher(fs afero.Fs, sleep SleepFunc) *Watcher {
	w := NewWatcher("/downloads")
	w.Fs = fs
	w.Sleep = sleep
	w.MaxAttempts = 5
	w.PollInterval = 10 * time.Millisecond
	return w
}

func TestAwaitTimeoutAfterMaxAttempts(t *testing.T) {
	fs := &countingFs{Fs: afero.NewMemMapFs()}
	_ = fs.MkdirAll("/downloads", 0755)
	_ = afero.WriteFile(fs.Fs, "/downloads/report.pdf", []byte("x"), 0644)
	_ = afero.WriteFile(fs.Fs, "/downloads/export.csv.crdownload", []byte("x"), 0644)
	sleeps := 0
	w := newTestWatcher(fs, func(ctx context.Context, d time.Duration) error {
		sleeps++
		return nil
	})
	_, err := w.Await(context.Background(), nil)
	if !errors.Is(err, ErrDownloadTimeout) {
		t.Fatalf("expected ErrDownloadTimeout, got %v", err)
	}
	if fs.listings != 5 {
		t.Fatalf("expected exactly 5 listings, got %d", fs.listings)
	}
	if sleeps != 4 {
		t.Fatalf("expected 4 sleeps between 5 listings, got %d", sleeps)
	}
}

func TestAwaitMissingDirectoryTimesOut(t *testing.T) {
	fs := &countingFs{Fs: afero.NewMemMapFs()}
	w := newTestWatcher(fs, func(ctx context.Context, d time.Duration) error { return nil })
	if _, err := w.Await(context.Background(), nil); !errors.Is(err, ErrDownloadTimeout) {
		t.Fatalf("expected ErrDownloadTimeout, got %v", err)
	}
	if fs.listings != 5 {
		t.Fatalf("expected exactly 5 listings, got %d", fs.listings)
	}
}

func TestAwaitFileAppearsOnIterationK(t *testing.T) {
	for k := 1; k <= 5; k++ {
		fs := &countingFs{Fs: afero.NewMemMapFs()}
		_ = fs.MkdirAll("/downloads", 0755)
		if k == 1 {
			_ = afero.WriteFile(fs.Fs, "/downloads/transactions.csv", []byte("a,b"), 0644)
		}
		var sleepsAfterMatch int
		matched := false
		w := newTestWatcher(fs, nil)
		w.Sleep = func(ctx context.Context, d time.Duration) error {
			if d != w.PollInterval {
				t.Fatalf("unexpected sleep duration %v", d)
			}
			if matched || fs.listings == k {
				matched = true
				sleepsAfterMatch++
				return nil
			}
			// the file shows up right before listing number k
			if fs.listings == k-1 {
				_ = afero.WriteFile(fs.Fs, "/downloads/transactions.csv", []byte("a,b"), 0644)
			}
			return nil
		}
		path, err := w.Await(context.Background(), nil)
		if err != nil {
			t.Fatalf("k=%d: got unexpected error: %v", k, err)
		}
		if path != filepath.Join("/downloads", "transactions.csv") {
			t.Fatalf("k=%d: unexpected path %s", k, path)
		}
		if fs.listings != k {
			t.Fatalf("k=%d: expected %d listings, got %d", k, k, fs.listings)
		}
		if sleepsAfterMatch != 1 {
			t.Fatalf("k=%d: expected one settle wait after the match, got %d", k, sleepsAfterMatch)
		}
	}
}

func TestAwaitIgnoresExisting(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/downloads/old.csv", []byte("stale"), 0644)
	w := newTestWatcher(fs, nil)
	existing, err := w.Existing()
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if _, ok := existing["old.csv"]; !ok {
		t.Fatalf("expected old.csv in existing set, got %v", existing)
	}
	calls := 0
	w.Sleep = func(ctx context.Context, d time.Duration) error {
		calls++
		if calls == 2 {
			_ = afero.WriteFile(fs, "/downloads/new.csv", []byte("fresh"), 0644)
		}
		return nil
	}
	path, err := w.Await(context.Background(), existing)
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if filepath.Base(path) != "new.csv" {
		t.Fatalf("expected the new file, got %s", path)
	}
}

func TestAwaitContextCancelled(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWatcher("/downloads")
	w.Fs = fs
	w.PollInterval = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.Await(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/downloads/a.csv", []byte("x"), 0644)
	w := newTestWatcher(fs, nil)
	if err := w.Remove("/downloads/a.csv"); err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if ok, _ := afero.Exists(fs, "/downloads/a.csv"); ok {
		t.Fatalf("expected file to be removed")
	}
}
