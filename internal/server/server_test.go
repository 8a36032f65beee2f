package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jakopako/bankpull/internal/bank"
	"github.com/jakopako/bankpull/internal/notify"
	"github.com/jakopako/bankpull/internal/settings"
	"github.com/jakopako/bankpull/internal/types"
	"github.com/jakopako/bankpull/internal/workflow"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

type fakeEngine struct {
	mu        sync.Mutex
	state     workflow.State
	started   []types.DateRange
	startErr  error
	navigated int
	last      *types.RunResult
	accounts  []bank.Account
	discErr   error
}

func (f *fakeEngine) Start(ctx context.Context, dr types.DateRange) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, dr)
	return "run-1", nil
}

func (f *fakeEngine) State() workflow.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeEngine) LastResult() *types.RunResult { return f.last }

func (f *fakeEngine) NavigateToLogin(ctx context.Context) error {
	f.navigated++
	return nil
}

func (f *fakeEngine) Highlight(ctx context.Context, selector string) (int, error) {
	return strings.Count(selector, ".") + 1, nil
}

func (f *fakeEngine) Discover(ctx context.Context) ([]bank.Account, error) {
	return f.accounts, f.discErr
}

type fakeBrowser struct {
	active bool
}

func (f *fakeBrowser) Launch(ctx context.Context) error {
	f.active = true
	return nil
}

func (f *fakeBrowser) Close()         { f.active = false }
func (f *fakeBrowser) IsActive() bool { return f.active }

type fixture struct {
	engine  *fakeEngine
	browser *fakeBrowser
	store   *settings.Store
	hub     *notify.Hub
	server  *Server
}

func newFixture(t *testing.T, static afero.Fs) *fixture {
	t.Helper()
	f := &fixture{
		engine:  &fakeEngine{},
		browser: &fakeBrowser{},
		store:   settings.Open(filepath.Join(t.TempDir(), "settings.json")),
		hub:     notify.NewHub(10),
	}
	f.server = New(Options{
		Engine:   f.engine,
		Browser:  f.browser,
		Settings: f.store,
		Hub:      f.hub,
		Static:   static,
	})
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestConfigRoundTrip(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/config", `{"firefly": {"url": "http://importer:8080", "token": "abc"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got settings.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "abc", got.Firefly.Token)
	assert.Equal(t, settings.Default().Bank.LoginURL, got.Bank.LoginURL)
}

func TestConfigInvalidBody(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/config", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddAccount(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/accounts", `{"bankAccountName": " Savings ", "fireflyConfigPath": "/config/savings.json"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	m, ok := f.store.Snapshot().Mapping("Savings")
	require.True(t, ok)
	assert.Equal(t, "/config/savings.json", m.FireflyConfigPath)

	rec = f.do(t, http.MethodPost, "/api/accounts", `{"bankAccountName": "Savings"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartImport(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		startErr error
		expected int
	}{
		{"accepted", `{"start": "01/01/2024", "end": "31/01/2024"}`, nil, http.StatusAccepted},
		{"missing end", `{"start": "01/01/2024"}`, nil, http.StatusBadRequest},
		{"invalid body", `{`, nil, http.StatusBadRequest},
		{"already running", `{"start": "01/01/2024", "end": "31/01/2024"}`, workflow.ErrRunInProgress, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.engine.startErr = tt.startErr
			rec := f.do(t, http.MethodPost, "/api/import/start", tt.body)
			assert.Equal(t, tt.expected, rec.Code)
		})
	}
}

func TestStartImportPassesRange(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/import/start", `{"start": "01/01/2024", "end": "31/01/2024"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, f.engine.started, 1)
	assert.Equal(t, types.DateRange{Start: "01/01/2024", End: "31/01/2024"}, f.engine.started[0])
	assert.Contains(t, rec.Body.String(), `"id":"run-1"`)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.state = workflow.Downloading
	f.engine.last = &types.RunResult{ID: "run-1", Accounts: []types.AccountResult{{Name: "Savings", Outcome: types.OutcomeImported}}}

	rec := f.do(t, http.MethodGet, "/api/import/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Running    bool            `json:"running"`
		State      string          `json:"state"`
		LastResult types.RunResult `json:"lastResult"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Running)
	assert.Equal(t, "downloading", got.State)
	assert.Equal(t, "run-1", got.LastResult.ID)
}

func TestBrowserRoutes(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/browser/launch", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.browser.active)
	assert.Equal(t, 1, f.engine.navigated)

	rec = f.do(t, http.MethodPost, "/api/browser/highlight", `{"selector": ".account-list-item .name"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":3`)

	rec = f.do(t, http.MethodPost, "/api/browser/highlight", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.engine.state = workflow.Filtering
	rec = f.do(t, http.MethodPost, "/api/browser/close", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.True(t, f.browser.active)

	f.engine.state = workflow.Idle
	rec = f.do(t, http.MethodPost, "/api/browser/close", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.browser.active)
}

func TestDiscover(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.accounts = []bank.Account{{Ordinal: 0, Name: "Everyday"}, {Ordinal: 1, Name: "Savings"}}
	rec := f.do(t, http.MethodGet, "/api/accounts/discover", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Savings"`)

	f.engine.discErr = bank.ErrDiscoveryTimeout
	rec = f.do(t, http.MethodGet, "/api/accounts/discover", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogs(t *testing.T) {
	f := newFixture(t, nil)
	f.hub.Emit("Scanning for accounts...")
	rec := f.do(t, http.MethodGet, "/api/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Scanning for accounts...")
}

func TestUnknownAPIRoute(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticFallback(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/index.html", []byte("<html>app</html>"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/assets/app.js", []byte("console.log(1)"), 0644))
	f := newFixture(t, fs)

	rec := f.do(t, http.MethodGet, "/assets/app.js", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "app")
}

func TestNoFrontend(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, noFrontend, rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := []int{}
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebsocketStreamsEvents(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	conn, err := websocket.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", "", "http://localhost/")
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	var e notify.Event
	require.NoError(t, websocket.JSON.Receive(conn, &e))
	assert.Equal(t, notify.EventStatus, e.Type)

	f.hub.Emit("Downloading CSV...")
	require.NoError(t, websocket.JSON.Receive(conn, &e))
	assert.Equal(t, notify.EventLog, e.Type)
	assert.Equal(t, "Downloading CSV...", e.Message)
}
