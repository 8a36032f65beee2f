package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/jakopako/bankpull/internal/bank"
	"github.com/jakopako/bankpull/internal/settings"
	"github.com/jakopako/bankpull/internal/types"
	"github.com/jakopako/bankpull/internal/workflow"
)

type message struct {
	Message string `json:"message"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	_ = s.writeJSON(w, http.StatusOK, s.settings.Get())
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "failed to read body", err)
		return
	}
	updated, err := s.settings.Update(body)
	if errors.Is(err, settings.ErrInvalidSettings) {
		s.respondError(w, r, http.StatusBadRequest, "invalid config", err)
		return
	}
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "Failed to save config", err)
		return
	}
	_ = s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleAddAccount(w http.ResponseWriter, r *http.Request) {
	var m settings.AccountMapping
	if err := decodeJSON(w, r, &m); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid account mapping", err)
		return
	}
	m.BankAccountName = strings.TrimSpace(m.BankAccountName)
	if m.BankAccountName == "" || m.FireflyConfigPath == "" {
		s.respondError(w, r, http.StatusBadRequest, "bankAccountName and fireflyConfigPath required", nil)
		return
	}
	updated, err := s.settings.AddAccountMapping(m.BankAccountName, m.FireflyConfigPath)
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "Failed to save config", err)
		return
	}
	_ = s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	if err := s.browser.Launch(r.Context()); err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "Failed to launch browser", err)
		return
	}
	if err := s.engine.NavigateToLogin(r.Context()); err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "Failed to open login page", err)
		return
	}
	_ = s.writeJSON(w, http.StatusOK, message{"Browser launched"})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if s.engine.State() != workflow.Idle {
		s.respondError(w, r, http.StatusConflict, "an import is running", nil)
		return
	}
	s.browser.Close()
	_ = s.writeJSON(w, http.StatusOK, message{"Browser closed"})
}

func (s *Server) handleHighlight(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Selector string `json:"selector"`
	}
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.Selector) == "" {
		s.respondError(w, r, http.StatusBadRequest, "selector required", err)
		return
	}
	count, err := s.engine.Highlight(r.Context(), req.Selector)
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "Failed to highlight", err)
		return
	}
	_ = s.writeJSON(w, http.StatusOK, map[string]any{"message": "Highlighted", "count": count})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.engine.Discover(r.Context())
	if errors.Is(err, bank.ErrDiscoveryTimeout) {
		s.respondError(w, r, http.StatusNotFound, "Account list not found. Are you logged in?", err)
		return
	}
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "Failed to discover accounts", err)
		return
	}
	_ = s.writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	var dr types.DateRange
	if err := decodeJSON(w, r, &dr); err != nil || dr.Start == "" || dr.End == "" {
		s.respondError(w, r, http.StatusBadRequest, "Start and End dates required", err)
		return
	}
	id, err := s.engine.Start(r.Context(), dr)
	if errors.Is(err, workflow.ErrRunInProgress) {
		s.respondError(w, r, http.StatusConflict, "Import already running", err)
		return
	}
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "Failed to start import", err)
		return
	}
	_ = s.writeJSON(w, http.StatusAccepted, map[string]string{"message": "Import process started", "id": id})
}

type status struct {
	Running       bool             `json:"running"`
	State         workflow.State   `json:"state"`
	BrowserActive bool             `json:"browserActive"`
	LastResult    *types.RunResult `json:"lastResult"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state := s.engine.State()
	_ = s.writeJSON(w, http.StatusOK, status{
		Running:       state != workflow.Idle,
		State:         state,
		BrowserActive: s.browser.IsActive(),
		LastResult:    s.engine.LastResult(),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	_ = s.writeJSON(w, http.StatusOK, map[string]any{"events": s.hub.History()})
}
