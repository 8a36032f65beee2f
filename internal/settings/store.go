package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"dario.cat/mergo"
	"github.com/ghodss/yaml"
)

// ErrInvalidSettings is returned by Update for a patch that does not decode.
var ErrInvalidSettings = errors.New("invalid settings")

// Store keeps the current settings in memory and writes every change
// back to its file.
type Store struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	settings Settings
	secrets  *Secrets
}

// Open loads the settings file at path. A missing or unreadable file
// results in the defaults, just like a fresh installation.
func Open(path string) *Store {
	s := &Store{
		path:   path,
		logger: slog.With(slog.String("component", "settings")),
	}
	loaded, err := Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Error(fmt.Sprintf("failed to load settings, using defaults: %v", err))
		}
		loaded = Default()
	}
	s.settings = loaded
	return s
}

// Load reads a settings file. Both JSON and YAML are accepted. Values
// missing in the file are taken from Default.
func Load(path string) (Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	var s Settings
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("parsing settings %s: %w", path, err)
	}
	return withDefaults(s)
}

func withDefaults(s Settings) (Settings, error) {
	d := Default()
	// selectors are merged field by field, an explicitly empty locator
	// must survive and mergo would treat it as unset
	sel := s.Selectors
	s.Selectors = nil
	d.Selectors = nil
	if err := mergo.Merge(&s, d); err != nil {
		return Settings{}, fmt.Errorf("merging default settings: %w", err)
	}
	s.Selectors = sel.WithDefaults()
	if s.Accounts == nil {
		s.Accounts = []AccountMapping{}
	}
	return s, nil
}

// Get returns a copy of the current settings. Secrets loaded through
// SetSecrets are not part of it.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.clone()
}

// Snapshot returns the part of the settings an import run needs.
func (s *Store) Snapshot() Snapshot {
	c := s.Get()
	return Snapshot{
		Bank:      c.Bank,
		Selectors: c.Selectors,
		Accounts:  c.Accounts,
		Workflow:  c.Workflow,
	}
}

// Firefly returns the importer settings with empty credentials filled in
// from the secrets file.
func (s *Store) Firefly() FireflySettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f := s.settings.Firefly
	if s.secrets != nil {
		if err := mergo.Merge(&f, s.secrets.Firefly); err != nil {
			s.logger.Warn(fmt.Sprintf("failed to apply secrets: %v", err))
		}
	}
	return f
}

// Update replaces every top level key present in patch, which is a JSON
// object, and persists the result. Keys that are not present keep their
// current value.
func (s *Store) Update(patch []byte) (Settings, error) {
	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := json.Marshal(s.settings)
	if err != nil {
		return Settings{}, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(current, &merged); err != nil {
		return Settings{}, err
	}
	for k, v := range overlay {
		merged[k] = v
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return Settings{}, err
	}
	var next Settings
	if err := json.Unmarshal(raw, &next); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	next, err = withDefaults(next)
	if err != nil {
		return Settings{}, err
	}
	if err := save(s.path, next); err != nil {
		return Settings{}, err
	}
	s.settings = next
	return next.clone(), nil
}

// AddAccountMapping maps name to configPath, replacing an existing
// mapping for the same name.
func (s *Store) AddAccountMapping(name, configPath string) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.settings.clone()
	accounts := []AccountMapping{}
	for _, a := range next.Accounts {
		if a.BankAccountName != name {
			accounts = append(accounts, a)
		}
	}
	next.Accounts = append(accounts, AccountMapping{BankAccountName: name, FireflyConfigPath: configPath})
	if err := save(s.path, next); err != nil {
		return Settings{}, err
	}
	s.settings = next
	return next.clone(), nil
}

// save writes the settings as indented JSON through a temporary file so
// that a crash never leaves a truncated file behind.
func save(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}
	// locators contain characters like '>' that must not be escaped
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s); err != nil {
		return fmt.Errorf("error while encoding settings: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buffer.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}
