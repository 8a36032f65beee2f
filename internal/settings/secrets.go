package settings

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Shopify/ejson"
)

// Secrets are importer credentials kept out of the settings file.
type Secrets struct {
	Firefly FireflySettings `json:"firefly"`
}

// LoadSecrets decrypts an ejson file. privateKey may be empty if the key
// is present in keyDir.
func LoadSecrets(path, keyDir, privateKey string) (*Secrets, error) {
	raw, err := ejson.DecryptFile(path, keyDir, privateKey)
	if err != nil {
		return nil, fmt.Errorf("decrypting secrets %s: %w", path, err)
	}
	var s Secrets
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parsing secrets %s: %w", path, err)
	}
	return &s, nil
}

// SetSecrets makes sec available to Firefly. The importer URL is never
// taken from secrets.
func (s *Store) SetSecrets(sec *Secrets) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sec != nil {
		sec.Firefly.URL = ""
	}
	s.secrets = sec
}

// ReadSecretsFile reads a plain, unencrypted secrets file. It exists for
// local development where setting up ejson keys is not worth it.
func ReadSecretsFile(path string) (*Secrets, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Secrets
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parsing secrets %s: %w", path, err)
	}
	return &s, nil
}
