package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"storefront-sync/internal/domain"
)

var ErrNoCredentials = errors.New("no stored credentials")

// Credentials is the reload-surviving state next to the session: the raw
// bearer token plus the user it was issued to.
type Credentials struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user,omitempty"`
}

// Store persists credentials as a JSON file. It stands in for the
// browser-local storage the session bootstraps from.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the persisted credentials. A missing file is ErrNoCredentials;
// an unreadable file is treated the same way so that bootstrap fails closed.
func (s *Store) Load() (*Credentials, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("corrupt credentials file: %w", ErrNoCredentials)
	}
	if creds.Token == "" {
		return nil, ErrNoCredentials
	}
	return &creds, nil
}

// Save writes credentials with owner-only permissions.
func (s *Store) Save(creds *Credentials) error {
	if creds == nil || creds.Token == "" {
		return fmt.Errorf("refusing to persist empty credentials")
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create credentials directory: %w", err)
		}
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// Clear removes the stored credentials. Clearing an already-empty store
// is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}
