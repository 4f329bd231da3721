package authclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Credentials is the client-side view of an issued pair.
type Credentials struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Store persists credentials across client restarts.
type Store interface {
	Load() (*Credentials, error)
	Save(creds *Credentials) error
	Clear() error
}

// ErrNoCredentials is returned by Store.Load when nothing is persisted.
var ErrNoCredentials = errors.New("no stored credentials")

// FileStore persists credentials as a JSON file with 0600 permissions.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed credential store at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the persisted credentials.
func (s *FileStore) Load() (*Credentials, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(b, &creds); err != nil {
		return nil, fmt.Errorf("decoding credentials: %w", err)
	}
	return &creds, nil
}

// Save writes the credentials atomically via a temp file rename.
func (s *FileStore) Save(creds *Credentials) error {
	b, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("creating temp credentials file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("restricting credentials permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing credentials file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing credentials file: %w", err)
	}
	return nil
}

// Clear removes the persisted credentials.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing credentials: %w", err)
	}
	return nil
}

// memoryStore is the fallback when no Store is configured.
type memoryStore struct {
	creds *Credentials
}

func (s *memoryStore) Load() (*Credentials, error) {
	if s.creds == nil {
		return nil, ErrNoCredentials
	}
	return s.creds, nil
}

func (s *memoryStore) Save(creds *Credentials) error {
	s.creds = creds
	return nil
}

func (s *memoryStore) Clear() error {
	s.creds = nil
	return nil
}
