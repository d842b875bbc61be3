package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/imorning/chat/internal/fileutil"
)

// FileStore implements Store as a JSON record on disk.
// It is safe for concurrent use.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// FetchAccount returns the stored account identifier.
func (s *FileStore) FetchAccount() (string, error) {
	rec, err := s.read()
	if err != nil {
		return "", err
	}
	if rec.AccountID == "" {
		return "", ErrNotFound
	}
	return rec.AccountID, nil
}

// FetchToken returns the stored authentication token.
func (s *FileStore) FetchToken() (string, error) {
	rec, err := s.read()
	if err != nil {
		return "", err
	}
	if rec.AuthToken == "" {
		return "", ErrNotFound
	}
	return rec.AuthToken, nil
}

// SaveAccount stores the account identifier.
func (s *FileStore) SaveAccount(accountID string) error {
	return s.update(func(rec *Session) { rec.AccountID = accountID })
}

// SaveToken stores the authentication token.
func (s *FileStore) SaveToken(token string) error {
	return s.update(func(rec *Session) { rec.AuthToken = token })
}

// Clear removes the record file.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

func (s *FileStore) read() (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

func (s *FileStore) readLocked() (Session, error) {
	var rec Session

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return rec, ErrNotFound
		}
		return rec, fmt.Errorf("failed to read session file: %w", err)
	}

	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to parse session file: %w", err)
	}
	return rec, nil
}

func (s *FileStore) update(fn func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.readLocked()
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	fn(&rec)

	if err := fileutil.WriteJSON(s.path, rec, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}
