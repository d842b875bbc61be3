// Package credentials persists the signed-in account and its authentication
// token so the client can sign in again without asking the user.
package credentials

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no value has been stored.
var ErrNotFound = errors.New("credential not found")

// Backend names accepted by Open.
const (
	BackendKeyring = "keyring"
	BackendFile    = "file"
	BackendBadger  = "badger"
)

// Store defines the interface for session persistence.
// Implementations treat values as opaque strings.
type Store interface {
	// FetchAccount returns the stored account identifier.
	FetchAccount() (string, error)
	// FetchToken returns the stored authentication token.
	FetchToken() (string, error)
	// SaveAccount stores the account identifier.
	SaveAccount(accountID string) error
	// SaveToken stores the authentication token.
	SaveToken(token string) error
	// Clear removes both values. It is idempotent.
	Clear() error
}

// Session is the persisted record enabling silent re-login.
type Session struct {
	AccountID string `json:"account_id"`
	AuthToken string `json:"auth_token"`
	Persist   bool   `json:"-"`
}

// Load reads the stored session. It returns ErrNotFound unless both the
// account and the token are present and non-blank.
func Load(s Store) (*Session, error) {
	account, err := s.FetchAccount()
	if err != nil {
		return nil, err
	}
	token, err := s.FetchToken()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(account) == "" || strings.TrimSpace(token) == "" {
		return nil, ErrNotFound
	}
	return &Session{AccountID: account, AuthToken: token, Persist: true}, nil
}

// Save writes the account and token of sess.
func Save(s Store, sess Session) error {
	if err := s.SaveAccount(sess.AccountID); err != nil {
		return err
	}
	return s.SaveToken(sess.AuthToken)
}

// Open creates the store for the named backend. dir holds the file and badger
// backends' data and is ignored by the keyring backend.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case "", BackendKeyring:
		return NewSystemKeyring(), nil
	case BackendFile:
		return NewFileStore(filepath.Join(dir, "session.json")), nil
	case BackendBadger:
		return OpenBadgerStore(filepath.Join(dir, "session.db"))
	default:
		return nil, fmt.Errorf("unknown credential backend: %s (supported: keyring, file, badger)", backend)
	}
}
