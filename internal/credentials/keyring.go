package credentials

import (
	"errors"
	"fmt"

	zkeyring "github.com/zalando/go-keyring"
)

// ServiceName is the identifier used for storing credentials in the system keyring.
const ServiceName = "imorning-chat"

// Keyring item names.
const (
	accountKey = "account_id"
	tokenKey   = "auth_token"
)

// SystemKeyring implements Store using the system keyring.
type SystemKeyring struct{}

// NewSystemKeyring creates a new SystemKeyring instance.
func NewSystemKeyring() *SystemKeyring {
	return &SystemKeyring{}
}

// FetchAccount returns the stored account identifier.
func (s *SystemKeyring) FetchAccount() (string, error) {
	return s.get(accountKey)
}

// FetchToken returns the stored authentication token.
func (s *SystemKeyring) FetchToken() (string, error) {
	return s.get(tokenKey)
}

// SaveAccount stores the account identifier.
func (s *SystemKeyring) SaveAccount(accountID string) error {
	return s.set(accountKey, accountID)
}

// SaveToken stores the authentication token.
func (s *SystemKeyring) SaveToken(token string) error {
	return s.set(tokenKey, token)
}

// Clear removes both items. Missing items are not an error.
func (s *SystemKeyring) Clear() error {
	for _, key := range []string{accountKey, tokenKey} {
		if err := zkeyring.Delete(ServiceName, key); err != nil && !errors.Is(err, zkeyring.ErrNotFound) {
			return fmt.Errorf("failed to delete credential: %w", err)
		}
	}
	return nil
}

func (s *SystemKeyring) get(key string) (string, error) {
	value, err := zkeyring.Get(ServiceName, key)
	if err != nil {
		if errors.Is(err, zkeyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to retrieve credential: %w", err)
	}
	return value, nil
}

func (s *SystemKeyring) set(key, value string) error {
	if err := zkeyring.Set(ServiceName, key, value); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}
