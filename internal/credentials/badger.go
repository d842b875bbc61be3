package credentials

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Keys used by the badger backend.
var (
	badgerAccountKey = []byte("session:account_id")
	badgerTokenKey   = []byte("session:auth_token")
)

// BadgerStore implements Store on an embedded badger database.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens or creates the database directory at path.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions(path).WithLogger(nil))
}

// OpenInMemoryBadgerStore opens a database that is never written to disk.
func OpenInMemoryBadgerStore() (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close releases the database.
func (s *BadgerStore) Close() error { return s.db.Close() }

// FetchAccount returns the stored account identifier.
func (s *BadgerStore) FetchAccount() (string, error) {
	return s.get(badgerAccountKey)
}

// FetchToken returns the stored authentication token.
func (s *BadgerStore) FetchToken() (string, error) {
	return s.get(badgerTokenKey)
}

// SaveAccount stores the account identifier.
func (s *BadgerStore) SaveAccount(accountID string) error {
	return s.set(badgerAccountKey, accountID)
}

// SaveToken stores the authentication token.
func (s *BadgerStore) SaveToken(token string) error {
	return s.set(badgerTokenKey, token)
}

// Clear removes both values.
func (s *BadgerStore) Clear() error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(badgerAccountKey); err != nil {
			return err
		}
		return txn.Delete(badgerTokenKey)
	})
}

func (s *BadgerStore) get(key []byte) (string, error) {
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to retrieve credential: %w", err)
	}
	return value, nil
}

func (s *BadgerStore) set(key []byte, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, []byte(value))
	})
	if err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}
