package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	zkeyring "github.com/zalando/go-keyring"
)

// testStoreContract exercises the behavior every backend shares.
func testStoreContract(t *testing.T, store Store) {
	t.Helper()

	_, err := store.FetchAccount()
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.FetchToken()
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Load(store)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, Save(store, Session{AccountID: "alice", AuthToken: "tok1"}))

	account, err := store.FetchAccount()
	require.NoError(t, err)
	assert.Equal(t, "alice", account)

	token, err := store.FetchToken()
	require.NoError(t, err)
	assert.Equal(t, "tok1", token)

	sess, err := Load(store)
	require.NoError(t, err)
	assert.Equal(t, &Session{AccountID: "alice", AuthToken: "tok1", Persist: true}, sess)

	// Latest successful authentication wins
	require.NoError(t, Save(store, Session{AccountID: "bob", AuthToken: "tok2"}))
	sess, err = Load(store)
	require.NoError(t, err)
	assert.Equal(t, "bob", sess.AccountID)
	assert.Equal(t, "tok2", sess.AuthToken)

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
	_, err = Load(store)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSystemKeyring(t *testing.T) {
	zkeyring.MockInit()
	testStoreContract(t, NewSystemKeyring())
}

func TestSystemKeyring_Error(t *testing.T) {
	zkeyring.MockInitWithError(errors.New("keyring service unavailable"))
	store := NewSystemKeyring()

	err := store.SaveAccount("alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to store credential")

	_, err = store.FetchToken()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	err = store.Clear()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to delete credential")
}

func TestServiceName(t *testing.T) {
	assert.Equal(t, "imorning-chat", ServiceName)
}

func TestFileStore(t *testing.T) {
	testStoreContract(t, NewFileStore(filepath.Join(t.TempDir(), "session.json")))
}

func TestFileStore_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.json")
	store := NewFileStore(path)

	require.NoError(t, store.SaveToken("tok1"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// Account not written yet
	_, err = store.FetchAccount()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileStore(path).FetchAccount()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "failed to parse session file")
}

func TestBadgerStore(t *testing.T) {
	store, err := OpenInMemoryBadgerStore()
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	testStoreContract(t, store)
}

func TestBadgerStore_OnDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "session.db")

	store, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, Save(store, Session{AccountID: "alice", AuthToken: "tok1"}))
	require.NoError(t, store.Close())

	reopened, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	sess, err := Load(reopened)
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.AccountID)
}

func TestLoad_BlankValues(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, Save(store, Session{AccountID: "alice", AuthToken: "   "}))

	_, err := Load(store)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(BackendFile, dir)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	store, err = Open("", dir)
	require.NoError(t, err)
	assert.IsType(t, &SystemKeyring{}, store)

	store, err = Open(BackendBadger, dir)
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, store)
	require.NoError(t, store.(*BadgerStore).Close())

	_, err = Open("sqlite", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown credential backend")
}
