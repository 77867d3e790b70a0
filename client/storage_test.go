package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewFileStore(path)

	in := &PersistedSession{
		AccessToken:  "tok1",
		RefreshToken: "ref1",
		User:         &User{ID: "u1", Email: "a@b.com"},
		Tenant:       &Tenant{ID: "t1", Name: "Acme"},
	}
	require.NoError(t, store.Save(in))

	out, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Equal(t, "tok1", out.AccessToken)
	require.Equal(t, "ref1", out.RefreshToken)
	require.Equal(t, "a@b.com", out.User.Email)
	require.Equal(t, "Acme", out.Tenant.Name)
}

func TestFileStoreLoadMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))
	out, err := store.Load()
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestFileStoreLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	out, err := NewFileStore(path).Load()
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestFileStoreClearRemovesSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewFileStore(path)
	require.NoError(t, store.Save(&PersistedSession{AccessToken: "tok1"}))

	require.NoError(t, store.Clear())
	out, err := store.Load()
	require.NoError(t, err)
	require.Nil(t, out)

	// clearing again must not fail
	require.NoError(t, store.Clear())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(&PersistedSession{AccessToken: "tok1"}))

	first, err := store.Load()
	require.NoError(t, err)
	first.AccessToken = "mutated"

	second, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "tok1", second.AccessToken)
}
