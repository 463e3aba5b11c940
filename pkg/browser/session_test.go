package browser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cookies := []SessionCookie{
		{Name: "auth_token", Value: "abc", Domain: ".x.com", Path: "/", Secure: true, HTTPOnly: true},
		{Name: "ct0", Value: "def", Domain: ".x.com", Path: "/"},
	}

	require.NoError(t, SaveSession(dir, "@alice", cookies))

	state, err := LoadSession(dir, "alice")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "alice", state.Username)
	assert.Equal(t, cookies, state.Cookies)
	assert.False(t, state.SavedAt.IsZero())
}

func TestSessionPathStripsAtPrefix(t *testing.T) {
	assert.Equal(t, filepath.Join("/tmp/s", "alice_session.json"), SessionPath("/tmp/s", "@alice"))
}

func TestLoadMissingSessionIsNil(t *testing.T) {
	state, err := LoadSession(t.TempDir(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestDeleteSession(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SaveSession(dir, "alice", nil))

	require.NoError(t, DeleteSession(dir, "alice"))
	_, err := os.Stat(SessionPath(dir, "alice"))
	assert.True(t, os.IsNotExist(err))

	// Deleting again is not an error
	assert.NoError(t, DeleteSession(dir, "alice"))
}

func TestSessionFilePermissions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SaveSession(dir, "alice", []SessionCookie{{Name: "auth_token", Value: "secret"}}))

	info, err := os.Stat(SessionPath(dir, "alice"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
