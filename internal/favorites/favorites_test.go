package favorites

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingFile(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "none", "favorites.yml"))
	require.NoError(t, err)
	assert.Empty(t, s.List())
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "favorites.yml")
	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.Add("google:en-US-Standard-A"))
	require.NoError(t, s.Add("openai:nova"))
	require.NoError(t, s.Add("openai:nova"))

	on, err := s.Toggle("espeak-ng:en")
	require.NoError(t, err)
	assert.True(t, on)
	on, err = s.Toggle("espeak-ng:en")
	require.NoError(t, err)
	assert.False(t, on)

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"google:en-US-Standard-A", "openai:nova"}, reopened.List())
	assert.True(t, reopened.Has("openai:nova"))

	require.NoError(t, reopened.Remove("google:en-US-Standard-A"))
	require.NoError(t, reopened.Remove("not-there"))

	again, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"openai:nova"}, again.List())
}

func TestOpenRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "favorites.yml")
	require.NoError(t, os.WriteFile(path, []byte("voices: [a]\ncolors: [red]\n"), 0o600))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestOpenEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "favorites.yml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	s, err := Open(path)
	require.NoError(t, err)
	assert.Empty(t, s.List())
}
