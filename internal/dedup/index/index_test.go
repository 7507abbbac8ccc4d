package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	root := t.TempDir()
	idx, err := Open(root)
	require.NoError(t, err)
	defer idx.Close()

	_, ok := idx.Lookup("abc")
	assert.False(t, ok)

	path, created, err := idx.Register("abc", filepath.Join(root, "Image", "a_abc.jpg"), "Image")
	require.NoError(t, err)
	assert.True(t, created)

	got, ok := idx.Lookup("abc")
	assert.True(t, ok)
	assert.Equal(t, path, got)
	assert.Equal(t, 1, idx.Len())
}

func TestRegisterIsIdempotent(t *testing.T) {
	root := t.TempDir()
	idx, err := Open(root)
	require.NoError(t, err)
	defer idx.Close()

	first, created, err := idx.Register("abc", filepath.Join(root, "Image", "winner.jpg"), "Image")
	require.NoError(t, err)
	require.True(t, created)

	// A retry (crash recovery) or a racing worker with another candidate
	// path must observe the winner's entry.
	second, created, err := idx.Register("abc", filepath.Join(root, "Image", "loser.jpg"), "Image")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, idx.Len())
}

func TestEntriesSurviveReopen(t *testing.T) {
	root := t.TempDir()

	idx, err := Open(root)
	require.NoError(t, err)
	path, _, err := idx.Register("abc", filepath.Join(root, "Video", "v.mp4"), "Video")
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	idx2, err := Open(root)
	require.NoError(t, err)
	defer idx2.Close()

	got, ok := idx2.Lookup("abc")
	assert.True(t, ok)
	assert.Equal(t, path, got)
}

func TestReindexRebuildsFromStorage(t *testing.T) {
	root := t.TempDir()
	payload := filepath.Join(root, "Image", "a.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(payload), 0o755))
	require.NoError(t, os.WriteFile(payload, []byte("bytes"), 0o644))

	idx, err := Open(root)
	require.NoError(t, err)
	defer idx.Close()

	added, err := idx.Reindex(func(string) (string, error) { return "deadbeef", nil })
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	got, ok := idx.Lookup("deadbeef")
	assert.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestReindexIgnoresSidecar(t *testing.T) {
	root := t.TempDir()
	idx, err := Open(root)
	require.NoError(t, err)
	defer idx.Close()

	calls := 0
	_, err = idx.Reindex(func(string) (string, error) {
		calls++
		return "x", nil
	})
	require.NoError(t, err)
	assert.Zero(t, calls, "the sidecar database itself must not be indexed")
}
