package dedup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhoupc/wechat-file-manager/internal/errors"
)

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

func TestFingerprintDeterministic(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "sub", "b.bin")
	writeFile(t, a, []byte("same content"))
	writeFile(t, b, []byte("same content"))

	ha, err := Fingerprint(a)
	require.NoError(t, err)
	hb, err := Fingerprint(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb, "identical bytes must fingerprint identically regardless of path")
	assert.Len(t, ha, 32)
}

func TestFingerprintDiffersForDifferentContent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")
	writeFile(t, a, []byte("content one"))
	writeFile(t, b, []byte("content two"))

	ha, err := Fingerprint(a)
	require.NoError(t, err)
	hb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}

func TestFingerprintMissingFileIsRecoverable(t *testing.T) {
	_, err := Fingerprint(filepath.Join(t.TempDir(), "gone.bin"))
	require.Error(t, err)
	assert.True(t, errors.IsFileIO(err), "read failures must surface as FileIOError")
	assert.False(t, errors.IsFatal(err))
}

func TestFingerprintLargeFileChunked(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.bin")
	big := make([]byte, fingerprintChunkSize*3+17)
	for i := range big {
		big[i] = byte(i)
	}
	writeFile(t, path, big)

	h1, err := Fingerprint(path)
	require.NoError(t, err)
	h2, err := Fingerprint(path)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}
