package dedup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhoupc/wechat-file-manager/internal/dedup/index"
)

func TestCleanName(t *testing.T) {
	hash := "0123456789abcdef0123456789abcdef"

	assert.Equal(t, "photo_01234567.jpg", CleanName("photo.jpg", hash))
	assert.Equal(t, "photo_01234567.jpg", CleanName("photo (2).jpg", hash))
	assert.Equal(t, "photo (2)_01234567", CleanName("photo (2)", hash))
	assert.Equal(t, "archive.tar_01234567.gz", CleanName("archive.tar (3).gz", hash))
	assert.Equal(t, "file_01234567.jpg", CleanName(".jpg", hash))
}

func newTestMaterializer(t *testing.T, preserve bool) (*Materializer, *index.Index, string) {
	t.Helper()
	storage := t.TempDir()
	idx, err := index.Open(storage)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return NewMaterializer(storage, preserve, idx), idx, storage
}

func sourceFor(t *testing.T, dir, name string, content []byte) (SourceFile, string) {
	t.Helper()
	path := filepath.Join(dir, "Image", name)
	writeFile(t, path, content)
	info, err := os.Lstat(path)
	require.NoError(t, err)
	hash, err := Fingerprint(path)
	require.NoError(t, err)
	return SourceFile{
		Path:    path,
		Rel:     "Image/" + name,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Folder:  "Image",
	}, hash
}

func TestMaterializeLinkModeFirstSeen(t *testing.T) {
	mat, idx, _ := newTestMaterializer(t, false)
	src, hash := sourceFor(t, t.TempDir(), "a.jpg", []byte("payload"))

	res, err := mat.Materialize(src, hash)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, res.Linked)

	// The archive copy holds the bytes.
	got, err := os.ReadFile(res.ArchivePath)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	// The source path is now a symlink to the archive copy.
	info, err := os.Lstat(src.Path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)
	target, err := os.Readlink(src.Path)
	require.NoError(t, err)
	assert.Equal(t, res.ArchivePath, target)

	_, ok := idx.Lookup(hash)
	assert.True(t, ok)
}

func TestMaterializeLinkModeDuplicate(t *testing.T) {
	mat, idx, _ := newTestMaterializer(t, false)
	srcDir := t.TempDir()

	first, hash := sourceFor(t, srcDir, "a.jpg", []byte("payload"))
	res1, err := mat.Materialize(first, hash)
	require.NoError(t, err)
	require.True(t, res1.Created)

	second, hash2 := sourceFor(t, srcDir, "b.jpg", []byte("payload"))
	require.Equal(t, hash, hash2)

	res2, err := mat.Materialize(second, hash2)
	require.NoError(t, err)
	assert.False(t, res2.Created, "duplicate content must not create a second physical copy")
	assert.True(t, res2.Linked)
	assert.Equal(t, res1.ArchivePath, res2.ArchivePath)
	assert.Equal(t, second.Size, res2.SavedBytes)

	target, err := os.Readlink(second.Path)
	require.NoError(t, err)
	assert.Equal(t, res1.ArchivePath, target)
	assert.Equal(t, 1, idx.Len())
}

func TestMaterializePreserveModeLeavesSourceAlone(t *testing.T) {
	mat, _, _ := newTestMaterializer(t, true)
	src, hash := sourceFor(t, t.TempDir(), "a.jpg", []byte("payload"))

	res, err := mat.Materialize(src, hash)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.False(t, res.Linked)

	info, err := os.Lstat(src.Path)
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular(), "preserve mode must never touch the source")

	got, err := os.ReadFile(src.Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	archived, err := os.ReadFile(res.ArchivePath)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), archived)
}

func TestMaterializePreserveModeDuplicateIsNoop(t *testing.T) {
	mat, _, storage := newTestMaterializer(t, true)
	srcDir := t.TempDir()

	first, hash := sourceFor(t, srcDir, "a.jpg", []byte("payload"))
	_, err := mat.Materialize(first, hash)
	require.NoError(t, err)

	second, _ := sourceFor(t, srcDir, "b.jpg", []byte("payload"))
	res, err := mat.Materialize(second, hash)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.False(t, res.Linked)

	assert.Equal(t, 1, countPayloadFiles(t, storage))
}

func TestMaterializeRegisterBeforeSourceRemoval(t *testing.T) {
	// Crash between archive write and relink leaves the source behind;
	// the retry must resolve it as a duplicate of the registered entry.
	mat, idx, storage := newTestMaterializer(t, false)
	src, hash := sourceFor(t, t.TempDir(), "a.jpg", []byte("payload"))

	canonical := mat.CanonicalPath(src, hash)
	require.NoError(t, os.MkdirAll(filepath.Dir(canonical), 0o755))
	require.NoError(t, os.WriteFile(canonical, []byte("payload"), 0o644))
	_, _, err := idx.Register(hash, canonical, "Image")
	require.NoError(t, err)

	res, err := mat.Materialize(src, hash)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.True(t, res.Linked)
	assert.Equal(t, 1, countPayloadFiles(t, storage))
}

// countPayloadFiles counts regular files under the storage root excluding
// the index sidecar.
func countPayloadFiles(t *testing.T, storage string) int {
	t.Helper()
	count := 0
	err := filepath.Walk(storage, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() && !strings.HasPrefix(filepath.Base(path), index.DBFileName) {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	return count
}
