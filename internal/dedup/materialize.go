package dedup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cespare/xxhash"
	"golang.org/x/sync/singleflight"

	"github.com/zhoupc/wechat-file-manager/internal/dedup/index"
	"github.com/zhoupc/wechat-file-manager/internal/errors"
)

// Materializer performs the filesystem mutation for a resolved candidate:
// ensure the content has exactly one physical copy under the storage root,
// then either leave the source untouched (preserve mode) or replace it
// with a symlink into the archive (link mode).
//
// Ordering invariant: a source file is never removed or moved before its
// archive counterpart has been written, verified and registered. Every
// step up to that point leaves the source in its original state, so an
// interrupted run reprocesses safely.
type Materializer struct {
	storageRoot string
	preserve    bool
	idx         *index.Index
	flight      singleflight.Group
}

func NewMaterializer(storageRoot string, preserve bool, idx *index.Index) *Materializer {
	return &Materializer{
		storageRoot: storageRoot,
		preserve:    preserve,
		idx:         idx,
	}
}

// dupSuffix matches Windows-style " (2)" duplicate markers before the
// final extension.
var dupSuffix = regexp.MustCompile(` \(\d+\)(\.[^.]+)$`)

// CleanName strips duplicate markers from name and tags it with a hash
// prefix so distinct contents sharing a name never collide in the
// archive.
func CleanName(name, hash string) string {
	name = dupSuffix.ReplaceAllString(name, "$1")
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		base = "file"
	}
	short := hash
	if len(short) > 8 {
		short = short[:8]
	}
	return base + "_" + short + ext
}

// CanonicalPath derives the archive location for a fingerprinted source
// file. Deterministic: the same file and fingerprint always map to the
// same path.
func (m *Materializer) CanonicalPath(src SourceFile, hash string) string {
	return filepath.Join(m.storageRoot, src.Folder, CleanName(filepath.Base(src.Path), hash))
}

// Materialize archives src's content if it is first-seen and, in link
// mode, replaces the source with a symlink to the archive copy.
func (m *Materializer) Materialize(src SourceFile, hash string) (Result, error) {
	archivePath, created, err := m.ensureArchived(src, hash)
	if err != nil {
		return Result{}, err
	}

	res := Result{ArchivePath: archivePath, Created: created}
	if m.preserve {
		return res, nil
	}

	if err := m.relink(src.Path, archivePath); err != nil {
		return res, err
	}
	res.Linked = true
	if !created {
		res.SavedBytes = src.Size
	}
	return res, nil
}

// ensureArchived guarantees a registered physical copy for hash exists
// and returns its path. Concurrent workers racing on the same hash are
// collapsed to a single archive write; the losers observe the winner's
// entry and proceed as duplicates.
func (m *Materializer) ensureArchived(src SourceFile, hash string) (string, bool, error) {
	type archived struct {
		path    string
		created bool
	}

	// Workers racing on the same hash collapse into one execution; only
	// the caller whose closure actually ran may claim the creation.
	executed := false
	v, err, _ := m.flight.Do(hash, func() (any, error) {
		executed = true
		if path, ok := m.idx.Lookup(hash); ok {
			return archived{path: path}, nil
		}

		canonical := m.CanonicalPath(src, hash)
		if err := copyVerified(src.Path, canonical); err != nil {
			return nil, err
		}

		path, created, err := m.idx.Register(hash, canonical, src.Folder)
		if err != nil {
			return nil, err
		}
		if !created && path != canonical {
			// Sidecar already knew this hash under another name
			// (crash-and-retry leftovers); drop the redundant copy.
			_ = os.Remove(canonical)
		}
		return archived{path: path, created: created}, nil
	})
	if err != nil {
		return "", false, err
	}
	a := v.(archived)
	return a.path, a.created && executed, nil
}

// relink deletes the source file and plants a symlink to the archive copy
// at its original path. Only called once the archive copy is confirmed.
func (m *Materializer) relink(srcPath, archivePath string) error {
	if err := os.Remove(srcPath); err != nil {
		return errors.FileIO("remove", srcPath, err)
	}
	if err := os.Symlink(archivePath, srcPath); err != nil {
		return errors.FileIO("symlink", srcPath, err)
	}
	return nil
}

// copyVerified streams src into a temp file next to dst, fsyncs it,
// re-reads it to confirm the on-disk bytes match what was read from the
// source, then renames it into place. The rename keeps the operation
// atomic on the storage filesystem; the source is never touched.
func copyVerified(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.FileIO("mkdir", filepath.Dir(dst), err)
	}

	in, err := os.Open(src)
	if err != nil {
		return errors.FileIO("open", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".wfm-*")
	if err != nil {
		return errors.FileIO("create", dst, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	sum := xxhash.New()
	if _, err := io.Copy(io.MultiWriter(tmp, sum), in); err != nil {
		cleanup()
		return errors.FileIO("copy", src, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return errors.FileIO("sync", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.FileIO("close", tmpPath, err)
	}

	written, err := hashFileXX(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return err
	}
	if written != sum.Sum64() {
		os.Remove(tmpPath)
		return errors.FileIO("verify", dst, fmt.Errorf("checksum mismatch after copy"))
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return errors.FileIO("rename", dst, err)
	}
	return nil
}

func hashFileXX(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.FileIO("open", path, err)
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, errors.FileIO("read", path, err)
	}
	return h.Sum64(), nil
}
