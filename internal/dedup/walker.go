package dedup

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhoupc/wechat-file-manager/internal/dedup/index"
	"github.com/zhoupc/wechat-file-manager/internal/errors"
)

// Stats summarizes one walker pass. Counters are safe for concurrent
// workers.
type Stats struct {
	Visited    atomic.Int64 // regular files seen during the walk
	Candidates atomic.Int64 // newer than the watermark and classified in
	Archived   atomic.Int64 // first-seen contents copied into the archive
	Duplicates atomic.Int64 // contents already present in the archive
	Linked     atomic.Int64 // source paths replaced by symlinks
	Failed     atomic.Int64 // per-file errors, retried on a later run
	SavedBytes atomic.Int64 // bytes reclaimed by deduplication
}

// RunResult carries the outcome of one pass.
type RunResult struct {
	Stats *Stats
	// Watermark is the new last_run candidate: the time captured when
	// the run started, not when it finished, so files created during
	// the run stay inside the next run's window.
	Watermark time.Time
	// Commit is false when per-file failures occurred; the caller must
	// then keep the old watermark so the failed files stay eligible.
	Commit bool
}

// Walker drives the per-file pipeline over the source tree: enumerate,
// classify, fingerprint, resolve against the archive index, materialize.
// A single run is safely interruptible at any point: the watermark only
// moves after the whole tree has been handled, and every per-file step is
// idempotent via the index's no-op Register.
type Walker struct {
	sourceRoot string
	classifier *Classifier
	idx        *index.Index
	mat        *Materializer
	workers    int
}

func NewWalker(sourceRoot string, classifier *Classifier, idx *index.Index, mat *Materializer, workers int) *Walker {
	if workers < 1 {
		workers = 1
	}
	return &Walker{
		sourceRoot: sourceRoot,
		classifier: classifier,
		idx:        idx,
		mat:        mat,
		workers:    workers,
	}
}

// Run performs one full pass bounded by the lastRun watermark.
func (w *Walker) Run(ctx context.Context, lastRun time.Time) (*RunResult, error) {
	if err := w.checkRoots(); err != nil {
		return nil, err
	}

	start := time.Now()
	stats := &Stats{}

	files := make(chan SourceFile, 64)
	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range files {
				w.process(src, stats)
			}
		}()
	}

	walkErr := filepath.WalkDir(w.sourceRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == w.sourceRoot {
				return errors.AccessDenied(w.sourceRoot, err)
			}
			log.Warn().Err(err).Str("path", path).Msg("walk: entry unreadable, skipped")
			stats.Failed.Add(1)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.IsDir() {
			if path != w.sourceRoot && w.classifier.SkipSegment(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			// Symlinks from earlier runs and special files are not
			// candidates.
			return nil
		}

		stats.Visited.Add(1)

		info, err := d.Info()
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("walk: stat failed, skipped")
			stats.Failed.Add(1)
			return nil
		}
		if !info.ModTime().After(lastRun) {
			return nil
		}

		rel, err := filepath.Rel(w.sourceRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		folder, ok := w.classifier.Classify(rel, info.Size())
		if !ok {
			return nil
		}

		stats.Candidates.Add(1)
		files <- SourceFile{
			Path:    path,
			Rel:     rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Folder:  folder,
		}
		return nil
	})

	close(files)
	wg.Wait()

	if walkErr != nil {
		return nil, walkErr
	}

	return &RunResult{
		Stats:     stats,
		Watermark: start,
		Commit:    stats.Failed.Load() == 0,
	}, nil
}

// process runs the fingerprint → resolve → materialize tail of the
// pipeline for one candidate. Failures are recoverable: logged, counted
// and retried on a later run since the watermark will not move past them.
func (w *Walker) process(src SourceFile, stats *Stats) {
	hash, err := Fingerprint(src.Path)
	if err != nil {
		log.Warn().Err(err).Str("path", src.Path).Msg("fingerprint failed, will retry next run")
		stats.Failed.Add(1)
		return
	}

	res, err := w.mat.Materialize(src, hash)
	if err != nil {
		log.Warn().Err(err).
			Str("path", src.Path).
			Str("fingerprint", hash).
			Msg("materialize failed, will retry next run")
		stats.Failed.Add(1)
		return
	}

	if res.Created {
		stats.Archived.Add(1)
	} else {
		stats.Duplicates.Add(1)
	}
	if res.Linked {
		stats.Linked.Add(1)
	}
	stats.SavedBytes.Add(res.SavedBytes)

	log.Debug().
		Str("path", src.Path).
		Str("fingerprint", hash).
		Str("archive", res.ArchivePath).
		Bool("first_seen", res.Created).
		Msg("file handled")
}

// checkRoots validates both roots up front. Either one being unusable is
// fatal for the whole run.
func (w *Walker) checkRoots() error {
	info, err := os.Stat(w.sourceRoot)
	if err != nil {
		return errors.AccessDenied(w.sourceRoot, err)
	}
	if !info.IsDir() {
		return errors.AccessDenied(w.sourceRoot, errNotDir)
	}

	probe, err := os.CreateTemp(w.idx.Root(), ".probe-*")
	if err != nil {
		return errors.AccessDenied(w.idx.Root(), err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

var errNotDir = &notDirError{}

type notDirError struct{}

func (*notDirError) Error() string { return "not a directory" }
