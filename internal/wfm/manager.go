// Package wfm wires configuration, the archive index and the walker into
// the commands exposed by the CLI.
package wfm

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/zhoupc/wechat-file-manager/internal/dedup"
	"github.com/zhoupc/wechat-file-manager/internal/dedup/index"
	"github.com/zhoupc/wechat-file-manager/internal/wfm/conf"
	"github.com/zhoupc/wechat-file-manager/pkg/config"
	"github.com/zhoupc/wechat-file-manager/pkg/util"
)

// watchDebounce batches bursts of filesystem events into one pass.
const watchDebounce = 2 * time.Second

// Manager owns one loaded configuration and drives dedupe passes against
// it. The watermark is read at pass start and written back to the same
// config document only after a pass finishes cleanly.
type Manager struct {
	conf *conf.Config
	cm   *config.Manager
}

// New loads the config document at configPath (default location when
// empty).
func New(configPath string) (*Manager, error) {
	c, cm, err := conf.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &Manager{conf: c, cm: cm}, nil
}

// Config exposes the resolved configuration.
func (m *Manager) Config() *conf.Config {
	return m.conf
}

// RunOnce performs one full incremental pass and persists the advanced
// watermark on success.
func (m *Manager) RunOnce(ctx context.Context) (*dedup.RunResult, error) {
	idx, err := index.Open(m.conf.Paths.Storage)
	if err != nil {
		return nil, err
	}
	defer idx.Close()

	classifier := dedup.NewClassifier(
		m.conf.Settings.SkipPatterns,
		m.conf.Settings.TargetFolders,
		m.conf.MinBytes(),
	)
	mat := dedup.NewMaterializer(m.conf.Paths.Storage, m.conf.Settings.PreserveOriginals, idx)
	walker := dedup.NewWalker(m.conf.Paths.WeChat, classifier, idx, mat, m.conf.Settings.Workers)

	lastRun, _ := m.conf.LastRunTime()
	res, err := walker.Run(ctx, lastRun)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("visited", res.Stats.Visited.Load()).
		Int64("candidates", res.Stats.Candidates.Load()).
		Int64("archived", res.Stats.Archived.Load()).
		Int64("duplicates", res.Stats.Duplicates.Load()).
		Int64("linked", res.Stats.Linked.Load()).
		Int64("failed", res.Stats.Failed.Load()).
		Str("saved", util.HumanSize(res.Stats.SavedBytes.Load())).
		Msg("pass finished")

	if res.Commit {
		stamp := res.Watermark.Format(time.RFC3339Nano)
		if err := m.cm.SetConfig("state.last_run", stamp); err != nil {
			return res, err
		}
		m.conf.State.LastRun = stamp
	} else {
		log.Warn().Msg("per-file failures occurred, keeping previous watermark so they retry")
	}
	return res, nil
}

// Watch runs an initial pass, then keeps watching the source tree and
// re-runs after bursts of activity settle. Returns when ctx is cancelled.
func (m *Manager) Watch(ctx context.Context) error {
	if _, err := m.RunOnce(ctx); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addWatchTree(watcher, m.conf.Paths.WeChat); err != nil {
		return err
	}

	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	log.Info().Str("root", m.conf.Paths.WeChat).Msg("watching source tree")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
					if err := addWatchTree(watcher, ev.Name); err != nil {
						log.Warn().Err(err).Str("path", ev.Name).Msg("watch new dir failed")
					}
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				if !pending {
					pending = true
				} else if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(watchDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watcher error")

		case <-timer.C:
			pending = false
			if _, err := m.RunOnce(ctx); err != nil {
				return err
			}
		}
	}
}

// addWatchTree registers root and every directory below it. fsnotify
// watches are not recursive.
func addWatchTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if err := w.Add(path); err != nil {
				log.Debug().Err(err).Str("path", path).Msg("watch add failed")
			}
		}
		return nil
	})
}

// StatusReport is what `wfm status` prints.
type StatusReport struct {
	ConfigFile   string
	SourceRoot   string
	StorageRoot  string
	LastRun      string
	Entries      int
	StorageUsage string
	Preserve     bool
}

// Status summarizes the archive without mutating anything.
func (m *Manager) Status() (*StatusReport, error) {
	idx, err := index.Open(m.conf.Paths.Storage)
	if err != nil {
		return nil, err
	}
	defer idx.Close()

	lastRun := m.conf.State.LastRun
	if lastRun == "" {
		lastRun = "never"
	}
	return &StatusReport{
		ConfigFile:   m.cm.File,
		SourceRoot:   m.conf.Paths.WeChat,
		StorageRoot:  m.conf.Paths.Storage,
		LastRun:      lastRun,
		Entries:      idx.Len(),
		StorageUsage: util.GetDirSize(m.conf.Paths.Storage),
		Preserve:     m.conf.Settings.PreserveOriginals,
	}, nil
}

// Reindex rebuilds a lost or damaged sidecar index from the archive
// contents.
func (m *Manager) Reindex() (int, error) {
	idx, err := index.Open(m.conf.Paths.Storage)
	if err != nil {
		return 0, err
	}
	defer idx.Close()
	return idx.Reindex(dedup.Fingerprint)
}

// Init writes the default config document unless one already exists, and
// prepares the storage root.
func Init(configPath string) (string, error) {
	if configPath == "" {
		configPath = conf.DefaultFile()
	}
	cm, err := config.New(configPath)
	if err != nil {
		return "", err
	}
	if cm.Exists() {
		return configPath, nil
	}

	def := conf.Default()
	if err := cm.SetAll(def.Sections()); err != nil {
		return "", err
	}

	storage := util.ExpandHome(def.Paths.Storage)
	if err := util.PrepareDir(storage); err != nil {
		log.Warn().Err(err).Str("path", storage).Msg("storage root not created yet")
	}
	return configPath, nil
}
