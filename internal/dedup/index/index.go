package index

import (
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/zerolog/log"
)

// DBFileName is the sidecar database kept next to the archived files.
const DBFileName = "file_hashes.db"

// Entry records one archived fingerprint. Entries are immutable and never
// deleted by the engine.
type Entry struct {
	Hash      string
	Path      string
	Folder    string
	FirstSeen time.Time
}

// Index maps content fingerprints to archive paths. Lookups run against an
// in-memory map hydrated from a sqlite sidecar under the storage root, so
// a restart never loses previously archived entries. Register is
// serialized and idempotent: concurrent or repeated registrations of the
// same fingerprint converge on the first entry.
type Index struct {
	mu      sync.RWMutex
	db      *sql.DB
	root    string
	entries map[string]Entry
}

// Open ensures the storage root exists, opens the sidecar database and
// hydrates the in-memory map.
func Open(storageRoot string) (*Index, error) {
	if err := os.MkdirAll(storageRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	dbPath := filepath.Join(storageRoot, DBFileName)
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS file_hashes (
			hash       TEXT PRIMARY KEY,
			file_path  TEXT NOT NULL,
			folder     TEXT NOT NULL DEFAULT '',
			first_seen INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init index schema: %w", err)
	}

	idx := &Index{
		db:      db,
		root:    storageRoot,
		entries: make(map[string]Entry),
	}
	if err := idx.loadEntries(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (i *Index) loadEntries() error {
	rows, err := i.db.Query(`SELECT hash, file_path, folder, first_seen FROM file_hashes`)
	if err != nil {
		return fmt.Errorf("load index entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e Entry
		var firstSeen int64
		if err := rows.Scan(&e.Hash, &e.Path, &e.Folder, &firstSeen); err != nil {
			return fmt.Errorf("scan index entry: %w", err)
		}
		e.FirstSeen = time.Unix(firstSeen, 0)
		i.entries[e.Hash] = e
	}
	return rows.Err()
}

// Lookup answers whether content with this fingerprint has been archived
// before, and where.
func (i *Index) Lookup(hash string) (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	e, ok := i.entries[hash]
	if !ok {
		return "", false
	}
	return e.Path, true
}

// Register records an archive entry for hash. Registering an
// already-present fingerprint is a no-op returning the existing path, so
// a crash-and-retry or a first-seen race between workers never produces a
// second physical copy.
func (i *Index) Register(hash, archivePath, folder string) (string, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if e, ok := i.entries[hash]; ok {
		return e.Path, false, nil
	}

	e := Entry{Hash: hash, Path: archivePath, Folder: folder, FirstSeen: time.Now()}
	if _, err := i.db.Exec(
		`INSERT OR IGNORE INTO file_hashes (hash, file_path, folder, first_seen) VALUES (?, ?, ?, ?)`,
		e.Hash, e.Path, e.Folder, e.FirstSeen.Unix(),
	); err != nil {
		return "", false, fmt.Errorf("register fingerprint %s: %w", hash, err)
	}
	i.entries[hash] = e
	return e.Path, true, nil
}

// Len returns the number of archived fingerprints.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// Root returns the storage root the index is bound to.
func (i *Index) Root() string {
	return i.root
}

// Reindex rebuilds the sidecar by enumerating the storage root, hashing
// each archived file with hashFile. Recovery path for a lost or corrupt
// sidecar; existing entries are kept.
func (i *Index) Reindex(hashFile func(path string) (string, error)) (int, error) {
	added := 0
	err := filepath.WalkDir(i.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if filepath.Base(path) == DBFileName {
			return nil
		}
		hash, herr := hashFile(path)
		if herr != nil {
			log.Warn().Err(herr).Str("path", path).Msg("reindex: hash failed, entry skipped")
			return nil
		}
		rel, rerr := filepath.Rel(i.root, path)
		if rerr != nil {
			return rerr
		}
		folder := strings.Split(filepath.ToSlash(rel), "/")[0]
		if _, created, rerr := i.Register(hash, path, folder); rerr != nil {
			return rerr
		} else if created {
			added++
		}
		return nil
	})
	if err != nil {
		return added, fmt.Errorf("reindex storage root: %w", err)
	}
	return added, nil
}

// Close releases the sidecar database handle.
func (i *Index) Close() error {
	if i == nil || i.db == nil {
		return nil
	}
	return i.db.Close()
}
