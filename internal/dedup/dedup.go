// Package dedup implements the incremental scan-and-dedupe engine: walk
// the chat application's cache tree, fingerprint new files, keep exactly
// one physical copy per fingerprint under the storage root and replace
// per-chat copies with symbolic links into it.
package dedup

import "time"

// SourceFile is a candidate discovered during a walk. Ephemeral: it is
// rebuilt from the filesystem on every run and never persisted.
type SourceFile struct {
	// Path is the absolute location under the source root.
	Path string
	// Rel is the slash-separated path relative to the source root.
	Rel string
	// Size in bytes.
	Size int64
	// ModTime gates the incremental watermark.
	ModTime time.Time
	// Folder is the whitelisted target folder the file was classified
	// into; it picks the human-browsable archive subdirectory.
	Folder string
}

// Result describes what Materialize did for one source file.
type Result struct {
	// ArchivePath is the physical copy the content lives at.
	ArchivePath string
	// Created is true when this call made the first physical archive
	// copy for the fingerprint.
	Created bool
	// Linked is true when the source path was replaced by a symlink.
	Linked bool
	// SavedBytes counts bytes reclaimed by deduplicating this file.
	SavedBytes int64
}
