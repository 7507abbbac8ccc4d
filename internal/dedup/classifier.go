package dedup

import (
	"path"
	"strings"
)

// Classifier decides whether a discovered file is worth processing. Pure:
// the answer depends only on the relative path, the size and the static
// configuration.
type Classifier struct {
	skipPatterns  []string
	targetFolders map[string]struct{}
	minBytes      int64
}

func NewClassifier(skipPatterns, targetFolders []string, minBytes int64) *Classifier {
	targets := make(map[string]struct{}, len(targetFolders))
	for _, f := range targetFolders {
		f = strings.TrimSpace(f)
		if f != "" {
			targets[f] = struct{}{}
		}
	}
	return &Classifier{
		skipPatterns:  skipPatterns,
		targetFolders: targets,
		minBytes:      minBytes,
	}
}

// Classify returns the target folder a file belongs to and whether it
// should be processed. relPath is slash-separated and relative to the
// source root.
func (c *Classifier) Classify(relPath string, size int64) (string, bool) {
	if size < c.minBytes {
		return "", false
	}

	segments := strings.Split(relPath, "/")
	for _, seg := range segments {
		if c.SkipSegment(seg) {
			return "", false
		}
	}

	// The file must live under a whitelisted folder: match directory
	// segments only, never the file name itself.
	for _, seg := range segments[:len(segments)-1] {
		if _, ok := c.targetFolders[seg]; ok {
			return seg, true
		}
	}
	return "", false
}

// SkipSegment reports whether a single path segment matches a skip
// pattern. Patterns with glob metacharacters use path.Match semantics,
// plain patterns match as case-sensitive substrings. The walker uses this
// to prune whole directories so skipped subtrees are never visited.
func (c *Classifier) SkipSegment(segment string) bool {
	for _, pattern := range c.skipPatterns {
		if pattern == "" {
			continue
		}
		if strings.ContainsAny(pattern, "*?[") {
			if ok, err := path.Match(pattern, segment); err == nil && ok {
				return true
			}
			continue
		}
		if strings.Contains(segment, pattern) {
			return true
		}
	}
	return false
}
