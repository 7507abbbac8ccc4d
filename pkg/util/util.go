package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome resolves a leading "~" or "~/" in path against the current
// user's home directory. Paths without a tilde are returned unchanged.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigDir returns the per-user directory holding the config
// document, creating nothing.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wechat-file-manager"
	}
	return filepath.Join(home, ".wechat-file-manager")
}

// PrepareDir ensures dir exists.
func PrepareDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// GetDirSize walks dir and returns a human-readable total size. Errors on
// individual entries are ignored so a partially readable tree still
// reports what it can.
func GetDirSize(dir string) string {
	var total int64
	_ = filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return HumanSize(total)
}

// HumanSize formats a byte count with a binary unit suffix.
func HumanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
