package conf

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/zhoupc/wechat-file-manager/internal/errors"
	"github.com/zhoupc/wechat-file-manager/pkg/config"
	"github.com/zhoupc/wechat-file-manager/pkg/util"
)

const configFileName = "config.yaml"

// Paths locates the two filesystem roots the engine works between.
type Paths struct {
	// WeChat is the chat application's cache root (the source tree).
	WeChat string `mapstructure:"wechat" json:"wechat"`
	// Storage is the centralized deduplicated archive root.
	Storage string `mapstructure:"storage" json:"storage"`
}

// Settings holds the scan and materialization knobs.
type Settings struct {
	// MinFileSize is the minimum file size in MB; smaller files are
	// ignored. Compared in bytes with exact MB*1024*1024 conversion.
	MinFileSize int `mapstructure:"min_file_size" json:"min_file_size"`
	// PreserveOriginals selects preserve mode: archive copies are made
	// but source files are never moved, deleted or replaced by links.
	PreserveOriginals bool `mapstructure:"preserve_originals" json:"preserve_originals"`
	// SkipPatterns are case-sensitive segment filters. A pattern with
	// glob metacharacters is matched with path.Match, otherwise as a
	// substring of the segment.
	SkipPatterns []string `mapstructure:"skip_patterns" json:"skip_patterns"`
	// TargetFolders whitelists the directory names worth scanning,
	// matched as whole path segments.
	TargetFolders []string `mapstructure:"target_folders" json:"target_folders"`
	// Workers bounds the per-file pipeline fan-out. 1 means serial.
	Workers int `mapstructure:"workers" json:"workers"`
}

// State carries the durable run state written back after a successful run.
type State struct {
	// LastRun is the incremental watermark, RFC3339. Only files modified
	// strictly after it are candidates. The walker gates on modification
	// time: creation time is not portably available, and under the
	// append-only source assumption the two are the same.
	LastRun string `mapstructure:"last_run" json:"last_run"`
}

// Config is the full config document.
type Config struct {
	Paths    Paths    `mapstructure:"paths" json:"paths"`
	Settings Settings `mapstructure:"settings" json:"settings"`
	State    State    `mapstructure:"state" json:"state"`
}

// Default returns the configuration written by `wfm init`.
func Default() *Config {
	return &Config{
		Paths: Paths{
			WeChat:  "~/Documents/WeChat Files",
			Storage: "~/WeChatStorage",
		},
		Settings: Settings{
			MinFileSize:       1,
			PreserveOriginals: false,
			SkipPatterns:      []string{"pic_thumb", "Thumb", ".tmp"},
			TargetFolders:     []string{"FileStorage", "Image", "Video", "File"},
			Workers:           1,
		},
	}
}

// DefaultFile returns the default config document location.
func DefaultFile() string {
	return filepath.Join(util.DefaultConfigDir(), configFileName)
}

// Load reads the document at file (or the default location when file is
// empty) and returns the normalized config plus the manager used to write
// state back.
func Load(file string) (*Config, *config.Manager, error) {
	if file == "" {
		file = DefaultFile()
	}
	cm, err := config.New(file)
	if err != nil {
		return nil, nil, err
	}
	if !cm.Exists() {
		return nil, nil, errors.InvalidConfig("file", &notFoundError{file})
	}
	var c Config
	if err := cm.Load(&c); err != nil {
		return nil, nil, errors.InvalidConfig("document", err)
	}
	c.Normalize()
	return &c, cm, nil
}

type notFoundError struct{ file string }

func (e *notFoundError) Error() string {
	return e.file + " not found, run `wfm init` first"
}

// Normalize expands home-relative paths and applies defaults for fields
// the document omits.
func (c *Config) Normalize() {
	c.Paths.WeChat = absPath(util.ExpandHome(strings.TrimSpace(c.Paths.WeChat)))
	c.Paths.Storage = absPath(util.ExpandHome(strings.TrimSpace(c.Paths.Storage)))
	if len(c.Settings.TargetFolders) == 0 {
		c.Settings.TargetFolders = Default().Settings.TargetFolders
	}
	if c.Settings.MinFileSize < 0 {
		c.Settings.MinFileSize = 0
	}
	if c.Settings.Workers < 1 {
		c.Settings.Workers = 1
	}
}

// absPath resolves path against the working directory so archive symlink
// targets are always absolute.
func absPath(path string) string {
	if path == "" {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// Validate rejects configs the engine cannot run with.
func (c *Config) Validate() error {
	if c.Paths.WeChat == "" {
		return errors.InvalidConfig("paths.wechat", nil)
	}
	if c.Paths.Storage == "" {
		return errors.InvalidConfig("paths.storage", nil)
	}
	if c.Paths.WeChat == c.Paths.Storage {
		return errors.InvalidConfig("paths.storage", errSameRoot)
	}
	return nil
}

var errSameRoot = &sameRootError{}

type sameRootError struct{}

func (*sameRootError) Error() string { return "must differ from paths.wechat" }

// MinBytes converts the MB threshold to bytes.
func (c *Config) MinBytes() int64 {
	return int64(c.Settings.MinFileSize) * 1024 * 1024
}

// LastRunTime parses the watermark. ok is false when no successful run has
// been recorded yet, in which case every file is a candidate.
func (c *Config) LastRunTime() (time.Time, bool) {
	s := strings.TrimSpace(c.State.LastRun)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Sections flattens the config into top-level document keys for a full
// write of the document.
func (c *Config) Sections() map[string]any {
	return map[string]any{
		"paths": map[string]any{
			"wechat":  c.Paths.WeChat,
			"storage": c.Paths.Storage,
		},
		"settings": map[string]any{
			"min_file_size":      c.Settings.MinFileSize,
			"preserve_originals": c.Settings.PreserveOriginals,
			"skip_patterns":      c.Settings.SkipPatterns,
			"target_folders":     c.Settings.TargetFolders,
			"workers":            c.Settings.Workers,
		},
		"state": map[string]any{
			"last_run": c.State.LastRun,
		},
	}
}
