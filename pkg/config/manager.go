package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Manager wraps a single YAML config document. All reads and key
// write-backs for the document go through one Manager so concurrent
// updates never interleave partial writes.
type Manager struct {
	// Path is the directory containing the config document.
	Path string
	// File is the full path of the config document.
	File string

	mu sync.Mutex
	vp *viper.Viper
}

// New prepares a Manager for the document at file. The file itself is not
// required to exist yet.
func New(file string) (*Manager, error) {
	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	vp := viper.New()
	vp.SetConfigFile(file)
	vp.SetConfigType("yaml")

	m := &Manager{Path: dir, File: file, vp: vp}
	if m.Exists() {
		if err := vp.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return m, nil
}

// Exists reports whether the config document is present on disk.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.File)
	return err == nil
}

// Load unmarshals the whole document into out.
func (m *Manager) Load(out any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vp.Unmarshal(out)
}

// SetConfig sets a single key (dotted paths allowed) and rewrites the
// document.
func (m *Manager) SetConfig(key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vp.Set(key, value)
	if err := m.vp.WriteConfigAs(m.File); err != nil {
		return fmt.Errorf("write config %s: %w", m.File, err)
	}
	return nil
}

// SetAll replaces multiple keys in one write.
func (m *Manager) SetAll(values map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.vp.Set(k, v)
	}
	if err := m.vp.WriteConfigAs(m.File); err != nil {
		return fmt.Errorf("write config %s: %w", m.File, err)
	}
	return nil
}
