package errors

import (
	"errors"
	"fmt"
)

// ConfigError marks a missing or invalid configuration. Fatal before any
// scanning starts.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("config: invalid %s", e.Field)
	}
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func InvalidConfig(field string, err error) error {
	return &ConfigError{Field: field, Err: err}
}

// AccessError marks an unreachable source or storage root. Fatal: the run
// aborts and the watermark is not committed.
type AccessError struct {
	Root string
	Err  error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("access %s: %v", e.Root, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

func AccessDenied(root string, err error) error {
	return &AccessError{Root: root, Err: err}
}

// FileIOError marks a single-file read/copy/move/link failure. Recoverable:
// the walker logs it and continues, and the file stays eligible for the
// next run because the watermark has not advanced past it.
type FileIOError struct {
	Path string
	Op   string
	Err  error
}

func (e *FileIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileIOError) Unwrap() error { return e.Err }

func FileIO(op, path string, err error) error {
	return &FileIOError{Op: op, Path: path, Err: err}
}

// IsFileIO reports whether err is (or wraps) a FileIOError.
func IsFileIO(err error) bool {
	var fe *FileIOError
	return errors.As(err, &fe)
}

// IsFatal reports whether err should abort a run without committing the
// watermark.
func IsFatal(err error) bool {
	var ce *ConfigError
	var ae *AccessError
	return errors.As(err, &ce) || errors.As(err, &ae)
}
