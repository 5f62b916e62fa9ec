package fsx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrLockTimeout is returned when a sidecar lock could not be acquired in time.
var ErrLockTimeout = errors.New("file lock timeout")

const (
	lockTimeout    = 30 * time.Second
	lockRetry      = 10 * time.Millisecond
	lockStaleAfter = 2 * time.Minute
)

// AppendLineLocked appends one newline-terminated record to path while holding
// a cross-process "<path>.lock" sidecar. If the file does not exist yet, header
// (when non-nil) is written first, inside the same lock.
func AppendLineLocked(path string, header, line []byte, mode os.FileMode) error {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create append directory: %w", err)
	}

	payload := make([]byte, 0, len(line)+1)
	payload = append(payload, line...)
	payload = append(payload, '\n')

	err := WithFileLock(path, func() error {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, mode)
		if err != nil {
			return fmt.Errorf("open append file: %w", err)
		}
		defer f.Close()

		if header != nil {
			info, err := f.Stat()
			if err != nil {
				return fmt.Errorf("stat append file: %w", err)
			}
			if info.Size() == 0 {
				if _, err := f.Write(append(append([]byte{}, header...), '\n')); err != nil {
					return fmt.Errorf("write header: %w", err)
				}
			}
		}
		if _, err := f.Write(payload); err != nil {
			return fmt.Errorf("append line: %w", err)
		}
		if err := f.Sync(); err != nil {
			return fmt.Errorf("sync append file: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	syncDir(filepath.Dir(path))
	return nil
}

// WithFileLock runs fn while holding "<path>.lock". A lock file older than
// two minutes is considered abandoned and removed.
func WithFileLock(path string, fn func() error) error {
	lockPath := path + ".lock"
	start := time.Now()
	for {
		lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_ = lock.Close()
			defer os.Remove(lockPath)
			return fn()
		}
		if !lockContended(err, lockPath) {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if lockIsStale(lockPath, time.Now()) {
			_ = os.Remove(lockPath)
			continue
		}
		if time.Since(start) >= lockTimeout {
			return fmt.Errorf("%s: %w", lockPath, ErrLockTimeout)
		}
		time.Sleep(lockRetry)
	}
}

func lockContended(err error, lockPath string) bool {
	if os.IsExist(err) {
		return true
	}
	if !os.IsPermission(err) {
		return false
	}
	// Windows reports a pending delete as a permission error.
	_, statErr := os.Stat(lockPath)
	return statErr == nil
}

func lockIsStale(lockPath string, now time.Time) bool {
	info, err := os.Stat(lockPath)
	if err != nil {
		return false
	}
	return now.Sub(info.ModTime()) > lockStaleAfter
}
