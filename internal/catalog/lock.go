package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	lockTimeout   = 5 * time.Second // Max time to wait for lock
	lockRetryWait = 500 * time.Millisecond
)

// Lock is a PID lock file guarding an on-disk index directory against
// concurrent rebuilds by other processes. A lock left behind by a dead
// process is removed on the next attempt.
type Lock struct {
	Path      string
	Timeout   time.Duration
	RetryWait time.Duration

	logger *slog.Logger
}

// NewLock returns a lock on path with the default timeouts.
func NewLock(path string, logger *slog.Logger) *Lock {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lock{Path: path, Timeout: lockTimeout, RetryWait: lockRetryWait, logger: logger}
}

// isProcessRunning is implemented in platform-specific files:
// - lock_unix.go for Unix/Linux/macOS
// - lock_windows.go for Windows

// cleanStale removes the lock file if the owning process is dead
func (l *Lock) cleanStale() error {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No lock file, nothing to clean
		}
		return fmt.Errorf("failed to read lock file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		l.logger.Warn("corrupted lock file (invalid PID), removing", "path", l.Path)
		return removeIfExists(l.Path)
	}

	if isProcessRunning(pid) {
		return fmt.Errorf("lock held by running process %d", pid)
	}

	l.logger.Info("stale lock detected, cleaning", "path", l.Path, "pid", pid)
	return removeIfExists(l.Path)
}

// Acquire takes the lock, waiting up to Timeout for another process to
// release it. Acquiring a lock this process already holds succeeds.
func (l *Lock) Acquire(ctx context.Context) error {
	ourPID := os.Getpid()

	// Check if we already have the lock
	if data, err := os.ReadFile(l.Path); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && pid == ourPID {
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(l.Path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	startTime := time.Now()
	for {
		err := l.cleanStale()
		if err == nil {
			f, createErr := os.OpenFile(l.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
			if createErr == nil {
				_, writeErr := f.WriteString(strconv.Itoa(ourPID))
				closeErr := f.Close()
				if writeErr != nil || closeErr != nil {
					os.Remove(l.Path)
					return fmt.Errorf("failed to write lock file: %w", errors.Join(writeErr, closeErr))
				}
				l.logger.Debug("index lock acquired", "path", l.Path, "pid", ourPID)
				return nil
			}
			if !os.IsExist(createErr) {
				return fmt.Errorf("failed to create lock file: %w", createErr)
			}
			// Another process won the race
			err = fmt.Errorf("lock file created concurrently")
		}

		elapsed := time.Since(startTime)
		if elapsed >= l.Timeout {
			return fmt.Errorf("timeout waiting for index lock after %v: %w", elapsed.Round(time.Millisecond), err)
		}

		l.logger.Info("index locked by another process, waiting", "path", l.Path, "elapsed", elapsed.Round(100*time.Millisecond))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.RetryWait):
		}
	}
}

// Release removes the lock file if this process owns it.
func (l *Lock) Release() error {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Lock already removed
		}
		return fmt.Errorf("failed to read lock file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err == nil && pid != os.Getpid() {
		l.logger.Warn("lock file contains different PID, not removing", "path", l.Path, "pid", pid, "own_pid", os.Getpid())
		return nil
	}

	if err := removeIfExists(l.Path); err != nil {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
