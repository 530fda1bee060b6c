package bookworm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// ErrLockTimeout indicates the cache lock could not be acquired in time
var ErrLockTimeout = errors.New("lock acquisition timed out")

// fileLock is an exclusive flock(2) lock shared between processes writing
// the same cache file. The kernel drops it if the holder dies.
type fileLock struct {
	path string
	file *os.File
}

func newFileLock(path string) *fileLock {
	return &fileLock{path: path}
}

// tryLock acquires the lock without waiting. It reports false, with no
// error, when another process holds it.
func (l *fileLock) tryLock() (bool, error) {
	if err := l.open(); err != nil {
		return false, err
	}
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err == nil {
		return true, nil
	}
	l.release()
	if errors.Is(err, syscall.EWOULDBLOCK) {
		return false, nil
	}
	return false, fmt.Errorf("flock failed: %w", err)
}

// lock polls with backoff until the lock is held, the timeout passes or ctx
// is done.
func (l *fileLock) lock(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	wait := 5 * time.Millisecond

	for {
		ok, err := l.tryLock()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			wait = min(wait*2, 250*time.Millisecond)
		}
	}
}

// unlock releases the lock. Unlocking an unheld lock is a no-op.
func (l *fileLock) unlock() error {
	if l.file == nil {
		return nil
	}
	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("flock unlock failed: %w", err)
	}
	return closeErr
}

func (l *fileLock) held() bool {
	return l.file != nil
}

func (l *fileLock) open() error {
	if l.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	l.file = f
	return nil
}

func (l *fileLock) release() {
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}
