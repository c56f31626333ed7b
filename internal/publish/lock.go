package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/ralt/aptpool/internal/models"
	"golang.org/x/sys/unix"
)

const lockPollInterval = 100 * time.Millisecond

// suiteLock is an exclusive advisory lock on one suite, held across
// processes for the duration of a publish or rollback
type suiteLock struct {
	file *os.File
}

// acquireLock takes the lock file at path, polling until timeout. A lock
// still held by someone else at the deadline is PublishInProgress.
func acquireLock(ctx context.Context, path, suite string, timeout time.Duration) (*suiteLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, &models.PoolError{Type: models.ErrFileOp, Key: path, Err: err}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, &models.PoolError{Type: models.ErrFileOp, Key: path, Err: err}
	}

	deadline := time.Now().Add(timeout)
	for {
		err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &suiteLock{file: file}, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			file.Close()
			return nil, &models.PoolError{Type: models.ErrFileOp, Key: path, Err: err}
		}
		if !time.Now().Before(deadline) {
			file.Close()
			return nil, models.NewError(models.ErrPublishInProgress, suite,
				"another publish holds %s (waited %s)", path, timeout)
		}

		select {
		case <-ctx.Done():
			file.Close()
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// release drops the lock
func (l *suiteLock) release() {
	if l != nil && l.file != nil {
		unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
		l.file.Close()
	}
}
