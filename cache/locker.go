package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryInterval = 100 * time.Millisecond

// Locker serialises installs of the same cache entry. Lock files live in
// one flat directory and are named after the entry, so
// "git/tk-foo.git/v1.2.3" is guarded by "git-tk-foo.git-v1.2.3.lock".
type Locker struct {
	locksDir string
}

// NewLocker creates a Locker keeping its lock files in locksDir.
func NewLocker(locksDir string) *Locker {
	return &Locker{locksDir: locksDir}
}

var keyFlattener = strings.NewReplacer("/", "-", "\\", "-", ":", "-")

// flatKey turns a cache-relative key into a single path segment.
func flatKey(key string) string {
	return keyFlattener.Replace(key)
}

func (l *Locker) lockPath(key string) string {
	return filepath.Join(l.locksDir, flatKey(key)+".lock")
}

// AcquireExclusive blocks until it holds the lock for the cache entry key,
// polling every lockRetryInterval, or ctx is done. The returned function
// releases the lock.
func (l *Locker) AcquireExclusive(ctx context.Context, key string) (unlock func() error, err error) {
	if err := os.MkdirAll(l.locksDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory %s: %w", l.locksDir, err)
	}

	fl := flock.New(l.lockPath(key))
	locked, err := fl.TryLockContext(ctx, lockRetryInterval)
	switch {
	case err != nil:
		return nil, fmt.Errorf("failed to lock cache entry %s: %w", key, err)
	case !locked:
		return nil, fmt.Errorf("failed to lock cache entry %s: %w", key, ctx.Err())
	}
	return fl.Unlock, nil
}
