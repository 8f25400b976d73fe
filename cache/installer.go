// Package cache places fetched bundle archives into the on-disk bundle cache.
//
// Content is unpacked into a private staging directory and renamed into its
// final location only once it is complete, so readers never see a partially
// extracted bundle. A file lock serialises installs of the same target
// across processes.
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// CompleteFunc reports whether dir holds a fully installed bundle.
type CompleteFunc func(dir string) bool

// FetchFunc produces an archive to install. cleanup may be nil; when set it
// is called once the archive has been unpacked (or the install failed).
type FetchFunc func(ctx context.Context) (archivePath string, cleanup func(), err error)

// ErrIncomplete is returned when an unpacked archive does not satisfy the
// completion check.
var ErrIncomplete = errors.New("unpacked archive is incomplete")

// Installer installs archives below a base directory.
type Installer struct {
	baseDir  string
	locker   *Locker
	unpacker Unpacker
}

// NewInstaller creates an Installer for baseDir. A nil unpacker defaults to
// ZipUnpacker.
func NewInstaller(baseDir string, unpacker Unpacker) *Installer {
	if unpacker == nil {
		unpacker = ZipUnpacker{}
	}
	return &Installer{
		baseDir:  baseDir,
		locker:   NewLocker(filepath.Join(baseDir, ".locks")),
		unpacker: unpacker,
	}
}

// Install makes target complete. If complete(target) already holds, fetch
// is not called. Otherwise fetch is invoked under an exclusive lock and
// its archive is unpacked and moved into target. Reports whether fetch ran.
//
// This method is safe for concurrent use across multiple processes.
func (i *Installer) Install(ctx context.Context, target string, complete CompleteFunc, fetch FetchFunc) (bool, error) {
	if complete(target) {
		return false, nil
	}

	key, err := filepath.Rel(i.baseDir, target)
	if err != nil {
		key = target
	}

	unlock, err := i.locker.AcquireExclusive(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to acquire cache lock: %w", err)
	}
	defer unlock()

	// Re-check - another process may have populated it while we waited for the lock
	if complete(target) {
		return false, nil
	}

	archivePath, cleanup, err := fetch(ctx)
	if err != nil {
		return true, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	tmpDir, err := i.stagingDir(key)
	if err != nil {
		return true, fmt.Errorf("failed to create temp directory: %w", err)
	}

	if err := i.unpacker.Unpack(archivePath, tmpDir); err != nil {
		os.RemoveAll(tmpDir)
		return true, fmt.Errorf("failed to unpack %s: %w", archivePath, err)
	}

	if !complete(tmpDir) {
		os.RemoveAll(tmpDir)
		return true, fmt.Errorf("%s: %w", archivePath, ErrIncomplete)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		os.RemoveAll(tmpDir)
		return true, fmt.Errorf("failed to create cache directory: %w", err)
	}

	// Anything at target is left over from an interrupted install.
	if err := os.RemoveAll(target); err != nil {
		os.RemoveAll(tmpDir)
		return true, fmt.Errorf("failed to remove incomplete bundle at %s: %w", target, err)
	}

	if err := os.Rename(tmpDir, target); err != nil {
		os.RemoveAll(tmpDir)
		return true, fmt.Errorf("failed to move bundle into cache: %w", err)
	}

	return true, nil
}

// stagingDir creates an empty directory for unpacking the bundle at key,
// e.g. <base>/.tmp/uploaded-p12_primary-v456.3f9a1c2e. Leftovers of
// interrupted installs of the same key are easy to spot by name.
func (i *Installer) stagingDir(key string) (string, error) {
	stagingRoot := filepath.Join(i.baseDir, ".tmp")
	if err := os.MkdirAll(stagingRoot, 0755); err != nil {
		return "", err
	}
	return os.MkdirTemp(stagingRoot, flatKey(key)+".")
}
