// Package cachepath derives the on-disk locations used by the bundle cache.
//
// Every Resolver method is deterministic for its inputs (apart from the
// backup timestamp) and makes sure the returned directory exists.
package cachepath

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// AppDir is the directory name used under the platform cache location.
const AppDir = "bundle-descriptor"

const (
	bundleCacheDir  = "bundle_cache"
	configDir       = "config"
	configBackupDir = "config.bak"

	backupTimestampLayout = "20060102_150405"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DefaultRoot returns the conventional cache root for platform p. getenv is
// used to look up HOME, XDG_CACHE_HOME and APPDATA; pass os.Getenv outside
// of tests. The directory is not created.
func DefaultRoot(p Platform, getenv func(string) string) (string, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	switch p {
	case Windows:
		appData := getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("cannot determine cache root for %s: APPDATA is not set", p)
		}
		return p.join(appData, AppDir), nil
	case MacOS:
		home := getenv("HOME")
		if home == "" {
			return "", fmt.Errorf("cannot determine cache root for %s: HOME is not set", p)
		}
		return p.join(home, "Library", "Caches", AppDir), nil
	default:
		if xdg := getenv("XDG_CACHE_HOME"); xdg != "" {
			return p.join(xdg, AppDir), nil
		}
		home := getenv("HOME")
		if home == "" {
			return "", fmt.Errorf("cannot determine cache root for %s: HOME is not set", p)
		}
		return p.join(home, ".cache", AppDir), nil
	}
}

// Resolver computes cache locations below Root.
type Resolver struct {
	Root string
	// Now supplies backup timestamps. Defaults to time.Now.
	Now func() time.Time
}

// NewResolver returns a Resolver for the current platform's default root.
func NewResolver() (*Resolver, error) {
	root, err := DefaultRoot(CurrentPlatform(), os.Getenv)
	if err != nil {
		return nil, err
	}
	return &Resolver{Root: root}, nil
}

// BundleCacheRoot returns the global bundle cache, <root>/bundle_cache.
func (r *Resolver) BundleCacheRoot() (string, error) {
	return ensure(filepath.Join(r.Root, bundleCacheDir))
}

// ConfigCacheRoot returns the cache location of a pipeline configuration.
func (r *Resolver) ConfigCacheRoot(siteURL string, projectID, pipelineConfigID int) (string, error) {
	return ensure(filepath.Join(r.pipelineConfigRoot(siteURL, projectID, pipelineConfigID), configDir))
}

// ConfigBackupRoot returns a fresh backup location for a pipeline
// configuration. The timestamp has second resolution, so two calls within
// the same second return the same directory.
func (r *Resolver) ConfigBackupRoot(siteURL string, projectID, pipelineConfigID int) (string, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	stamp := now().Format(backupTimestampLayout)
	return ensure(filepath.Join(r.pipelineConfigRoot(siteURL, projectID, pipelineConfigID), configBackupDir, stamp))
}

func (r *Resolver) pipelineConfigRoot(siteURL string, projectID, pipelineConfigID int) string {
	scope := "site"
	if projectID != 0 {
		scope = fmt.Sprintf("p%dc%d", projectID, pipelineConfigID)
	}
	return filepath.Join(r.Root, SanitizeSite(siteURL), scope)
}

// SanitizeSite reduces a site URL to a filesystem-safe directory name,
// e.g. "https://studio.example.com:8080/" becomes "studio.example.com_8080".
func SanitizeSite(siteURL string) string {
	s := strings.TrimSpace(siteURL)
	if u, err := url.Parse(s); err == nil && u.Host != "" {
		s = u.Host
	}
	s = strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(s), "_"), "_")
	if s == "" {
		return "unknown_site"
	}
	return s
}

func ensure(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return dir, nil
}
