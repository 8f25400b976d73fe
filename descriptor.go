// Package descriptor resolves bundle locations (local paths, uploaded
// attachments, git tags) to descriptors that know where the bundle lives
// on disk, how to fetch it and how to read its metadata.
//
// Descriptors are obtained from a Registry, which guarantees one instance
// per (cache root, location) pair:
//
//	reg, _ := descriptor.NewRegistry(descriptor.WithHTTPStore(siteURL, token, nil))
//	d, err := reg.Resolve(bundleCacheRoot, descriptor.Location{
//		"type": "uploaded_attachment", "name": "primary", "project_id": 12, "attachment_id": 456,
//	})
//	manifest, err := d.Manifest(ctx)
package descriptor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Descriptor describes one version of a bundle.
type Descriptor interface {
	// Location returns a copy of the location the descriptor was built from.
	Location() Location

	// SystemName is a short, filesystem-safe name derived from the location.
	SystemName() string

	// Version is backend defined; unversioned backends return UnversionedSentinel.
	Version() string

	// Path is where the content lives once local. It does not imply existence.
	Path() string

	// ExistsLocal reports whether the content is present at Path.
	ExistsLocal() bool

	// EnsureLocal downloads the content unless it already exists locally.
	EnsureLocal(ctx context.Context) error

	// DownloadLocal fetches the content into Path.
	DownloadLocal(ctx context.Context) error

	// Manifest returns the parsed metadata file, fetching content first
	// if needed. The result is loaded once and must be treated as read-only.
	Manifest(ctx context.Context) (Manifest, error)

	// DeprecationStatus reports whether the bundle is deprecated and why.
	DeprecationStatus() (bool, string)

	// Changelog returns a summary and URL, both empty when unknown.
	Changelog() (summary, url string)

	IsDeveloper() bool
	IsImmutable() bool

	// FindLatestVersion returns the best matching descriptor for the same
	// bundle. An empty pattern means the latest version overall; patterns
	// look like "v1.2.3", "v1.2.x" or "v1.x.x".
	FindLatestVersion(ctx context.Context, pattern string) (Descriptor, error)

	// CopyTo copies the bundle content into target.
	CopyTo(ctx context.Context, target string) error
}

// UnversionedSentinel is the version reported by backends without versions.
const UnversionedSentinel = "v0.0.0"

// content is what base needs from the concrete backend.
type content interface {
	SystemName() string
	Version() string
	Path() string
	ExistsLocal() bool
	DownloadLocal(ctx context.Context) error
}

// base implements the parts of Descriptor shared by all backends.
type base struct {
	kind      string
	cacheRoot string
	location  Location
	logger    hclog.Logger
	config    BackendConfig
	self      content

	manifestMu sync.Mutex
	manifest   Manifest
}

func newBase(kind, cacheRoot string, loc Location, cfg BackendConfig) *base {
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return &base{
		kind:      kind,
		cacheRoot: cacheRoot,
		location:  loc,
		logger:    cfg.Logger.Named(kind),
		config:    cfg,
	}
}

// primaryPath joins elem onto the cache root. Downloads always land here.
func (b *base) primaryPath(elem ...string) string {
	return filepath.Join(append([]string{b.cacheRoot}, elem...)...)
}

// cachePath returns the first of the primary and fallback roots, joined
// with elem, that holds a metadata file. If none does it returns the
// primary location.
func (b *base) cachePath(elem ...string) string {
	primary := b.primaryPath(elem...)
	if len(b.config.FallbackRoots) == 0 || hasManifest(primary) {
		return primary
	}
	for _, root := range b.config.FallbackRoots {
		p := filepath.Join(append([]string{root}, elem...)...)
		if hasManifest(p) {
			return p
		}
	}
	return primary
}

func (b *base) Location() Location {
	return b.location.Clone()
}

func (b *base) DeprecationStatus() (bool, string) {
	return false, ""
}

func (b *base) Changelog() (string, string) {
	return "", ""
}

func (b *base) IsDeveloper() bool {
	return false
}

func (b *base) IsImmutable() bool {
	return true
}

func (b *base) EnsureLocal(ctx context.Context) error {
	if b.self.ExistsLocal() {
		return nil
	}
	b.logger.Debug("downloading bundle to the local cache", "descriptor", b.String(), "path", b.self.Path())
	return b.self.DownloadLocal(ctx)
}

func (b *base) Manifest(ctx context.Context) (Manifest, error) {
	b.manifestMu.Lock()
	defer b.manifestMu.Unlock()

	if b.manifest != nil {
		return b.manifest, nil
	}

	if err := b.EnsureLocal(ctx); err != nil {
		return nil, err
	}

	m, err := LoadManifest(filepath.Join(b.self.Path(), ManifestFile))
	if err != nil {
		return nil, err
	}

	b.manifest = m
	return m, nil
}

func (b *base) CopyTo(ctx context.Context, target string) error {
	if err := b.EnsureLocal(ctx); err != nil {
		return err
	}
	b.logger.Debug("copying bundle", "descriptor", b.String(), "target", target)
	if err := os.CopyFS(target, os.DirFS(b.self.Path())); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", b.String(), target, err)
	}
	return nil
}

func (b *base) String() string {
	return fmt.Sprintf("<%s %s %s>", b.kind, b.self.SystemName(), b.self.Version())
}

func hasManifest(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ManifestFile))
	return err == nil && !info.IsDir()
}
