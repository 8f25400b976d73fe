package descriptor

import (
	"context"
	"errors"
	"fmt"
)

// ManualType addresses a bundle someone placed in the cache by hand.
const ManualType = "manual"

const manualCacheDir = "manual"

// ManualDescriptor is a bundle copied into the bundle cache by hand:
//
//	{"type": "manual", "name": "tk-foo", "version": "v1.0.0"}
//
// It lives at <root>/manual/<name>/<version> and cannot be downloaded.
type ManualDescriptor struct {
	*base
	name    string
	version string
}

func newManualDescriptor(cfg BackendConfig, cacheRoot string, loc Location) (Descriptor, error) {
	return NewManualDescriptor(cfg, cacheRoot, loc)
}

// NewManualDescriptor builds a manual descriptor; name and version are
// required.
func NewManualDescriptor(cfg BackendConfig, cacheRoot string, loc Location) (*ManualDescriptor, error) {
	d := &ManualDescriptor{
		base: newBase(ManualType, cacheRoot, loc, cfg),
	}
	d.self = d

	if err := validateKeys(loc, []string{"type", "name", "version"}, nil, d.logger); err != nil {
		return nil, err
	}

	d.name = stringValue(loc, "name")
	d.version = stringValue(loc, "version")
	if d.name == "" || d.version == "" {
		return nil, &ErrInvalidLocation{Location: loc, Reason: "name and version must not be empty"}
	}
	return d, nil
}

func (d *ManualDescriptor) SystemName() string {
	return validFilename(d.name)
}

func (d *ManualDescriptor) Version() string {
	return d.version
}

func (d *ManualDescriptor) Path() string {
	return d.cachePath(manualCacheDir, d.SystemName(), d.version)
}

func (d *ManualDescriptor) ExistsLocal() bool {
	return hasManifest(d.Path())
}

// DownloadLocal succeeds only if the bundle is already in the cache.
func (d *ManualDescriptor) DownloadLocal(context.Context) error {
	if d.ExistsLocal() {
		return nil
	}
	return fmt.Errorf("%s cannot be downloaded, place it at %s", d, d.Path())
}

// FindLatestVersion returns d. A pattern that d's version does not match
// yields ErrVersionNotFound.
func (d *ManualDescriptor) FindLatestVersion(_ context.Context, pattern string) (Descriptor, error) {
	if pattern == "" {
		return d, nil
	}
	if _, err := MatchVersionPattern([]string{d.version}, pattern); err != nil {
		var notFound *ErrVersionNotFound
		if errors.As(err, &notFound) {
			notFound.Source = d.String()
		}
		return nil, err
	}
	return d, nil
}

func (d *ManualDescriptor) String() string {
	return d.base.String()
}
