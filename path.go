package descriptor

import (
	"context"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/infracollect/bundle-descriptor/cachepath"
)

const (
	// PathType addresses a bundle that lives at a user supplied path.
	PathType = "path"
	// DevType is a path bundle flagged for development.
	DevType = "dev"
)

// PathDescriptor represents content already on disk; it is never
// downloaded or unpacked:
//
//	{"type": "path", "path": "/path/to/app"}
//	{"type": "path", "path": "/path/to/app", "name": "my-app"}
//	{"type": "path", "linux_path": "/mnt/app", "mac_path": "/Volumes/app", "windows_path": `z:\app`}
//
// Without a name the final path component, minus extension, is used.
type PathDescriptor struct {
	*base
	path      string
	name      string
	developer bool
	platform  cachepath.Platform
}

func newPathFactory(developer bool) Factory {
	return func(cfg BackendConfig, cacheRoot string, loc Location) (Descriptor, error) {
		return NewPathDescriptor(cfg, cacheRoot, loc, developer)
	}
}

// NewPathDescriptor builds a path descriptor, resolving the path for
// cfg.Platform. Environment variables in the path are expanded, unset ones
// are left as written, and the result is cleaned with the rules of
// cfg.Platform.
func NewPathDescriptor(cfg BackendConfig, cacheRoot string, loc Location, developer bool) (*PathDescriptor, error) {
	kind := PathType
	if developer {
		kind = DevType
	}

	d := &PathDescriptor{
		base:      newBase(kind, cacheRoot, loc, cfg),
		developer: developer,
		platform:  cfg.Platform,
	}
	d.self = d

	if err := validateKeys(loc,
		[]string{"type"},
		[]string{"name", "version", "path", "linux_path", "mac_path", "windows_path"},
		d.logger,
	); err != nil {
		return nil, err
	}

	raw := stringValue(loc, "path")
	if raw == "" {
		raw = stringValue(loc, cfg.Platform.PathKey())
	}
	if raw == "" {
		return nil, &ErrInvalidLocation{
			Location: loc,
			Reason:   "could not find a path or a " + cfg.Platform.PathKey() + " entry",
		}
	}

	d.path = cfg.Platform.Clean(expandEnv(raw))

	d.name = stringValue(loc, "name")
	if d.name == "" {
		bn := cfg.Platform.Base(d.path)
		d.name = strings.TrimSuffix(bn, path.Ext(bn))
	}

	return d, nil
}

func (d *PathDescriptor) SystemName() string {
	return d.name
}

// Version always returns UnversionedSentinel.
func (d *PathDescriptor) Version() string {
	return UnversionedSentinel
}

func (d *PathDescriptor) Path() string {
	return d.path
}

func (d *PathDescriptor) ExistsLocal() bool {
	info, err := os.Stat(d.path)
	return err == nil && info.IsDir()
}

// DownloadLocal does nothing; the content is local by definition.
func (d *PathDescriptor) DownloadLocal(context.Context) error {
	return nil
}

func (d *PathDescriptor) IsImmutable() bool {
	return false
}

func (d *PathDescriptor) IsDeveloper() bool {
	return d.developer
}

// FindLatestVersion returns d for any pattern: a path has one version.
func (d *PathDescriptor) FindLatestVersion(context.Context, string) (Descriptor, error) {
	return d, nil
}

// PlatformPath returns the path on platform p. For the platform the
// descriptor was resolved for this is Path; for others it is the
// platform-specific value cleaned for p, and false if the location has
// none. Environment variables are not expanded for other platforms.
func (d *PathDescriptor) PlatformPath(p cachepath.Platform) (string, bool) {
	if p == d.platform {
		return d.path, true
	}
	v := stringValue(d.location, p.PathKey())
	if v == "" {
		return "", false
	}
	return p.Clean(v), true
}

var envVarRef = regexp.MustCompile(`\$(\w+|\{[^}]*\})`)

// expandEnv replaces $VAR and ${VAR} with their values. References to
// unset variables are kept verbatim.
func expandEnv(s string) string {
	return envVarRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := strings.Trim(ref[1:], "{}")
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return ref
	})
}

func (d *PathDescriptor) String() string {
	return "<" + d.kind + " " + d.path + ">"
}
