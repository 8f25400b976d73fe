package descriptor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the metadata file at the root of every bundle.
const ManifestFile = "info.yml"

const defaultDescription = "No description available."

// Manifest is the parsed content of a bundle's info.yml.
type Manifest map[string]any

// LoadManifest reads and parses the metadata file at path. An empty file
// yields an empty manifest.
func LoadManifest(path string) (Manifest, error) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &ErrManifestMissing{Path: path}
	}
	if err != nil {
		return nil, &ErrManifestInvalid{Path: path, Err: err}
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ErrManifestInvalid{Path: path, Err: err}
	}

	switch v := doc.(type) {
	case nil:
		return Manifest{}, nil
	case map[string]any:
		return Manifest(v), nil
	default:
		return nil, &ErrManifestInvalid{Path: path, Err: fmt.Errorf("expected a mapping at the top level, got %T", doc)}
	}
}

// String returns a top-level string value, or "" if absent or not a string.
func (m Manifest) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// DisplayName returns display_name, falling back to fallback.
func (m Manifest) DisplayName(fallback string) string {
	if s := m.String("display_name"); s != "" {
		return s
	}
	return fallback
}

func (m Manifest) Description() string {
	if s := m.String("description"); s != "" {
		return s
	}
	return defaultDescription
}

func (m Manifest) SupportURL() string {
	return m.String("support_url")
}

func (m Manifest) DocumentationURL() string {
	return m.String("documentation_url")
}

// VersionConstraints returns the minimum versions a bundle declares,
// keyed min_sg, min_core and min_engine. Absent keys mean no constraint.
func (m Manifest) VersionConstraints() map[string]string {
	out := make(map[string]string)
	for field, key := range map[string]string{
		"requires_shotgun_version": "min_sg",
		"requires_core_version":    "min_core",
		"requires_engine_version":  "min_engine",
	} {
		if v, ok := m[field]; ok && v != nil {
			out[key] = fmt.Sprint(v)
		}
	}
	return out
}
