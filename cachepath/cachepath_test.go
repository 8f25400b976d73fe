package cachepath

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestDefaultRoot_PerPlatform(t *testing.T) {
	tests := []struct {
		name     string
		platform Platform
		vars     map[string]string
		want     string
	}{
		{"linux home", Linux, map[string]string{"HOME": "/home/ann"}, "/home/ann/.cache/bundle-descriptor"},
		{"linux xdg", Linux, map[string]string{"HOME": "/home/ann", "XDG_CACHE_HOME": "/var/cache/"}, "/var/cache/bundle-descriptor"},
		{"mac", MacOS, map[string]string{"HOME": "/Users/ann"}, "/Users/ann/Library/Caches/bundle-descriptor"},
		{"windows", Windows, map[string]string{"APPDATA": `C:\Users\ann\AppData\Roaming`}, `C:\Users\ann\AppData\Roaming\bundle-descriptor`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DefaultRoot(tt.platform, env(tt.vars))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultRoot_MissingEnv(t *testing.T) {
	_, err := DefaultRoot(Windows, env(nil))
	assert.ErrorContains(t, err, "APPDATA")

	_, err = DefaultRoot(MacOS, env(nil))
	assert.ErrorContains(t, err, "HOME")
}

func TestResolver_BundleCacheRootCreatesDirectory(t *testing.T) {
	r := &Resolver{Root: t.TempDir()}

	dir, err := r.BundleCacheRoot()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Root, "bundle_cache"), dir)
	assert.DirExists(t, dir)

	again, err := r.BundleCacheRoot()
	require.NoError(t, err)
	assert.Equal(t, dir, again)
}

func TestResolver_ConfigCacheRoot(t *testing.T) {
	r := &Resolver{Root: t.TempDir()}

	dir, err := r.ConfigCacheRoot("https://Studio.Example.com:8080/", 12, 3)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Root, "studio.example.com_8080", "p12c3", "config"), dir)
	assert.DirExists(t, dir)

	siteDir, err := r.ConfigCacheRoot("https://studio.example.com", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Root, "studio.example.com", "site", "config"), siteDir)
}

func TestResolver_ConfigBackupRootUsesFreshTimestamp(t *testing.T) {
	times := []time.Time{
		time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		time.Date(2026, 3, 4, 5, 6, 8, 0, time.UTC),
	}
	calls := 0
	r := &Resolver{Root: t.TempDir(), Now: func() time.Time {
		ts := times[calls]
		calls++
		return ts
	}}

	first, err := r.ConfigBackupRoot("studio.example.com", 1, 2)
	require.NoError(t, err)
	second, err := r.ConfigBackupRoot("studio.example.com", 1, 2)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(r.Root, "studio.example.com", "p1c2", "config.bak", "20260304_050607"), first)
	assert.Equal(t, "20260304_050608", filepath.Base(second))
	assert.DirExists(t, first)
	assert.DirExists(t, second)
}

func TestResolver_ErrorWhenRootIsAFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	r := &Resolver{Root: file}
	_, err := r.BundleCacheRoot()
	assert.ErrorContains(t, err, "failed to create cache directory")
}

func TestSanitizeSite(t *testing.T) {
	assert.Equal(t, "studio.example.com", SanitizeSite("https://studio.example.com/"))
	assert.Equal(t, "studio.example.com", SanitizeSite("studio.example.com"))
	assert.Equal(t, "unknown_site", SanitizeSite(""))
}

func TestParsePlatform(t *testing.T) {
	for in, want := range map[string]Platform{
		"linux2": Linux, "linux": Linux,
		"darwin": MacOS, "mac": MacOS,
		"win32": Windows, "Windows": Windows,
	} {
		got, err := ParsePlatform(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParsePlatform("plan9")
	assert.Error(t, err)
}

func TestPlatform_PathKey(t *testing.T) {
	assert.Equal(t, "linux_path", Linux.PathKey())
	assert.Equal(t, "mac_path", MacOS.PathKey())
	assert.Equal(t, "windows_path", Windows.PathKey())
}

func TestPlatform_Clean(t *testing.T) {
	tests := []struct {
		platform Platform
		in, want string
	}{
		{Linux, "/mnt/bundles/old/../tk-foo/", "/mnt/bundles/tk-foo"},
		{MacOS, "/Volumes//bundles/./tk-foo", "/Volumes/bundles/tk-foo"},
		{Linux, `z:\bundles`, `z:\bundles`},
		{Windows, `z:\bundles\old\..\tk-foo.v2`, `z:\bundles\tk-foo.v2`},
		{Windows, `z:/bundles/tk-foo/`, `z:\bundles\tk-foo`},
		{Windows, `z:\..\tk-foo`, `z:\tk-foo`},
		{Windows, `z:`, `z:`},
		{Windows, `\\server\share\apps\..\tk-foo`, `\\server\share\tk-foo`},
		{Windows, `bundles\.\tk-foo`, `bundles\tk-foo`},
	}
	for _, tt := range tests {
		t.Run(tt.platform.String()+" "+tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.platform.Clean(tt.in))
		})
	}
}

func TestPlatform_Base(t *testing.T) {
	assert.Equal(t, "tk-foo.v2", Linux.Base("/mnt/bundles/tk-foo.v2/"))
	assert.Equal(t, `z:\tk-foo`, Linux.Base(`z:\tk-foo`))
	assert.Equal(t, "tk-foo.v2", Windows.Base(`z:\bundles\tk-foo.v2`))
	assert.Equal(t, "tk-foo", Windows.Base(`\\server\share\tk-foo\`))
	assert.Equal(t, `\`, Windows.Base(`z:\`))
}
