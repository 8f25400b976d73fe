package descriptor

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/infracollect/bundle-descriptor/store"
)

func uploadedLoc(attachmentID int) Location {
	return Location{"type": UploadedType, "name": "primary", "project_id": 12, "attachment_id": attachmentID}
}

func newTestRegistry(t *testing.T, s store.Store) (*Registry, string) {
	t.Helper()
	tmp := t.TempDir()
	reg, err := NewRegistry(WithStore(s), WithRetryDelay(0), WithTempDir(tmp))
	require.NoError(t, err)
	return reg, tmp
}

func TestUploadedDescriptor_Naming(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	root := t.TempDir()

	d, err := reg.Resolve(root, Location{"type": UploadedType, "name": "my config", "project_id": 12, "attachment_id": 456})
	require.NoError(t, err)

	assert.Equal(t, "p12_my_config", d.SystemName())
	assert.Equal(t, "v456", d.Version())
	assert.Equal(t, filepath.Join(root, "uploaded", "p12_my_config", "v456"), d.Path())
	assert.True(t, d.IsImmutable())
	assert.False(t, d.IsDeveloper())
	assert.False(t, d.ExistsLocal())
	assert.Equal(t, "<uploaded_attachment p12_my_config v456>", d.(*UploadedDescriptor).String())
}

func TestUploadedDescriptor_InvalidLocation(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	root := t.TempDir()

	tests := []struct {
		name string
		loc  Location
	}{
		{"missing name", Location{"type": UploadedType, "project_id": 1}},
		{"missing project", Location{"type": UploadedType, "name": "primary"}},
		{"non numeric project", Location{"type": UploadedType, "name": "primary", "project_id": "twelve"}},
		{"empty name", Location{"type": UploadedType, "name": "", "project_id": 1}},
		{"nil project", Location{"type": UploadedType, "name": "primary", "project_id": nil}},
		{"nil name", Location{"type": UploadedType, "name": nil, "project_id": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Resolve(root, tt.loc)
			var invalid *ErrInvalidLocation
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestUploadedDescriptor_EnsureLocalDownloadsOnce(t *testing.T) {
	fs := &fakeStore{attachments: map[int][]byte{
		456: zipBytes(t, map[string]string{"info.yml": "display_name: Primary\n", "env/project.yml": "engines: {}\n"}),
	}}
	reg, _ := newTestRegistry(t, fs)
	d, err := reg.Resolve(t.TempDir(), uploadedLoc(456))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, d.EnsureLocal(ctx))
	require.NoError(t, d.EnsureLocal(ctx))

	assert.Equal(t, 1, fs.downloadCount())
	assert.True(t, d.ExistsLocal())
	assert.FileExists(t, filepath.Join(d.Path(), "env", "project.yml"))
}

func TestUploadedDescriptor_RetriesOnce(t *testing.T) {
	fs := &fakeStore{
		failures:    1,
		attachments: map[int][]byte{456: zipBytes(t, map[string]string{"info.yml": "{}\n"})},
	}
	reg, _ := newTestRegistry(t, fs)
	d, err := reg.Resolve(t.TempDir(), uploadedLoc(456))
	require.NoError(t, err)

	require.NoError(t, d.DownloadLocal(context.Background()))
	assert.Equal(t, 2, fs.downloadCount())
	assert.True(t, d.ExistsLocal())
}

func TestUploadedDescriptor_FailsAfterTwoAttempts(t *testing.T) {
	fs := &fakeStore{failures: 5}
	reg, _ := newTestRegistry(t, fs)
	d, err := reg.Resolve(t.TempDir(), uploadedLoc(456))
	require.NoError(t, err)

	err = d.DownloadLocal(context.Background())
	var fetchErr *ErrFetchFailed
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 2, fetchErr.Attempts)
	assert.Equal(t, 456, fetchErr.AttachmentID)
	assert.Equal(t, 2, fs.downloadCount())
	assert.False(t, d.ExistsLocal())
}

func TestUploadedDescriptor_CancelledContextStopsRetry(t *testing.T) {
	fs := &fakeStore{failures: 5}
	reg, _ := newTestRegistry(t, fs)
	d, err := reg.Resolve(t.TempDir(), uploadedLoc(456))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, d.DownloadLocal(ctx))
	assert.LessOrEqual(t, fs.downloadCount(), 1)
}

func TestUploadedDescriptor_DownloadNeedsStoreAndAttachment(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	d, err := reg.Resolve(t.TempDir(), uploadedLoc(456))
	require.NoError(t, err)
	assert.ErrorIs(t, d.DownloadLocal(context.Background()), errNoStore)

	reg, _ = newTestRegistry(t, &fakeStore{})
	d, err = reg.Resolve(t.TempDir(), Location{"type": UploadedType, "name": "primary", "project_id": 12})
	require.NoError(t, err)
	var invalid *ErrInvalidLocation
	assert.ErrorAs(t, d.DownloadLocal(context.Background()), &invalid)
}

func TestUploadedDescriptor_ManifestLoadedOnce(t *testing.T) {
	fs := &fakeStore{attachments: map[int][]byte{
		456: zipBytes(t, map[string]string{"info.yml": "display_name: Primary\ndescription: Main config\n"}),
	}}
	reg, _ := newTestRegistry(t, fs)
	d, err := reg.Resolve(t.TempDir(), uploadedLoc(456))
	require.NoError(t, err)
	ctx := context.Background()

	first, err := d.Manifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Main config", first.Description())

	require.NoError(t, os.Remove(filepath.Join(d.Path(), ManifestFile)))

	second, err := d.Manifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fs.downloadCount())
}

func TestUploadedDescriptor_ConcurrentManifestFillsOnce(t *testing.T) {
	fs := &fakeStore{attachments: map[int][]byte{
		456: zipBytes(t, map[string]string{"info.yml": "display_name: Primary\n"}),
	}}
	reg, _ := newTestRegistry(t, fs)
	d, err := reg.Resolve(t.TempDir(), uploadedLoc(456))
	require.NoError(t, err)

	const callers = 16
	results := make([]Manifest, callers)
	var g errgroup.Group
	for i := range callers {
		g.Go(func() error {
			m, err := d.Manifest(context.Background())
			results[i] = m
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, fs.downloadCount())
	for _, m := range results {
		assert.Equal(t, "Primary", m.DisplayName(""))
		assert.Equal(t, reflect.ValueOf(results[0]).Pointer(), reflect.ValueOf(m).Pointer())
	}
}

func TestUploadedDescriptor_RejectsArchiveWithoutManifest(t *testing.T) {
	fs := &fakeStore{attachments: map[int][]byte{456: zipBytes(t, map[string]string{"README": "hi\n"})}}
	reg, _ := newTestRegistry(t, fs)
	d, err := reg.Resolve(t.TempDir(), uploadedLoc(456))
	require.NoError(t, err)

	assert.Error(t, d.DownloadLocal(context.Background()))
	assert.NoDirExists(t, d.Path())
}

func TestUploadedDescriptor_LeavesArchiveInTempDir(t *testing.T) {
	fs := &fakeStore{attachments: map[int][]byte{456: zipBytes(t, map[string]string{"info.yml": "{}\n"})}}
	reg, tmp := newTestRegistry(t, fs)
	d, err := reg.Resolve(t.TempDir(), uploadedLoc(456))
	require.NoError(t, err)

	require.NoError(t, d.DownloadLocal(context.Background()))

	matches, err := filepath.Glob(filepath.Join(tmp, "*_bundle.zip"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestUploadedDescriptor_CopyTo(t *testing.T) {
	fs := &fakeStore{attachments: map[int][]byte{456: zipBytes(t, map[string]string{"info.yml": "{}\n", "core/core.yml": "x: 1\n"})}}
	reg, _ := newTestRegistry(t, fs)
	d, err := reg.Resolve(t.TempDir(), uploadedLoc(456))
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "config")
	require.NoError(t, d.CopyTo(context.Background(), target))
	assert.FileExists(t, filepath.Join(target, "core", "core.yml"))
}

func TestUploadedDescriptor_FindLatestVersion(t *testing.T) {
	fs := &fakeStore{record: store.Record{
		"type": PipelineConfigurationEntity,
		"id":   3,
		UploadedConfigField: map[string]any{
			"type": "Attachment", "id": float64(789), "link_type": "upload", "name": "v2.zip",
		},
	}}
	reg, _ := newTestRegistry(t, fs)
	root := t.TempDir()
	d, err := reg.Resolve(root, uploadedLoc(456))
	require.NoError(t, err)
	ctx := context.Background()

	latest, err := d.FindLatestVersion(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "v789", latest.Version())
	assert.Equal(t, d.SystemName(), latest.SystemName())

	direct, err := reg.Resolve(root, uploadedLoc(789))
	require.NoError(t, err)
	assert.Same(t, direct, latest)

	require.Len(t, fs.finds, 1)
	call := fs.finds[0]
	assert.Equal(t, PipelineConfigurationEntity, call.entityType)
	assert.Equal(t, []store.Filter{
		store.Is("project", store.EntityRef{Type: "Project", ID: 12}),
		store.Is("code", "primary"),
	}, call.filters)
	assert.Equal(t, []string{UploadedConfigField}, call.fields)
}

func TestUploadedDescriptor_FindLatestVersionWithoutRegistry(t *testing.T) {
	fs := &fakeStore{record: store.Record{
		UploadedConfigField: map[string]any{"id": 789, "link_type": "upload"},
	}}
	logger := hclog.New(&hclog.LoggerOptions{Name: "bundlectl", Output: io.Discard})
	root := t.TempDir()
	fallback := t.TempDir()

	d, err := NewUploadedDescriptor(BackendConfig{
		Store:         fs,
		Logger:        logger,
		TempDir:       t.TempDir(),
		FallbackRoots: []string{fallback},
	}, root, uploadedLoc(456))
	require.NoError(t, err)
	assert.Equal(t, "bundlectl.uploaded_attachment", d.logger.Name())

	latest, err := d.FindLatestVersion(context.Background(), "")
	require.NoError(t, err)

	ud, ok := latest.(*UploadedDescriptor)
	require.True(t, ok)
	assert.Equal(t, "v789", ud.Version())
	assert.Equal(t, "bundlectl.uploaded_attachment", ud.logger.Name())
	assert.Equal(t, []string{fallback}, ud.config.FallbackRoots)
	assert.Same(t, fs, ud.store)
}

func TestUploadedDescriptor_FindLatestVersionWithoutAttachmentID(t *testing.T) {
	fs := &fakeStore{record: store.Record{
		UploadedConfigField: map[string]any{"id": 5, "link_type": "upload"},
	}}
	reg, _ := newTestRegistry(t, fs)
	d, err := reg.Resolve(t.TempDir(), Location{"type": UploadedType, "name": "primary", "project_id": 12})
	require.NoError(t, err)

	latest, err := d.FindLatestVersion(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "v5", latest.Version())
}

func TestUploadedDescriptor_FindLatestVersionRejectsPattern(t *testing.T) {
	fs := &fakeStore{}
	reg, _ := newTestRegistry(t, fs)
	d, err := reg.Resolve(t.TempDir(), uploadedLoc(456))
	require.NoError(t, err)

	_, err = d.FindLatestVersion(context.Background(), "v1.x.x")
	var unsupported *ErrUnsupportedConstraint
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "v1.x.x", unsupported.Pattern)
	assert.Empty(t, fs.finds)
}

func TestUploadedDescriptor_FindLatestVersionErrors(t *testing.T) {
	tests := []struct {
		name   string
		store  *fakeStore
		target any
	}{
		{
			name:   "no record",
			store:  &fakeStore{},
			target: new(*ErrRecordNotFound),
		},
		{
			name:   "field not set",
			store:  &fakeStore{record: store.Record{UploadedConfigField: nil}},
			target: new(*ErrRecordShape),
		},
		{
			name: "url link",
			store: &fakeStore{record: store.Record{
				UploadedConfigField: map[string]any{"id": 5, "link_type": "web", "url": "https://example.com"},
			}},
			target: new(*ErrRecordShape),
		},
		{
			name: "missing id",
			store: &fakeStore{record: store.Record{
				UploadedConfigField: map[string]any{"link_type": "upload"},
			}},
			target: new(*ErrRecordShape),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, _ := newTestRegistry(t, tt.store)
			d, err := reg.Resolve(t.TempDir(), uploadedLoc(456))
			require.NoError(t, err)

			_, err = d.FindLatestVersion(context.Background(), "")
			assert.ErrorAs(t, err, tt.target)
		})
	}
}

func TestUploadedDescriptor_FindLatestVersionStoreError(t *testing.T) {
	boom := errors.New("service unavailable")
	reg, _ := newTestRegistry(t, &fakeStore{findErr: boom})
	d, err := reg.Resolve(t.TempDir(), uploadedLoc(456))
	require.NoError(t, err)

	_, err = d.FindLatestVersion(context.Background(), "")
	assert.ErrorIs(t, err, boom)
}
