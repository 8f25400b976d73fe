package descriptor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/infracollect/bundle-descriptor/cache"
	"github.com/infracollect/bundle-descriptor/store"
)

const (
	// UploadedType addresses a pipeline configuration uploaded as an
	// attachment to the remote store.
	UploadedType = "uploaded_attachment"

	// PipelineConfigurationEntity is the entity holding uploaded configs.
	PipelineConfigurationEntity = "PipelineConfiguration"
	// UploadedConfigField is the attachment field on that entity.
	UploadedConfigField = "uploaded_config"

	uploadedCacheDir = "uploaded"
	uploadLinkType   = "upload"
)

var errNoStore = errors.New("no remote store configured")

type uploadedLocation struct {
	Name         string `mapstructure:"name"`
	ProjectID    int    `mapstructure:"project_id"`
	AttachmentID int    `mapstructure:"attachment_id"`
}

// UploadedDescriptor is a pipeline configuration zip uploaded to the
// remote store:
//
//	{"type": "uploaded_attachment", "project_id": 123, "name": "primary", "attachment_id": 456}
//
// Each upload gets a new attachment id, which doubles as the version.
// Downloaded archives are written to the temp directory and left there.
type UploadedDescriptor struct {
	*base
	loc        uploadedLocation
	store      store.Store
	registry   *Registry
	installer  *cache.Installer
	retryDelay time.Duration
	tempDir    string
}

func newUploadedDescriptor(cfg BackendConfig, cacheRoot string, loc Location) (Descriptor, error) {
	return NewUploadedDescriptor(cfg, cacheRoot, loc)
}

// NewUploadedDescriptor builds an uploaded attachment descriptor. name and
// project_id are required; attachment_id is needed before downloading.
func NewUploadedDescriptor(cfg BackendConfig, cacheRoot string, loc Location) (*UploadedDescriptor, error) {
	d := &UploadedDescriptor{
		base:       newBase(UploadedType, cacheRoot, loc, cfg),
		store:      cfg.Store,
		registry:   cfg.Registry,
		installer:  cache.NewInstaller(cacheRoot, cfg.Unpacker),
		retryDelay: cfg.RetryDelay,
		tempDir:    cfg.TempDir,
	}
	d.self = d

	if err := validateKeys(loc, []string{"type", "name", "project_id"}, []string{"attachment_id"}, d.logger); err != nil {
		return nil, err
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &d.loc,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(map[string]any(loc)); err != nil {
		return nil, &ErrInvalidLocation{Location: loc, Reason: err.Error()}
	}
	if d.loc.Name == "" {
		return nil, &ErrInvalidLocation{Location: loc, Reason: "name must not be empty"}
	}

	if d.tempDir == "" {
		d.tempDir = os.TempDir()
	}
	return d, nil
}

// SystemName is "p<project>_<name>", made filesystem safe.
func (d *UploadedDescriptor) SystemName() string {
	return validFilename(fmt.Sprintf("p%d_%s", d.loc.ProjectID, d.loc.Name))
}

// Version is the attachment id, e.g. "v456".
func (d *UploadedDescriptor) Version() string {
	return fmt.Sprintf("v%d", d.loc.AttachmentID)
}

// Path is <root>/uploaded/<system name>/<version> under the first cache
// root that holds the bundle, or under the primary root.
func (d *UploadedDescriptor) Path() string {
	return d.cachePath(uploadedCacheDir, d.SystemName(), d.Version())
}

// ExistsLocal reports whether the bundle's metadata file is in place.
func (d *UploadedDescriptor) ExistsLocal() bool {
	return hasManifest(d.Path())
}

func (d *UploadedDescriptor) DownloadLocal(ctx context.Context) error {
	if d.ExistsLocal() {
		return nil
	}
	if d.store == nil {
		return fmt.Errorf("cannot download %s: %w", d, errNoStore)
	}
	if d.loc.AttachmentID == 0 {
		return &ErrInvalidLocation{Location: d.location, Reason: "attachment_id is required to download"}
	}

	target := d.primaryPath(uploadedCacheDir, d.SystemName(), d.Version())
	_, err := d.installer.Install(ctx, target, hasManifest, d.fetchArchive)
	return err
}

// fetchArchive downloads the attachment into a uniquely named zip in the
// temp directory. The zip is left in place.
func (d *UploadedDescriptor) fetchArchive(ctx context.Context) (string, func(), error) {
	data, err := d.downloadWithRetry(ctx)
	if err != nil {
		return "", nil, err
	}

	if err := os.MkdirAll(d.tempDir, 0755); err != nil {
		return "", nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	zipTmp := filepath.Join(d.tempDir, uuid.NewString()+"_bundle.zip")
	if err := os.WriteFile(zipTmp, data, 0644); err != nil {
		return "", nil, fmt.Errorf("failed to write %s: %w", zipTmp, err)
	}

	d.logger.Debug("unpacking attachment", "archive", zipTmp, "bytes", len(data))
	return zipTmp, nil, nil
}

// downloadWithRetry tries the download twice: once, and once more after
// retryDelay if the first attempt failed.
func (d *UploadedDescriptor) downloadWithRetry(ctx context.Context) ([]byte, error) {
	var (
		data     []byte
		attempts int
	)
	op := func() error {
		attempts++
		var err error
		data, err = d.store.DownloadAttachment(ctx, d.loc.AttachmentID)
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(d.retryDelay), 1), ctx)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		d.logger.Warn("download of attachment failed, retrying once",
			"attachment_id", d.loc.AttachmentID, "wait", wait, "error", err)
	})
	if err != nil {
		return nil, &ErrFetchFailed{
			Descriptor:   d.String(),
			AttachmentID: d.loc.AttachmentID,
			Attempts:     attempts,
			Err:          err,
		}
	}
	return data, nil
}

// FindLatestVersion looks up the configuration's current attachment.
// Version patterns are not supported.
func (d *UploadedDescriptor) FindLatestVersion(ctx context.Context, pattern string) (Descriptor, error) {
	if pattern != "" {
		return nil, &ErrUnsupportedConstraint{Descriptor: d.String(), Pattern: pattern}
	}
	if d.store == nil {
		return nil, fmt.Errorf("cannot find latest version of %s: %w", d, errNoStore)
	}

	d.logger.Debug("finding latest version", "descriptor", d.String())

	rec, err := d.store.FindOne(ctx, PipelineConfigurationEntity,
		[]store.Filter{
			store.Is("project", store.EntityRef{Type: "Project", ID: d.loc.ProjectID}),
			store.Is("code", d.loc.Name),
		},
		[]string{UploadedConfigField},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to look up latest version of %s: %w", d, err)
	}
	if rec == nil {
		return nil, &ErrRecordNotFound{
			EntityType: PipelineConfigurationEntity,
			Name:       d.loc.Name,
			ProjectID:  d.loc.ProjectID,
		}
	}

	// An uploaded file looks like:
	//  {"name": "v1.2.3.zip", "type": "Attachment", "id": 139, "link_type": "upload", ...}
	shapeErr := &ErrRecordShape{
		EntityType: PipelineConfigurationEntity,
		Name:       d.loc.Name,
		Field:      UploadedConfigField,
		Value:      rec[UploadedConfigField],
	}
	link, ok := rec.Link(UploadedConfigField)
	if !ok || link["link_type"] != uploadLinkType {
		return nil, shapeErr
	}
	var attachmentID int
	if err := mapstructure.WeakDecode(link["id"], &attachmentID); err != nil || attachmentID == 0 {
		return nil, shapeErr
	}

	latest := Location{
		"type":          UploadedType,
		"name":          d.loc.Name,
		"project_id":    d.loc.ProjectID,
		"attachment_id": attachmentID,
	}

	var desc Descriptor
	if d.registry != nil {
		desc, err = d.registry.Resolve(d.cacheRoot, latest, UsingStore(d.store))
	} else {
		cfg := d.config
		cfg.Store = d.store
		desc, err = NewUploadedDescriptor(cfg, d.cacheRoot, latest)
	}
	if err != nil {
		return nil, err
	}

	d.logger.Debug("latest version resolved", "descriptor", fmt.Sprint(desc))
	return desc, nil
}

func (d *UploadedDescriptor) String() string {
	return d.base.String()
}
