package descriptor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/infracollect/bundle-descriptor/cache"
)

// GitType addresses a tag in a git repository.
const GitType = "git"

const gitCacheDir = "git"

// GitRunner runs git with args in dir and returns its standard output.
type GitRunner interface {
	Run(ctx context.Context, dir string, args ...string) ([]byte, error)
}

// ExecGit runs the git executable found on PATH (or Binary, if set).
type ExecGit struct {
	Binary string
}

func (g ExecGit) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("cannot execute the 'git' command, make sure git is installed and on the PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("git %s failed: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)), err)
		}
		return nil, fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

// gitRepo runs the git commands shared by the git backends.
type gitRepo struct {
	url     string
	git     GitRunner
	tempDir string
	logger  hclog.Logger
}

func newGitRepo(cfg BackendConfig, rawURL string, logger hclog.Logger) gitRepo {
	r := gitRepo{
		// git always wants forward slashes
		url:     strings.TrimRight(strings.ReplaceAll(rawURL, `\`, "/"), "/"),
		git:     cfg.Git,
		tempDir: cfg.TempDir,
		logger:  logger,
	}
	if r.git == nil {
		r.git = ExecGit{}
	}
	if r.tempDir == "" {
		r.tempDir = os.TempDir()
	}
	return r
}

// baseName returns the last element of the repository path, e.g. "tk-foo.git".
func (r gitRepo) baseName() string {
	b := path.Base(r.url)
	if i := strings.LastIndex(b, ":"); i >= 0 {
		b = b[i+1:]
	}
	return b
}

// systemName is the repository name without extension, e.g. "tk-foo".
func (r gitRepo) systemName() string {
	b := r.baseName()
	return strings.TrimSuffix(b, path.Ext(b))
}

// cloneTemp clones the repository into a fresh directory below tempDir.
// The caller removes it.
func (r gitRepo) cloneTemp(ctx context.Context) (string, error) {
	if err := os.MkdirAll(r.tempDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	cloneDir, err := os.MkdirTemp(r.tempDir, "bundle_clone_")
	if err != nil {
		return "", fmt.Errorf("failed to create clone directory: %w", err)
	}
	if err := r.clone(ctx, cloneDir); err != nil {
		os.RemoveAll(cloneDir)
		return "", err
	}
	return cloneDir, nil
}

func (r gitRepo) clone(ctx context.Context, target string) error {
	r.logger.Debug("cloning repository", "repo", r.url, "target", target)
	if _, err := r.git.Run(ctx, "", "clone", "-q", r.url, target); err != nil {
		return fmt.Errorf("failed to clone %s: %w", r.url, err)
	}
	return nil
}

// archive clones the repository and writes rev as a zip into tempDir. The
// returned cleanup removes the zip.
func (r gitRepo) archive(ctx context.Context, rev string) (string, func(), error) {
	cloneDir, err := r.cloneTemp(ctx)
	if err != nil {
		return "", nil, err
	}
	defer os.RemoveAll(cloneDir)

	zipTmp := filepath.Join(r.tempDir, uuid.NewString()+"_bundle.zip")
	r.logger.Debug("archiving revision", "rev", rev, "archive", zipTmp)
	if _, err := r.git.Run(ctx, cloneDir, "archive", "--format", "zip", "--output", zipTmp, rev); err != nil {
		return "", nil, fmt.Errorf("failed to archive %s at %s: %w", r.url, rev, err)
	}

	return zipTmp, func() { os.Remove(zipTmp) }, nil
}

// GitDescriptor is a tag of a git repository:
//
//	{"type": "git", "path": "git@github.com:studio/tk-foo.git", "version": "v0.2.1"}
//
// path may be any URL or local path git can clone.
type GitDescriptor struct {
	*base
	repo      gitRepo
	version   string
	registry  *Registry
	installer *cache.Installer
}

func newGitDescriptor(cfg BackendConfig, cacheRoot string, loc Location) (Descriptor, error) {
	return NewGitDescriptor(cfg, cacheRoot, loc)
}

// NewGitDescriptor builds a git descriptor; path and version are required.
func NewGitDescriptor(cfg BackendConfig, cacheRoot string, loc Location) (*GitDescriptor, error) {
	d := &GitDescriptor{
		base:      newBase(GitType, cacheRoot, loc, cfg),
		registry:  cfg.Registry,
		installer: cache.NewInstaller(cacheRoot, cfg.Unpacker),
	}
	d.self = d

	if err := validateKeys(loc, []string{"type", "path", "version"}, nil, d.logger); err != nil {
		return nil, err
	}

	d.repo = newGitRepo(cfg, stringValue(loc, "path"), d.logger)
	d.version = stringValue(loc, "version")
	if d.repo.url == "" || d.version == "" {
		return nil, &ErrInvalidLocation{Location: loc, Reason: "path and version must not be empty"}
	}
	return d, nil
}

// SystemName is the repository name without extension, e.g. "tk-foo".
func (d *GitDescriptor) SystemName() string {
	return d.repo.systemName()
}

func (d *GitDescriptor) Version() string {
	return d.version
}

func (d *GitDescriptor) Path() string {
	return d.cachePath(gitCacheDir, d.repo.baseName(), d.version)
}

func (d *GitDescriptor) ExistsLocal() bool {
	return hasManifest(d.Path())
}

// DownloadLocal clones the repository, archives the tag and unpacks it
// into the cache.
func (d *GitDescriptor) DownloadLocal(ctx context.Context) error {
	if d.ExistsLocal() {
		return nil
	}
	target := d.primaryPath(gitCacheDir, d.repo.baseName(), d.version)
	_, err := d.installer.Install(ctx, target, hasManifest, func(ctx context.Context) (string, func(), error) {
		return d.repo.archive(ctx, d.version)
	})
	return err
}

// CopyTo clones the repository into target and checks out the tag, so
// the copy keeps its repository state.
func (d *GitDescriptor) CopyTo(ctx context.Context, target string) error {
	d.logger.Debug("copying bundle", "descriptor", d.String(), "target", target)
	if err := d.repo.clone(ctx, target); err != nil {
		return err
	}
	if _, err := d.repo.git.Run(ctx, target, "checkout", d.version, "-q"); err != nil {
		return fmt.Errorf("failed to check out %s: %w", d.version, err)
	}
	return nil
}

// FindLatestVersion returns the highest tag matching pattern, or the most
// recent tag when pattern is empty.
func (d *GitDescriptor) FindLatestVersion(ctx context.Context, pattern string) (Descriptor, error) {
	cloneDir, err := d.repo.cloneTemp(ctx)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(cloneDir)

	var version string
	if pattern != "" {
		version, err = d.latestByPattern(ctx, cloneDir, pattern)
	} else {
		version, err = d.latestTag(ctx, cloneDir)
	}
	if err != nil {
		return nil, err
	}

	loc := d.location.Clone()
	loc["version"] = version
	if d.registry != nil {
		return d.registry.Resolve(d.cacheRoot, loc)
	}
	return NewGitDescriptor(d.config, d.cacheRoot, loc)
}

func (d *GitDescriptor) latestByPattern(ctx context.Context, cloneDir, pattern string) (string, error) {
	out, err := d.repo.git.Run(ctx, cloneDir, "tag")
	if err != nil {
		return "", fmt.Errorf("could not get list of tags for %s: %w", d.repo.url, err)
	}
	tags := strings.Fields(string(out))
	if len(tags) == 0 {
		return "", fmt.Errorf("git repository %s doesn't seem to have any tags", d.repo.url)
	}

	version, err := MatchVersionPattern(tags, pattern)
	var notFound *ErrVersionNotFound
	if errors.As(err, &notFound) {
		notFound.Source = d.repo.url
	}
	return version, err
}

func (d *GitDescriptor) latestTag(ctx context.Context, cloneDir string) (string, error) {
	out, err := d.repo.git.Run(ctx, cloneDir, "rev-list", "--tags", "--max-count=1")
	if err != nil {
		return "", fmt.Errorf("could not get list of tags for %s: %w", d.repo.url, err)
	}
	hash := strings.TrimSpace(string(out))
	if hash == "" {
		return "", fmt.Errorf("git repository %s doesn't seem to have any tags", d.repo.url)
	}

	out, err = d.repo.git.Run(ctx, cloneDir, "describe", "--tags", hash)
	if err != nil {
		return "", fmt.Errorf("could not get tag for hash %s: %w", hash, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (d *GitDescriptor) String() string {
	return d.base.String()
}
