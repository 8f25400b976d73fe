package descriptor

import (
	"context"
	"fmt"
	"strings"

	"github.com/infracollect/bundle-descriptor/cache"
)

// GitBranchType addresses a commit on a branch of a git repository.
const GitBranchType = "git_branch"

const shortHashLen = 7

// GitBranchDescriptor is a commit on a git branch:
//
//	{"type": "git_branch", "path": "/srv/repos/tk-foo.git", "branch": "master", "version": "17fedd8a4e3c"}
//
// version is a commit hash and may be abbreviated as long as git can
// resolve it. The cache directory is named after the first seven
// characters of the hash.
type GitBranchDescriptor struct {
	*base
	repo      gitRepo
	branch    string
	version   string
	registry  *Registry
	installer *cache.Installer
}

func newGitBranchDescriptor(cfg BackendConfig, cacheRoot string, loc Location) (Descriptor, error) {
	return NewGitBranchDescriptor(cfg, cacheRoot, loc)
}

// NewGitBranchDescriptor builds a git branch descriptor; path, branch and
// version are required.
func NewGitBranchDescriptor(cfg BackendConfig, cacheRoot string, loc Location) (*GitBranchDescriptor, error) {
	d := &GitBranchDescriptor{
		base:      newBase(GitBranchType, cacheRoot, loc, cfg),
		registry:  cfg.Registry,
		installer: cache.NewInstaller(cacheRoot, cfg.Unpacker),
	}
	d.self = d

	if err := validateKeys(loc, []string{"type", "path", "branch", "version"}, nil, d.logger); err != nil {
		return nil, err
	}

	d.repo = newGitRepo(cfg, stringValue(loc, "path"), d.logger)
	d.branch = stringValue(loc, "branch")
	d.version = stringValue(loc, "version")
	if d.repo.url == "" || d.branch == "" || d.version == "" {
		return nil, &ErrInvalidLocation{Location: loc, Reason: "path, branch and version must not be empty"}
	}
	return d, nil
}

func (d *GitBranchDescriptor) SystemName() string {
	return d.repo.systemName()
}

// Version is the commit hash as given in the location.
func (d *GitBranchDescriptor) Version() string {
	return d.version
}

// Branch returns the branch the commit belongs to.
func (d *GitBranchDescriptor) Branch() string {
	return d.branch
}

func (d *GitBranchDescriptor) shortHash() string {
	if len(d.version) > shortHashLen {
		return d.version[:shortHashLen]
	}
	return d.version
}

func (d *GitBranchDescriptor) Path() string {
	return d.cachePath(gitCacheDir, d.repo.baseName(), d.shortHash())
}

func (d *GitBranchDescriptor) ExistsLocal() bool {
	return hasManifest(d.Path())
}

// DownloadLocal archives the commit and unpacks it into the cache.
func (d *GitBranchDescriptor) DownloadLocal(ctx context.Context) error {
	if d.ExistsLocal() {
		return nil
	}
	target := d.primaryPath(gitCacheDir, d.repo.baseName(), d.shortHash())
	_, err := d.installer.Install(ctx, target, hasManifest, func(ctx context.Context) (string, func(), error) {
		return d.repo.archive(ctx, d.version)
	})
	return err
}

// CopyTo clones the repository into target, switches to the branch and
// resets it to the commit.
func (d *GitBranchDescriptor) CopyTo(ctx context.Context, target string) error {
	d.logger.Debug("copying bundle", "descriptor", d.String(), "target", target)
	if err := d.repo.clone(ctx, target); err != nil {
		return err
	}
	if _, err := d.repo.git.Run(ctx, target, "checkout", "-q", d.branch); err != nil {
		return fmt.Errorf("failed to switch to branch %s: %w", d.branch, err)
	}
	if _, err := d.repo.git.Run(ctx, target, "reset", "--hard", "-q", d.version); err != nil {
		return fmt.Errorf("failed to reset %s to %s: %w", d.branch, d.version, err)
	}
	return nil
}

// FindLatestVersion returns the descriptor for the current head of the
// branch. Version patterns do not apply to commits; a non-empty pattern is
// logged and ignored.
func (d *GitBranchDescriptor) FindLatestVersion(ctx context.Context, pattern string) (Descriptor, error) {
	if pattern != "" {
		d.logger.Warn("version patterns are not supported for branches, using the latest commit",
			"descriptor", d.String(), "pattern", pattern)
	}

	d.logger.Debug("finding latest commit", "repo", d.repo.url, "branch", d.branch)
	out, err := d.repo.git.Run(ctx, "", "ls-remote", d.repo.url, d.branch)
	if err != nil {
		return nil, fmt.Errorf("could not get latest commit for %s, branch %s: %w", d.repo.url, d.branch, err)
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return nil, fmt.Errorf("branch %s not found in %s", d.branch, d.repo.url)
	}

	loc := d.location.Clone()
	loc["version"] = fields[0]
	if d.registry != nil {
		return d.registry.Resolve(d.cacheRoot, loc)
	}
	return NewGitBranchDescriptor(d.config, d.cacheRoot, loc)
}

func (d *GitBranchDescriptor) String() string {
	return d.base.String()
}
