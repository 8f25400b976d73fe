package descriptor

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/infracollect/bundle-descriptor/cache"
	"github.com/infracollect/bundle-descriptor/cachepath"
	"github.com/infracollect/bundle-descriptor/store"
)

const defaultRetryDelay = 500 * time.Millisecond

// BackendConfig carries the collaborators a backend factory may use.
type BackendConfig struct {
	// Registry is the registry constructing the descriptor. Backends use it
	// to resolve other versions of the same bundle.
	Registry   *Registry
	Store      store.Store
	Git        GitRunner
	Unpacker   cache.Unpacker
	Logger     hclog.Logger
	Platform   cachepath.Platform
	RetryDelay time.Duration
	TempDir    string

	// FallbackRoots are searched, in order, for already cached content
	// missing from the primary cache root. They are never written to.
	FallbackRoots []string
}

// Factory builds a descriptor for a location. It must not perform network
// or disk I/O; validating the location is fine.
type Factory func(cfg BackendConfig, cacheRoot string, loc Location) (Descriptor, error)

type cacheKey struct {
	root     string
	location string
}

// Registry hands out descriptors, constructing at most one per
// (cache root, location) pair for its lifetime.
type Registry struct {
	mu        sync.Mutex
	instances map[cacheKey]Descriptor
	factories map[string]Factory
	defaults  BackendConfig
}

// NewRegistry creates a new Registry with the given options.
// If no options are provided, it uses default settings:
// - no remote store (attachment descriptors fail when they need one)
// - git from PATH
// - zip archives
// - logging disabled
func NewRegistry(opts ...Option) (*Registry, error) {
	r := &Registry{
		instances: make(map[cacheKey]Descriptor),
		factories: map[string]Factory{
			PathType:      newPathFactory(false),
			DevType:       newPathFactory(true),
			UploadedType:  newUploadedDescriptor,
			GitType:       newGitDescriptor,
			GitBranchType: newGitBranchDescriptor,
			ManualType:    newManualDescriptor,
		},
		defaults: BackendConfig{
			Git:        ExecGit{},
			Unpacker:   cache.ZipUnpacker{},
			Logger:     hclog.NewNullLogger(),
			Platform:   cachepath.CurrentPlatform(),
			RetryDelay: defaultRetryDelay,
			TempDir:    os.TempDir(),
		},
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Resolve returns the descriptor for loc cached under cacheRoot, creating
// it on first use. Locations are compared by their canonical form, so key
// order and value spelling such as 12 vs "12" do not matter.
//
// Only the call that constructs a descriptor applies opts; later calls for
// the same address get the existing instance unchanged.
func (r *Registry) Resolve(cacheRoot string, loc Location, opts ...BackendOption) (Descriptor, error) {
	if len(loc) == 0 {
		return nil, &ErrInvalidLocation{Location: loc, Reason: "location is empty"}
	}

	key := cacheKey{root: cacheRoot, location: loc.Canonical()}

	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.instances[key]; ok {
		return d, nil
	}

	factory, ok := r.factories[loc.Type()]
	if !ok {
		return nil, &ErrInvalidLocation{
			Location: loc,
			Reason:   fmt.Sprintf("unknown descriptor type %q", loc.Type()),
		}
	}

	cfg := r.defaults
	cfg.Registry = r
	for _, opt := range opts {
		opt(&cfg)
	}

	d, err := factory(cfg, cacheRoot, loc.Clone())
	if err != nil {
		return nil, err
	}

	r.instances[key] = d
	cfg.Logger.Trace("descriptor created", "location", key.location, "cache_root", cacheRoot)
	return d, nil
}

// Len returns the number of cached descriptors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}
