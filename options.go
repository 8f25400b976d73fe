package descriptor

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-hclog"

	"github.com/infracollect/bundle-descriptor/cache"
	"github.com/infracollect/bundle-descriptor/cachepath"
	"github.com/infracollect/bundle-descriptor/store"
)

// Option configures a Registry.
type Option func(*Registry) error

// WithLogger sets a logr logger for the registry and every descriptor it
// creates. If not set, logging is disabled.
func WithLogger(logger logr.Logger) Option {
	return func(r *Registry) error {
		r.defaults.Logger = newHclogAdapter(logger)
		return nil
	}
}

// WithHclog sets an hclog logger directly.
func WithHclog(logger hclog.Logger) Option {
	return func(r *Registry) error {
		if logger == nil {
			return errors.New("hclog logger must not be nil")
		}
		r.defaults.Logger = logger
		return nil
	}
}

// WithStore sets the remote store used by attachment-backed descriptors.
func WithStore(s store.Store) Option {
	return func(r *Registry) error {
		r.defaults.Store = s
		return nil
	}
}

// WithHTTPStore configures an HTTPStore for the site at baseURL.
func WithHTTPStore(baseURL, token string, client *http.Client) Option {
	return func(r *Registry) error {
		if baseURL == "" {
			return errors.New("store URL must not be empty")
		}
		r.defaults.Store = store.NewHTTPStore(baseURL, token, client)
		return nil
	}
}

// WithGit sets how git descriptors run git.
func WithGit(g GitRunner) Option {
	return func(r *Registry) error {
		r.defaults.Git = g
		return nil
	}
}

// WithUnpacker sets the archive unpacker used when installing bundles.
func WithUnpacker(u cache.Unpacker) Option {
	return func(r *Registry) error {
		r.defaults.Unpacker = u
		return nil
	}
}

// WithPlatform overrides the platform used to pick platform-specific path
// keys. Defaults to the running platform.
func WithPlatform(p cachepath.Platform) Option {
	return func(r *Registry) error {
		r.defaults.Platform = p
		return nil
	}
}

// WithRetryDelay sets the pause before the single download retry.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Registry) error {
		if d < 0 {
			return fmt.Errorf("retry delay must not be negative: %s", d)
		}
		r.defaults.RetryDelay = d
		return nil
	}
}

// WithTempDir sets where downloaded archives are written.
func WithTempDir(dir string) Option {
	return func(r *Registry) error {
		r.defaults.TempDir = dir
		return nil
	}
}

// WithFallbackRoots adds bundle cache roots that are searched, after the
// primary root, for content that is already cached. Typically these are
// read-only caches shipped with an installation.
func WithFallbackRoots(roots ...string) Option {
	return func(r *Registry) error {
		for _, root := range roots {
			if root == "" {
				return errors.New("fallback root must not be empty")
			}
		}
		r.defaults.FallbackRoots = append(r.defaults.FallbackRoots, roots...)
		return nil
	}
}

// WithBackend registers a factory for locations of the given type,
// replacing any built-in backend of that name.
func WithBackend(typ string, f Factory) Option {
	return func(r *Registry) error {
		if typ == "" || f == nil {
			return errors.New("backend type and factory are required")
		}
		r.factories[typ] = f
		return nil
	}
}

// BackendOption adjusts the configuration a single Resolve call hands to a
// backend factory. It only has an effect when that call constructs the
// descriptor; an already cached descriptor keeps its original configuration.
type BackendOption func(*BackendConfig)

// UsingStore overrides the remote store for this resolution.
func UsingStore(s store.Store) BackendOption {
	return func(c *BackendConfig) {
		c.Store = s
	}
}

// UsingLogger overrides the logger for this resolution.
func UsingLogger(l hclog.Logger) BackendOption {
	return func(c *BackendConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}
