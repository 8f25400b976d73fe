package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	descriptor "github.com/infracollect/bundle-descriptor"
	"github.com/infracollect/bundle-descriptor/config"
)

// app holds what every subcommand needs once flags and config are read.
type app struct {
	configPath string
	cacheRoot  string
	verbose    bool

	cfg      *config.Config
	logger   hclog.Logger
	registry *descriptor.Registry
	closers  []io.Closer
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "bundlectl",
		Short: "Resolve, fetch and inspect bundles in the local bundle cache",
		Long: `bundlectl resolves bundle locations to descriptors and manages their
content in the local bundle cache.

A location is either a URI or a list of key=value pairs:
  bundlectl describe bundle:path?path=%2Fstudio%2Ftk-foo
  bundlectl ensure type=uploaded_attachment name=primary project_id=12 attachment_id=456
  bundlectl describe type=manual name=tk-foo version=v1.0.0`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (YAML, TOML or JSON)")
	flags.StringVar(&a.cacheRoot, "cache-root", "", "cache root directory (defaults to the platform cache location)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newDescribeCommand(a),
		newEnsureCommand(a),
		newManifestCommand(a),
		newLatestCommand(a),
		newCopyCommand(a),
		newPlatformPathCommand(a),
		newPathsCommand(a),
		newURICommand(),
	)

	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.cacheRoot != "" {
		abs, err := filepath.Abs(a.cacheRoot)
		if err != nil {
			return fmt.Errorf("cannot resolve cache root: %w", err)
		}
		cfg.CacheRoot = abs
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	a.cfg = cfg

	a.logger = a.newLogger()

	opts := []descriptor.Option{
		descriptor.WithHclog(a.logger),
		descriptor.WithPlatform(cfg.ResolvedPlatform()),
		descriptor.WithRetryDelay(cfg.RetryDelay),
	}
	if cfg.TempDir != "" {
		opts = append(opts, descriptor.WithTempDir(cfg.TempDir))
	}
	if len(cfg.FallbackRoots) > 0 {
		opts = append(opts, descriptor.WithFallbackRoots(cfg.FallbackRoots...))
	}
	if cfg.Store.URL != "" {
		client := &http.Client{Timeout: cfg.Store.Timeout}
		opts = append(opts, descriptor.WithHTTPStore(cfg.Store.URL, cfg.Store.Token, client))
	}

	a.registry, err = descriptor.NewRegistry(opts...)
	if err != nil {
		return fmt.Errorf("failed to create registry: %w", err)
	}
	return nil
}

// newLogger logs to stderr, or to a rotated file when log.file is set.
func (a *app) newLogger() hclog.Logger {
	var out io.Writer = os.Stderr
	if a.cfg.Log.File != "" {
		lj := &lumberjack.Logger{
			Filename:   a.cfg.Log.File,
			MaxSize:    a.cfg.Log.MaxSize,
			MaxBackups: a.cfg.Log.MaxBackups,
			Compress:   a.cfg.Log.Compress,
		}
		a.closers = append(a.closers, lj)
		out = lj
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       "bundlectl",
		Level:      hclog.LevelFromString(strings.ToLower(a.cfg.Log.Level)),
		Output:     out,
		JSONFormat: a.cfg.Log.File != "",
	})
}

func (a *app) close() {
	for _, c := range a.closers {
		c.Close()
	}
}

// bundleCacheRoot returns the bundle cache directory, creating it.
func (a *app) bundleCacheRoot() (string, error) {
	r, err := a.cfg.Resolver()
	if err != nil {
		return "", err
	}
	return r.BundleCacheRoot()
}

// resolve turns command arguments into a descriptor. A single argument
// starting with the URI prefix is parsed as a URI, anything else as
// key=value pairs.
func (a *app) resolve(args []string) (descriptor.Descriptor, error) {
	loc, err := parseLocation(args)
	if err != nil {
		return nil, err
	}
	root, err := a.bundleCacheRoot()
	if err != nil {
		return nil, err
	}
	return a.registry.Resolve(root, loc)
}

func parseLocation(args []string) (descriptor.Location, error) {
	if len(args) == 1 && strings.HasPrefix(args[0], descriptor.URIPrefix) {
		return descriptor.ParseURI(args[0])
	}
	return descriptor.ParsePairs(args)
}
