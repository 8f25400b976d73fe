package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	descriptor "github.com/infracollect/bundle-descriptor"
	"github.com/infracollect/bundle-descriptor/cachepath"
)

const locationArgs = "<uri | key=value...>"

func newDescribeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "describe " + locationArgs,
		Short: "Show what a location resolves to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.resolve(args)
			if err != nil {
				return err
			}
			return writeDescription(cmd.OutOrStdout(), d)
		},
	}
}

func writeDescription(w io.Writer, d descriptor.Descriptor) error {
	deprecated, reason := d.DeprecationStatus()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "uri:\t%s\n", d.Location().URI())
	fmt.Fprintf(tw, "system name:\t%s\n", d.SystemName())
	fmt.Fprintf(tw, "version:\t%s\n", d.Version())
	fmt.Fprintf(tw, "path:\t%s\n", d.Path())
	fmt.Fprintf(tw, "local:\t%t\n", d.ExistsLocal())
	fmt.Fprintf(tw, "immutable:\t%t\n", d.IsImmutable())
	fmt.Fprintf(tw, "developer:\t%t\n", d.IsDeveloper())
	if deprecated {
		fmt.Fprintf(tw, "deprecated:\t%s\n", reason)
	}
	return tw.Flush()
}

func newEnsureCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure " + locationArgs,
		Short: "Download a bundle into the cache unless it is already there",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.resolve(args)
			if err != nil {
				return err
			}
			if err := d.EnsureLocal(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.Path())
			return nil
		},
	}
}

func newManifestCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "manifest " + locationArgs,
		Short: "Print a bundle's metadata, fetching it first if needed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.resolve(args)
			if err != nil {
				return err
			}
			m, err := d.Manifest(cmd.Context())
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(map[string]any(m)); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func newLatestCommand(a *app) *cobra.Command {
	var constraint string

	cmd := &cobra.Command{
		Use:   "latest " + locationArgs,
		Short: "Find the latest version of a bundle",
		Long: `Find the latest version of a bundle, optionally restricted by a version
pattern such as v1.2.3, v1.2.x or v1.x.x.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.resolve(args)
			if err != nil {
				return err
			}
			latest, err := d.FindLatestVersion(cmd.Context(), constraint)
			if err != nil {
				return err
			}
			return writeDescription(cmd.OutOrStdout(), latest)
		},
	}
	cmd.Flags().StringVarP(&constraint, "constraint", "c", "", "version pattern, e.g. v1.x.x")
	return cmd
}

func newCopyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "copy <target> " + locationArgs,
		Short: "Copy a bundle's content into a directory",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.resolve(args[1:])
			if err != nil {
				return err
			}
			return d.CopyTo(cmd.Context(), args[0])
		},
	}
}

func newPlatformPathCommand(a *app) *cobra.Command {
	var platform string

	cmd := &cobra.Command{
		Use:   "platform-path " + locationArgs,
		Short: "Print a path bundle's location on another platform",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := cachepath.ParsePlatform(platform)
			if err != nil {
				return err
			}
			d, err := a.resolve(args)
			if err != nil {
				return err
			}
			pd, ok := d.(*descriptor.PathDescriptor)
			if !ok {
				return fmt.Errorf("%s is not a path descriptor", d.Location().Type())
			}
			path, ok := pd.PlatformPath(p)
			if !ok {
				return fmt.Errorf("no path defined for %s", p)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&platform, "platform", cachepath.CurrentPlatform().String(), "linux, mac or windows")
	return cmd
}

func newPathsCommand(a *app) *cobra.Command {
	var (
		site           string
		projectID      int
		pipelineConfig int
		backup         bool
	)

	cmd := &cobra.Command{
		Use:   "paths",
		Short: "Print the cache directories, creating them if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := a.cfg.Resolver()
			if err != nil {
				return err
			}
			if site == "" {
				site = a.cfg.SiteURL
			}

			bundles, err := r.BundleCacheRoot()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "root:\t%s\n", r.Root)
			fmt.Fprintf(tw, "bundle cache:\t%s\n", bundles)

			if site != "" {
				configRoot, err := r.ConfigCacheRoot(site, projectID, pipelineConfig)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "config cache:\t%s\n", configRoot)
			}
			if backup {
				if site == "" {
					return fmt.Errorf("--backup needs --site or site_url")
				}
				backupRoot, err := r.ConfigBackupRoot(site, projectID, pipelineConfig)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "config backup:\t%s\n", backupRoot)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&site, "site", "", "site URL (defaults to site_url)")
	cmd.Flags().IntVar(&projectID, "project", 0, "project id")
	cmd.Flags().IntVar(&pipelineConfig, "pipeline-config", 0, "pipeline configuration id")
	cmd.Flags().BoolVar(&backup, "backup", false, "also create a timestamped config backup directory")
	return cmd
}

func newURICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "uri key=value...",
		Short: "Print the canonical URI for a location",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseLocation(args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), loc.URI())
			return nil
		},
	}
}
