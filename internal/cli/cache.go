package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/matzehuels/svgicon/pkg/cache"
	"github.com/matzehuels/svgicon/pkg/config"
	"github.com/matzehuels/svgicon/pkg/errors"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the sanitize cache",
		Long: `Sanitized SVG documents are cached by content hash so that unchanged files
are not parsed again. The cache lives in a per-user directory, or in Redis
when cache.redis_url is configured.`,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./"+config.FileName+" if present)")

	cmd.AddCommand(c.cacheClearCommand(&configPath))
	cmd.AddCommand(c.cachePathCommand(&configPath))

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Cache.Disabled {
				printInfo(c.Out, "Cache is disabled")
				return nil
			}

			store, _, err := openCache(ctx, cfg.Cache)
			if err != nil {
				return errors.Wrap(errors.ErrCodeInvalidConfig, err, "open cache")
			}
			defer store.Close()

			if err := store.Clear(ctx); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			printSuccess(c.Out, "Cleared cache")
			printDetail(c.Out, "Location: %s", cacheLocation(cfg.Cache))
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print where the cache is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.Out, cacheLocation(cfg.Cache))
			return nil
		},
	}
}

// cacheLocation describes the configured backend: a directory path or the
// Redis URL, without credentials, with its key prefix.
func cacheLocation(cfg config.CacheConfig) string {
	if cfg.RedisURL != "" {
		prefix := cfg.Prefix
		if prefix == "" {
			prefix = cache.DefaultRedisPrefix
		}
		return redactURL(cfg.RedisURL) + " (prefix " + prefix + ")"
	}
	dir, err := cacheDir(cfg)
	if err != nil {
		return "unavailable: " + err.Error()
	}
	return dir
}

// redactURL drops the userinfo of a URL. Unparseable URLs are hidden
// entirely since they may still carry a password.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	return u.String()
}
