// Package cli implements the svgicon command-line interface.
//
// Commands:
//   - generate: compile every SVG below a source tree into icon modules
//   - watch: regenerate whenever the source tree changes
//   - preview: serve the compiled icons in a browser gallery
//   - cache: inspect and clear the sanitize cache
//
// Settings come from svgicon.toml, SVGICON_* environment variables and
// flags, in that order of precedence (see package config). All commands
// support --verbose (-v) for debug-level logging.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/svgicon/pkg/buildinfo"
	"github.com/matzehuels/svgicon/pkg/cache"
	"github.com/matzehuels/svgicon/pkg/config"
	"github.com/matzehuels/svgicon/pkg/errors"
	"github.com/matzehuels/svgicon/pkg/icon"
	"github.com/matzehuels/svgicon/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for display.
const appName = "svgicon"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	Out    io.Writer // status lines and tables
	Err    io.Writer // spinner and diagnostics

	verbose bool
}

// New creates a CLI that logs to w.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		Out:    os.Stdout,
		Err:    w,
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "svgicon compiles SVG files into registered icon modules",
		Long: `svgicon walks a directory of SVG files, sanitizes each one and writes a
JavaScript module per icon that registers it with vue-svgicon. Every
directory of the output gets an index module importing its contents.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := LogInfo
			if c.verbose {
				level = LogDebug
			}
			c.SetLogLevel(level)
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(c.generateCommand())
	root.AddCommand(c.watchCommand())
	root.AddCommand(c.previewCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// ReportError prints err as a one-line diagnostic. Coded errors show their
// user message; verbose mode adds the code.
func (c *CLI) ReportError(err error) {
	msg := errors.UserMessage(err)
	if code := errors.GetCode(err); code != "" && c.verbose {
		msg += " " + StyleDim.Render("["+string(code)+"]")
	}
	printError(c.Err, "%s", msg)
}

// =============================================================================
// Flags and Configuration
// =============================================================================

// runFlags holds the flags shared by generate, watch and preview. Only flags
// the user set override the config file and environment.
type runFlags struct {
	config  string
	source  string
	target  string
	pattern string
	ext     string
	tpl     string
	es6     bool
	workers int
	timeout time.Duration
	noCache bool
}

func (f *runFlags) register(cmd *cobra.Command, withTarget bool) {
	fs := cmd.Flags()
	fs.StringVar(&f.config, "config", "", "config file (default ./"+config.FileName+" if present)")
	fs.StringVarP(&f.source, "source", "s", "", "directory containing SVG files")
	if withTarget {
		fs.StringVarP(&f.target, "target", "t", "", "output directory, cleared on every run")
		fs.StringVar(&f.ext, "ext", "", "extension of generated files (default js)")
		fs.StringVar(&f.tpl, "tpl", "", "custom module template")
	}
	fs.StringVar(&f.pattern, "pattern", "", "glob selecting source files (default **/*.svg)")
	fs.BoolVar(&f.es6, "es6", false, "emit ES module imports instead of require")
	fs.IntVar(&f.workers, "workers", 0, "parallel compilations (default one per CPU)")
	fs.DurationVar(&f.timeout, "timeout", 0, "per-file compile limit, e.g. 5s")
	fs.BoolVar(&f.noCache, "no-cache", false, "disable the sanitize cache")
}

// resolve loads the layered configuration and checks that the paths the
// command needs are present.
func (f *runFlags) resolve(cmd *cobra.Command, needTarget bool) (*config.Config, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("source") {
		cfg.Source = f.source
	}
	if changed("target") {
		cfg.Target = f.target
	}
	if changed("pattern") {
		cfg.Pattern = f.pattern
	}
	if changed("ext") {
		cfg.Ext = f.ext
	}
	if changed("tpl") {
		cfg.Template = f.tpl
	}
	if changed("es6") {
		cfg.ES6 = f.es6
	}
	if changed("workers") {
		cfg.Workers = f.workers
	}
	if changed("timeout") {
		cfg.Timeout = f.timeout
	}
	if changed("no-cache") {
		cfg.Cache.Disabled = f.noCache
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Source == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no source directory: pass --source or set source in %s", config.FileName)
	}
	if needTarget && cfg.Target == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no target directory: pass --target or set target in %s", config.FileName)
	}
	return cfg, nil
}

// pipelineOptions maps a resolved config onto run options.
func pipelineOptions(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		Source:       cfg.Source,
		Target:       cfg.Target,
		Pattern:      cfg.Pattern,
		Ext:          cfg.Ext,
		TemplatePath: cfg.Template,
		Style:        cfg.Style(),
		Workers:      cfg.Workers,
		Timeout:      cfg.Timeout,
	}
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner backed by the configured cache. A cache
// that cannot be opened is logged and replaced by no cache. The returned
// function releases the cache.
func (c *CLI) newRunner(ctx context.Context, cfg *config.Config) (*pipeline.Runner, func()) {
	logger := loggerFromContext(ctx)
	store, keyer, err := openCache(ctx, cfg.Cache)
	if err != nil {
		logger.Warn("sanitize cache unavailable, continuing without it", "error", err)
		store, keyer = cache.NewNullCache(), cache.NewDefaultKeyer()
	}
	release := func() {
		if err := store.Close(); err != nil {
			logger.Debug("close cache", "error", err)
		}
	}
	compiler := icon.NewCompiler(icon.WithCache(store, keyer, cfg.Cache.TTL))
	return pipeline.NewRunner(compiler, logger), release
}

// openCache selects the cache backend: none when disabled, Redis when a URL
// is configured, else a directory. The configured prefix scopes both, so
// projects can share one Redis database or one directory.
func openCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, cache.Keyer, error) {
	keyer := cache.NewDefaultKeyer()
	switch {
	case cfg.Disabled:
		return cache.NewNullCache(), keyer, nil

	case cfg.RedisURL != "":
		prefix := cfg.Prefix
		if prefix == "" {
			prefix = cache.DefaultRedisPrefix
		}
		rc, err := cache.NewRedisCache(ctx, cfg.RedisURL, prefix)
		if err != nil {
			return nil, nil, err
		}
		return rc, keyer, nil

	default:
		dir, err := cacheDir(cfg)
		if err != nil {
			return nil, nil, err
		}
		fc, err := cache.NewFileCache(dir, cfg.Prefix)
		if err != nil {
			return nil, nil, fmt.Errorf("open cache directory %s: %w", dir, err)
		}
		return fc, keyer, nil
	}
}

// cacheDir returns the configured cache directory or the per-user default.
func cacheDir(cfg config.CacheConfig) (string, error) {
	if cfg.Dir != "" {
		return cfg.Dir, nil
	}
	return cache.DefaultDir()
}
