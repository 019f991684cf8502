// Package pipeline runs a complete svgicon generation.
//
// A run discovers every SVG below the source root, clears the target tree,
// compiles each asset into an icon module in parallel and, once every asset
// has been accounted for, writes the nested index manifests.
//
// # Failure model
//
// Problems that make the whole run meaningless are returned as errors:
// invalid options, a source root that cannot be scanned, an unreadable
// template and a target tree that cannot be written. Discovery and template
// loading happen before the target is touched, so these leave a previous
// generation in place.
//
// Problems with a single asset (malformed markup, a timeout, a name that
// would overwrite a manifest, a failed write of that one file) are recorded
// in [Result.Failures]. The asset is left out of the manifests and the run
// continues.
//
// # Usage
//
//	runner := pipeline.NewRunner(nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Source: "assets/svg",
//	    Target: "src/icons",
//	    Style:  template.StyleImport,
//	})
package pipeline

import (
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/svgicon/pkg/asset"
	"github.com/matzehuels/svgicon/pkg/errors"
	"github.com/matzehuels/svgicon/pkg/icon"
	"github.com/matzehuels/svgicon/pkg/manifest"
	"github.com/matzehuels/svgicon/pkg/template"
)

// DefaultExt is the extension of generated modules.
const DefaultExt = "js"

// =============================================================================
// Options - Run Configuration
// =============================================================================

// Options configures one generation run.
type Options struct {
	Source       string         // directory scanned for assets
	Target       string         // directory that is cleared and regenerated
	Pattern      string         // doublestar glob relative to Source
	Ext          string         // extension of generated files, without the dot
	TemplatePath string         // custom module template; "" selects the built-in one
	Style        template.Style // module style of manifests and the built-in template
	Workers      int            // parallel compilations; 0 means one per CPU
	Timeout      time.Duration  // per-asset compile limit; 0 disables it

	// Runtime options
	Logger  *log.Logger
	OnEvent func(Event) // progress callback, called from one goroutine at a time

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// ValidateAndSetDefaults checks required fields and applies defaults.
// This method is idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if err := o.validateSource(); err != nil {
		return err
	}
	if o.Target == "" {
		return errors.New(errors.ErrCodeInvalidInput, "target path is required")
	}
	if err := checkTarget(o.Source, o.Target); err != nil {
		return err
	}
	if o.Ext == "" {
		o.Ext = DefaultExt
	}
	if err := errors.ValidateExtension(o.Ext); err != nil {
		return err
	}
	o.validated = true
	return nil
}

// validateSource covers the options needed to compile without writing.
func (o *Options) validateSource() error {
	if o.Source == "" {
		return errors.New(errors.ErrCodeInvalidInput, "source path is required")
	}
	if o.Pattern == "" {
		o.Pattern = asset.DefaultPattern
	}
	if o.Style == "" {
		o.Style = template.StyleRequire
	}
	if o.Style != template.StyleRequire && o.Style != template.StyleImport {
		return errors.New(errors.ErrCodeInvalidInput, "unknown module style %q", o.Style)
	}
	if o.Workers < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "workers must not be negative")
	}
	if o.Workers == 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Timeout < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "timeout must not be negative")
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return nil
}

// checkTarget refuses targets whose removal would destroy the sources or
// more than the generated tree.
func checkTarget(source, target string) error {
	src, err := filepath.Abs(source)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve source %s", source)
	}
	dst, err := filepath.Abs(target)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve target %s", target)
	}
	if dst == filepath.VolumeName(dst)+string(filepath.Separator) {
		return errors.New(errors.ErrCodeInvalidPath, "target %s is a filesystem root", target)
	}
	if dst == src || strings.HasPrefix(src, dst+string(filepath.Separator)) {
		return errors.New(errors.ErrCodeInvalidPath, "target %s contains the source %s and would be deleted", target, source)
	}
	return nil
}

// =============================================================================
// Result
// =============================================================================

// Result describes a finished run.
type Result struct {
	// Icons holds every compiled icon, sorted by location.
	Icons []icon.Icon

	// Manifests lists the index files written, root first.
	Manifests []manifest.Written

	// Failures lists skipped assets, sorted by path.
	Failures []Failure

	// Stats contains timing and count information.
	Stats Stats
}

// Failure records an asset that produced no output.
type Failure struct {
	Rel string // source path relative to the source root
	Err error
}

// Stats contains run statistics.
type Stats struct {
	Assets       int
	Icons        int
	Failures     int
	DiscoverTime time.Duration
	CompileTime  time.Duration
	ManifestTime time.Duration
}

// =============================================================================
// Events
// =============================================================================

// EventKind identifies a progress event.
type EventKind int

const (
	EventIcon     EventKind = iota // an icon module was written
	EventSkipped                   // an asset failed and was left out
	EventManifest                  // a manifest was written
)

// Event reports progress to Options.OnEvent.
type Event struct {
	Kind EventKind
	Path string // output path for icons and manifests, source path for skips
	Err  error  // set for EventSkipped
}
