package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/svgicon/pkg/asset"
	"github.com/matzehuels/svgicon/pkg/errors"
	"github.com/matzehuels/svgicon/pkg/icon"
	"github.com/matzehuels/svgicon/pkg/manifest"
	"github.com/matzehuels/svgicon/pkg/observability"
	"github.com/matzehuels/svgicon/pkg/template"
)

// Runner executes generation runs with a shared compiler.
//
// The Runner holds no per-run state, so one Runner can serve several runs,
// for example successive rebuilds in watch mode.
type Runner struct {
	Compiler *icon.Compiler
	Logger   *log.Logger

	// writeFile writes one module; nil means the atomic writeFile below.
	writeFile func(root, rel, content string) error
}

// NewRunner creates a runner. A nil compiler means icon.NewCompiler() with
// no cache.
func NewRunner(c *icon.Compiler, logger *log.Logger) *Runner {
	if c == nil {
		c = icon.NewCompiler()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Compiler: c,
		Logger:   logger,
	}
}

// Execute runs discovery → clear target → compile → manifests.
func (r *Runner) Execute(ctx context.Context, opts Options) (_ *Result, err error) {
	r.applyLogger(&opts)
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &Result{}
	hooks := observability.Pipeline()
	defer func() {
		hooks.OnRunComplete(ctx, len(result.Icons), len(result.Failures), time.Since(start), err)
	}()

	// Stage 1: Discover. Nothing has been touched yet, so failures here
	// leave the previous generation intact.
	rels, err := asset.Discover(ctx, opts.Source, opts.Pattern)
	if err != nil {
		return nil, err
	}
	result.Stats.Assets = len(rels)
	result.Stats.DiscoverTime = time.Since(start)

	tpl, err := template.Load(opts.TemplatePath, opts.Style)
	if err != nil {
		return nil, err
	}
	for _, name := range template.Placeholders(tpl) {
		if !slices.Contains(template.Names(), name) {
			opts.Logger.Warn("template placeholder is never bound, it will render empty",
				"placeholder", name, "template", opts.TemplatePath)
		}
	}

	hooks.OnRunStart(ctx, opts.Source, len(rels))
	opts.Logger.Info("discovered assets",
		"source", opts.Source,
		"count", len(rels),
		"duration", result.Stats.DiscoverTime)

	// Stage 2: Clear the target.
	if err := clearTarget(opts.Target); err != nil {
		return nil, err
	}

	// Stage 3: Compile and write every asset.
	compileStart := time.Now()
	jobs, rejected := plan(rels, opts.Ext)
	for _, f := range rejected {
		r.skip(ctx, opts, f, 0)
	}
	icons, failures, err := r.compile(ctx, opts, jobs, tpl, true)
	if err != nil {
		return nil, err
	}
	result.Icons = sortIcons(icons)
	result.Failures = sortFailures(append(rejected, failures...))
	result.Stats.CompileTime = time.Since(compileStart)

	opts.Logger.Info("compiled icons",
		"icons", len(result.Icons),
		"skipped", len(result.Failures),
		"duration", result.Stats.CompileTime)

	// Stage 4: Manifests, only after every asset is accounted for.
	manifestStart := time.Now()
	locs := make([]asset.Location, len(result.Icons))
	for i, ic := range result.Icons {
		locs[i] = ic.Location
	}
	written, err := manifest.Emit(ctx, opts.Target, manifest.Build(locs), opts.Style, opts.Ext)
	if err != nil {
		return nil, err
	}
	result.Manifests = written
	for _, w := range written {
		opts.Logger.Debug("generated manifest", "path", w.Path, "entries", w.Entries)
		notify(opts, Event{Kind: EventManifest, Path: w.Path})
	}
	result.Stats.ManifestTime = time.Since(manifestStart)

	result.Stats.Icons = len(result.Icons)
	result.Stats.Failures = len(result.Failures)
	return result, nil
}

// CompileAll compiles every asset in memory without touching a target.
// Target-related options are ignored.
func (r *Runner) CompileAll(ctx context.Context, opts Options) ([]icon.Icon, []Failure, error) {
	r.applyLogger(&opts)
	if err := opts.validateSource(); err != nil {
		return nil, nil, err
	}
	if opts.Ext == "" {
		opts.Ext = DefaultExt
	}

	rels, err := asset.Discover(ctx, opts.Source, opts.Pattern)
	if err != nil {
		return nil, nil, err
	}
	jobs, rejected := plan(rels, opts.Ext)
	for _, f := range rejected {
		r.skip(ctx, opts, f, 0)
	}
	icons, failures, err := r.compile(ctx, opts, jobs, "", false)
	if err != nil {
		return nil, nil, err
	}
	return sortIcons(icons), sortFailures(append(rejected, failures...)), nil
}

// applyLogger sets the runner's logger on options if not already set.
func (r *Runner) applyLogger(opts *Options) {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
}

func (r *Runner) skip(ctx context.Context, opts Options, f Failure, d time.Duration) {
	opts.Logger.Warn("skipped asset", "path", f.Rel, "err", errors.UserMessage(f.Err))
	observability.Pipeline().OnIconComplete(ctx, f.Rel, d, f.Err)
	notify(opts, Event{Kind: EventSkipped, Path: f.Rel, Err: f.Err})
}

func notify(opts Options, e Event) {
	if opts.OnEvent != nil {
		opts.OnEvent(e)
	}
}

// =============================================================================
// Planning
// =============================================================================

// plan assigns output paths and rejects assets that cannot be written
// without clobbering a manifest, a directory or another asset. Rejections
// are decided in sorted order so the same tree always loses the same asset.
func plan(rels []string, ext string) ([]string, []Failure) {
	type entry struct {
		rel string
		loc asset.Location
	}
	var (
		entries  []entry
		rejected []Failure
	)
	for _, rel := range rels {
		loc, err := asset.ParseLocation(rel)
		if err != nil {
			rejected = append(rejected, Failure{Rel: rel, Err: err})
			continue
		}
		entries = append(entries, entry{rel: rel, loc: loc})
	}
	slices.SortFunc(entries, func(a, b entry) int {
		if c := asset.Compare(a.loc, b.loc); c != 0 {
			return c
		}
		return strings.Compare(a.rel, b.rel)
	})

	dirs := map[string]bool{}
	for _, e := range entries {
		for i := range e.loc.Dirs {
			dirs[strings.Join(e.loc.Dirs[:i+1], "/")] = true
		}
	}

	claimed := map[string]string{}
	jobs := make([]string, 0, len(entries))
	for _, e := range entries {
		out := e.loc.File(ext)
		switch {
		case e.loc.Name == manifest.IndexName:
			rejected = append(rejected, Failure{Rel: e.rel, Err: errors.New(errors.ErrCodeCollision,
				"%s would overwrite the generated %s", e.rel, out)})
		case dirs[out]:
			rejected = append(rejected, Failure{Rel: e.rel, Err: errors.New(errors.ErrCodeCollision,
				"%s would overwrite the generated directory %s", e.rel, out)})
		case claimed[out] != "":
			rejected = append(rejected, Failure{Rel: e.rel, Err: errors.New(errors.ErrCodeCollision,
				"%s and %s both compile to %s", claimed[out], e.rel, out)})
		default:
			claimed[out] = e.rel
			jobs = append(jobs, e.rel)
		}
	}
	return jobs, rejected
}

// =============================================================================
// Worker Pool
// =============================================================================

// outcome is the result of one asset.
type outcome struct {
	rel  string
	icon icon.Icon
	out  string // written file, slash-separated
	dur  time.Duration
	err  error
}

// compile fans the assets out to opts.Workers goroutines. Outcomes arrive
// in completion order on a single channel and the collector joins on the
// number received, not on input positions. A fatal error, such as a write
// error that affects the whole target, cancels the remaining work.
func (r *Runner) compile(ctx context.Context, opts Options, rels []string, tpl string, write bool) ([]icon.Icon, []Failure, error) {
	if len(rels) == 0 {
		return nil, nil, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := min(opts.Workers, len(rels))
	jobs := make(chan string)
	results := make(chan outcome, workers*2)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rel := range jobs {
				results <- r.process(ctx, opts, tpl, rel, write)
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, rel := range rels {
			select {
			case jobs <- rel:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	var (
		icons    []icon.Icon
		failures []Failure
	)
	remaining := len(rels)
	for remaining > 0 {
		o, ok := <-results
		if !ok {
			break
		}
		remaining--

		if o.err != nil {
			fatal := errors.IsFatal(o.err)
			if ctx.Err() != nil || fatal {
				cancel()
				for range results {
				}
				if err := ctx.Err(); err != nil && !fatal {
					return nil, nil, err
				}
				return nil, nil, o.err
			}
			f := Failure{Rel: o.rel, Err: o.err}
			failures = append(failures, f)
			r.skip(ctx, opts, f, o.dur)
			continue
		}

		icons = append(icons, o.icon)
		observability.Pipeline().OnIconComplete(ctx, o.icon.Name(), o.dur, nil)
		if write {
			opts.Logger.Debug("generated icon", "path", o.out, "duration", o.dur)
			notify(opts, Event{Kind: EventIcon, Path: o.out})
		}
	}
	if remaining > 0 {
		return nil, nil, ctx.Err()
	}
	return icons, failures, nil
}

// process compiles one asset and, when write is set, writes its module.
func (r *Runner) process(ctx context.Context, opts Options, tpl, rel string, write bool) (o outcome) {
	start := time.Now()
	o.rel = rel
	defer func() { o.dur = time.Since(start) }()

	if err := ctx.Err(); err != nil {
		o.err = err
		return o
	}
	a, err := asset.Load(opts.Source, rel)
	if err != nil {
		o.err = err
		return o
	}

	cctx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	ic, err := r.Compiler.Compile(cctx, a)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			o.err = ctx.Err()
		case cctx.Err() != nil && !errors.Is(err, errors.ErrCodeTimeout):
			o.err = errors.Wrap(errors.ErrCodeTimeout, err, "compile %s exceeded %s", rel, opts.Timeout)
		default:
			o.err = err
		}
		return o
	}
	o.icon = ic

	if write {
		o.out = ic.Location.File(opts.Ext)
		put := r.writeFile
		if put == nil {
			put = writeFile
		}
		o.err = put(opts.Target, o.out, ic.Render(tpl))
	}
	return o
}

// =============================================================================
// Filesystem
// =============================================================================

// clearTarget removes the previous generation and recreates the root.
func clearTarget(target string) error {
	if err := os.RemoveAll(target); err != nil {
		return errors.Wrap(errors.ErrCodeTarget, err, "clear target %s", target)
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeTarget, err, "create target %s", target)
	}
	return nil
}

// writeFile writes content to rel below root through a temporary file, so
// a failed write never leaves a partial module behind.
func writeFile(root, rel, content string) error {
	dst := filepath.Join(root, filepath.FromSlash(rel))
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.WrapWrite(err, rel)
	}
	tmp, err := os.CreateTemp(dir, ".svgicon-*")
	if err != nil {
		return errors.WrapWrite(err, rel)
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.WrapWrite(err, rel)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.WrapWrite(err, rel)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return errors.WrapWrite(err, rel)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return errors.WrapWrite(err, rel)
	}
	return nil
}

func sortIcons(icons []icon.Icon) []icon.Icon {
	slices.SortFunc(icons, func(a, b icon.Icon) int {
		return asset.Compare(a.Location, b.Location)
	})
	return icons
}

func sortFailures(failures []Failure) []Failure {
	slices.SortFunc(failures, func(a, b Failure) int {
		return strings.Compare(a.Rel, b.Rel)
	})
	return failures
}
