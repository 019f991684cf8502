// SPDX-License-Identifier: MPL-2.0

// Package watch regenerates icons when the source tree changes.
//
// A Watcher monitors every directory below a root and fires a callback once
// the tree has been quiet for a debounce period. Events inside the window are
// coalesced, so the callback sees the full set of changed paths at once.
package watch

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/matzehuels/svgicon/pkg/asset"
)

// DefaultDebounce is used when Config.Debounce is not positive.
const DefaultDebounce = 300 * time.Millisecond

// defaultIgnores are paths that never trigger a regeneration.
var defaultIgnores = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
}

// Config holds the parameters for a Watcher.
type Config struct {
	// Root is the directory to watch, usually the icon source.
	Root string

	// Patterns select the files that trigger callbacks, relative to Root.
	// An empty slice matches every non-ignored file.
	Patterns []string

	// Ignore lists extra patterns that never trigger callbacks. They are
	// merged with the built-in ignores.
	Ignore []string

	// Debounce is the quiet period after the last event.
	Debounce time.Duration

	// OnChange receives the deduplicated, sorted changed paths relative to
	// Root. Errors are logged and watching continues.
	OnChange func(ctx context.Context, changed []string) error

	Logger *log.Logger
}

// Watcher fires a debounced callback when matching files change. Run must be
// called exactly once.
type Watcher struct {
	cfg      Config
	fsw      *fsnotify.Watcher
	ignores  []string
	debounce time.Duration
	root     string
	logger   *log.Logger
	started  atomic.Bool

	dirsMu sync.Mutex
	dirs   map[string]struct{}
}

// New validates cfg and registers every non-ignored directory below Root.
func New(cfg Config) (*Watcher, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("watch: root directory is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve root: %w", err)
	}
	if info, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("watch: %s is not a directory", root)
	}
	if err := validatePatterns(cfg.Patterns, "watch"); err != nil {
		return nil, err
	}
	if err := validatePatterns(cfg.Ignore, "ignore"); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		ignores:  append(slices.Clone(defaultIgnores), cfg.Ignore...),
		debounce: debounce,
		root:     root,
		logger:   logger,
		dirs:     make(map[string]struct{}),
	}

	if err := w.addDirectories(); err != nil {
		if closeErr := fsw.Close(); closeErr != nil {
			logger.Warn("close watcher after init failure", "error", closeErr)
		}
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is canceled. It returns nil on cancellation
// and an error when the underlying watcher breaks.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("watch: Run called more than once")
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		running atomic.Bool
	)

	// fire runs on the timer goroutine. A callback still in progress
	// reschedules instead of running twice.
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			w.logger.Debug("previous run still in progress, rescheduling")
			mu.Lock()
			if timer != nil {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()

		w.logger.Debug("changes detected", "paths", len(changed))
		if w.cfg.OnChange != nil {
			if err := w.cfg.OnChange(ctx, changed); err != nil {
				w.logger.Error("regeneration failed", "error", err)
			}
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("close watcher", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watch: event channel closed unexpectedly")
			}
			rel, ok := w.relevant(evt)
			if !ok {
				continue
			}
			mu.Lock()
			pending[rel] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watch: error channel closed unexpectedly")
			}
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// relevant reports whether evt should trigger a regeneration and returns its
// path relative to the root. Directory creation, removal and renames always
// count since they move whole groups of assets.
func (w *Watcher) relevant(evt fsnotify.Event) (string, bool) {
	rel, err := filepath.Rel(w.root, evt.Name)
	if err != nil {
		rel = evt.Name
	}
	rel = filepath.ToSlash(rel)
	if w.isIgnored(rel) {
		return "", false
	}

	if evt.Has(fsnotify.Create) && w.maybeAddDir(evt.Name) {
		return rel, true
	}
	if evt.Has(fsnotify.Remove) || evt.Has(fsnotify.Rename) {
		if w.forgetDir(evt.Name) {
			return rel, true
		}
	}
	return rel, w.matchesPatterns(rel)
}

// addDirectories registers every non-ignored directory below the root.
// Inaccessible directories are skipped with a warning.
func (w *Watcher) addDirectories() error {
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			w.logger.Warn("skipping inaccessible path", "path", path, "error", walkErr)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		if rel != "." && w.isIgnoredDir(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		if err := w.add(path); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk %s: %w", w.root, err)
	}
	return nil
}

// maybeAddDir registers a directory created after startup, together with
// any subdirectories it already contains. It reports whether path was a
// directory that is now watched.
func (w *Watcher) maybeAddDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil || w.isIgnoredDir(filepath.ToSlash(rel)) {
		return false
	}
	added := false
	_ = filepath.WalkDir(path, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil || !d.IsDir() {
			return nil
		}
		r, _ := filepath.Rel(w.root, p)
		if w.isIgnoredDir(filepath.ToSlash(r)) {
			return filepath.SkipDir
		}
		if err := w.add(p); err != nil {
			w.logger.Warn("watch new directory", "path", p, "error", err)
			return nil
		}
		added = true
		return nil
	})
	return added
}

func (w *Watcher) add(path string) error {
	if err := w.fsw.Add(path); err != nil {
		return err
	}
	w.dirsMu.Lock()
	w.dirs[path] = struct{}{}
	w.dirsMu.Unlock()
	return nil
}

// forgetDir drops path and everything below it from the watched set. It
// reports whether path was a watched directory.
func (w *Watcher) forgetDir(path string) bool {
	w.dirsMu.Lock()
	defer w.dirsMu.Unlock()
	if _, ok := w.dirs[path]; !ok {
		return false
	}
	prefix := path + string(filepath.Separator)
	for dir := range w.dirs {
		if dir == path || strings.HasPrefix(dir, prefix) {
			delete(w.dirs, dir)
		}
	}
	return true
}

// Watched returns the watched directories relative to the root, sorted.
func (w *Watcher) Watched() []string {
	w.dirsMu.Lock()
	defer w.dirsMu.Unlock()
	out := make([]string, 0, len(w.dirs))
	for dir := range w.dirs {
		rel, err := filepath.Rel(w.root, dir)
		if err != nil {
			continue
		}
		out = append(out, filepath.ToSlash(rel))
	}
	slices.Sort(out)
	return out
}

func (w *Watcher) isIgnored(rel string) bool {
	for _, pat := range w.ignores {
		if asset.Match(pat, rel) {
			return true
		}
	}
	return false
}

// isIgnoredDir also matches directory-only patterns such as "out/**".
func (w *Watcher) isIgnoredDir(rel string) bool {
	return w.isIgnored(rel) || w.isIgnored(rel+"/")
}

func (w *Watcher) matchesPatterns(rel string) bool {
	if len(w.cfg.Patterns) == 0 {
		return true
	}
	for _, pat := range w.cfg.Patterns {
		if asset.Match(pat, rel) {
			return true
		}
	}
	return false
}

// IgnoreTarget returns the ignore pattern excluding target from a watch of
// root, or "" when target lies outside root.
func IgnoreTarget(root, target string) string {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return ""
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return ""
	}
	rel, err := filepath.Rel(absRoot, absTarget)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return doublestar.EscapeMeta(filepath.ToSlash(rel)) + "/**"
}

func validatePatterns(patterns []string, label string) error {
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("watch: invalid %s pattern %q", label, pat)
		}
	}
	return nil
}
