package asset

import (
	"context"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/matzehuels/svgicon/pkg/errors"
)

// DefaultPattern selects every SVG document below the source root.
const DefaultPattern = "**/*.svg"

// Asset is one source SVG document. It is immutable once loaded.
type Asset struct {
	Abs      string   // absolute path on disk
	Rel      string   // slash-separated path relative to the source root
	Location Location // derived from Rel
	Content  []byte   // raw document text
}

// Discover returns the slash-separated paths of all files under root that
// match pattern. A missing or unreadable root and an invalid pattern are
// reported as DISCOVERY_FAILED; nothing is returned in that case.
func Discover(ctx context.Context, root, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.New(errors.ErrCodeDiscovery, "invalid glob pattern %q", pattern)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDiscovery, err, "read source root %s", root)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrCodeDiscovery, "source root %s is not a directory", root)
	}

	matches, err := doublestar.Glob(os.DirFS(root), pattern,
		doublestar.WithFilesOnly(),
		doublestar.WithFailOnIOErrors(),
	)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDiscovery, err, "scan %s", root)
	}
	return matches, nil
}

// Load reads the asset at rel below root.
func Load(root, rel string) (Asset, error) {
	loc, err := ParseLocation(rel)
	if err != nil {
		return Asset{}, err
	}
	abs, err := filepath.Abs(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return Asset{}, errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve %s", rel)
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return Asset{}, errors.Wrap(errors.ErrCodeRead, err, "read %s", rel)
	}
	return Asset{Abs: abs, Rel: rel, Location: loc, Content: content}, nil
}


// Match reports whether a slash-separated relative path matches pattern.
func Match(pattern, rel string) bool {
	ok, err := doublestar.Match(pattern, rel)
	return err == nil && ok
}
