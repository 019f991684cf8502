package asset

import (
	"cmp"
	"path"
	"slices"
	"strings"

	"github.com/matzehuels/svgicon/pkg/errors"
)

// Location identifies an asset by its directory components and base name.
// The zero value is not valid; use [ParseLocation].
type Location struct {
	Dirs []string // directory components from the source root, outermost first
	Name string   // base name without extension
}

// ParseLocation derives a Location from a slash-separated path relative to
// the source root. Only the final extension is stripped, so "a.min.svg"
// becomes "a.min".
func ParseLocation(rel string) (Location, error) {
	if err := errors.ValidateRelPath(rel); err != nil {
		return Location{}, err
	}
	dir, file := path.Split(rel)
	name := strings.TrimSuffix(file, path.Ext(file))
	if name == "" {
		return Location{}, errors.New(errors.ErrCodeInvalidPath, "asset %q has an empty base name", rel)
	}
	var dirs []string
	if dir = strings.TrimSuffix(dir, "/"); dir != "" {
		dirs = strings.Split(dir, "/")
	}
	return Location{Dirs: dirs, Name: name}, nil
}

// Path returns the location rendered as "dir/sub/name".
func (l Location) Path() string {
	if len(l.Dirs) == 0 {
		return l.Name
	}
	return strings.Join(l.Dirs, "/") + "/" + l.Name
}

// Dir returns the slash-joined directory part, or "" at the root.
func (l Location) Dir() string {
	return strings.Join(l.Dirs, "/")
}

// File returns the slash-separated output path with the given extension.
func (l Location) File(ext string) string {
	return l.Path() + "." + ext
}

// Shift consumes the first directory component. It returns the consumed
// component and the remaining location; ok is false when the location is
// already at the root.
func (l Location) Shift() (head string, rest Location, ok bool) {
	if len(l.Dirs) == 0 {
		return "", l, false
	}
	return l.Dirs[0], Location{Dirs: l.Dirs[1:], Name: l.Name}, true
}

// String implements fmt.Stringer.
func (l Location) String() string {
	return l.Path()
}

// Compare orders locations by directory components first, then by name, so
// siblings sort together regardless of separator characters in names.
func Compare(a, b Location) int {
	if c := slices.Compare(a.Dirs, b.Dirs); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}
