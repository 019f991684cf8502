// Package icon turns one SVG asset into a compiled icon module.
//
// A [Compiler] runs the fixed chain sanitize → annotate → namespace over an
// [asset.Asset] and resolves the icon's size and view box. [Icon.Render]
// then binds the result to a module template.
package icon

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/matzehuels/svgicon/pkg/asset"
	"github.com/matzehuels/svgicon/pkg/cache"
	"github.com/matzehuels/svgicon/pkg/errors"
	"github.com/matzehuels/svgicon/pkg/observability"
	"github.com/matzehuels/svgicon/pkg/svg"
	"github.com/matzehuels/svgicon/pkg/template"
)

// Sizing fallbacks for documents that carry no usable dimensions.
const (
	DefaultSize    = 16
	DefaultViewBox = "0 0 200 200"
)

// Icon is the compiled form of one asset.
type Icon struct {
	Location asset.Location
	Width    float64
	Height   float64
	ViewBox  string // four space-separated numbers
	Markup   string // namespaced document, outer <svg> included
	Body     string // Markup without the outer <svg> element
}

// New resolves sizing for a namespaced document. An unknown width or height
// becomes DefaultSize. The view box is taken from the source, else derived
// from a known width and height, else DefaultViewBox.
func New(n svg.Namespaced) Icon {
	w, h := n.Size()
	viewBox := n.ViewBox()
	if viewBox == "" {
		if w > 0 && h > 0 {
			viewBox = "0 0 " + formatNumber(w) + " " + formatNumber(h)
		} else {
			viewBox = DefaultViewBox
		}
	}
	if w <= 0 {
		w = DefaultSize
	}
	if h <= 0 {
		h = DefaultSize
	}
	return Icon{
		Location: n.Location(),
		Width:    w,
		Height:   h,
		ViewBox:  viewBox,
		Markup:   n.Markup(),
		Body:     n.Body(),
	}
}

// Name returns the registry name, e.g. "icons/star".
func (i Icon) Name() string {
	return i.Location.Path()
}

// Vars returns the template bindings for the icon. Name and data are
// escaped for single-quoted JavaScript strings, and viewBox is quoted.
func (i Icon) Vars() template.Vars {
	return template.Vars{
		template.VarName:    template.EscapeJS(i.Name()),
		template.VarWidth:   formatNumber(i.Width),
		template.VarHeight:  formatNumber(i.Height),
		template.VarViewBox: "'" + i.ViewBox + "'",
		template.VarData:    template.EscapeJS(i.Body),
	}
}

// Render compiles tpl against the icon.
func (i Icon) Render(tpl string) string {
	return template.Compile(tpl, i.Vars())
}

// Standalone returns the icon as a self-contained SVG document using its
// resolved size and view box.
func (i Icon) Standalone() string {
	var b strings.Builder
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" width="`)
	b.WriteString(formatNumber(i.Width))
	b.WriteString(`" height="`)
	b.WriteString(formatNumber(i.Height))
	b.WriteString(`" viewBox="`)
	b.WriteString(i.ViewBox)
	b.WriteString(`">`)
	b.WriteString(i.Body)
	b.WriteString(`</svg>`)
	return b.String()
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// =============================================================================
// Compiler
// =============================================================================

// Option configures a Compiler.
type Option func(*Compiler)

// WithCache stores sanitized documents in c under keys from keyer. A nil
// keyer means the default keyer.
func WithCache(c cache.Cache, keyer cache.Keyer, ttl time.Duration) Option {
	return func(comp *Compiler) {
		if c != nil {
			comp.cache = c
		}
		if keyer != nil {
			comp.keyer = keyer
		}
		comp.ttl = ttl
	}
}

// WithSanitizer replaces the built-in sanitizer. Cached entries are keyed by
// version, so a different sanitizer must report a different version.
func WithSanitizer(s svg.Sanitizer, version string) Option {
	return func(comp *Compiler) {
		comp.sanitizer = s
		comp.version = version
	}
}

// Compiler compiles assets into icons. It is safe for concurrent use when
// its cache and sanitizer are.
type Compiler struct {
	sanitizer svg.Sanitizer
	version   string
	cache     cache.Cache
	keyer     cache.Keyer
	ttl       time.Duration
}

// NewCompiler returns a compiler using the built-in sanitizer and no cache.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{
		sanitizer: svg.NewSanitizer(),
		version:   svg.SanitizerVersion,
		cache:     cache.NewNullCache(),
		keyer:     cache.NewDefaultKeyer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile runs the full transformation for one asset.
func (c *Compiler) Compile(ctx context.Context, a asset.Asset) (Icon, error) {
	s, err := c.sanitize(ctx, a)
	if err != nil {
		return Icon{}, err
	}
	return New(svg.Namespace(svg.Annotate(s), a.Location)), nil
}

// sanitize consults the cache before running the sanitizer. Cache failures
// degrade to a miss.
func (c *Compiler) sanitize(ctx context.Context, a asset.Asset) (svg.Sanitized, error) {
	hooks := observability.Cache()
	key := c.keyer.SanitizeKey(c.version, a.Content)

	if data, hit, err := c.cache.Get(ctx, key); err == nil && hit {
		var s svg.Sanitized
		if json.Unmarshal(data, &s) == nil {
			hooks.OnCacheHit(ctx, "sanitize")
			return s, nil
		}
	}
	hooks.OnCacheMiss(ctx, "sanitize")

	s, err := c.sanitizer.Sanitize(ctx, a.Content)
	if err != nil {
		if errors.GetCode(err) != "" {
			return svg.Sanitized{}, err
		}
		return svg.Sanitized{}, errors.Wrap(errors.ErrCodeSanitize, err, "sanitize %s", a.Rel)
	}

	if data, err := json.Marshal(s); err == nil {
		if c.cache.Set(ctx, key, data, c.ttl) == nil {
			hooks.OnCacheSet(ctx, "sanitize", len(data))
		}
	}
	return s, nil
}
