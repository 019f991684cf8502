package svg

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/matzehuels/svgicon/pkg/asset"
)

var (
	prefixedIDRe  = regexp.MustCompile(`^` + regexp.QuoteMeta(IDPrefix) + `[A-Za-z0-9]+$`)
	prefixedURLRe = regexp.MustCompile(`url\(#` + regexp.QuoteMeta(IDPrefix) + `[A-Za-z0-9]+\)`)
)

// Namespaced is annotated markup whose ids embed the asset location. It can
// only be produced by [Namespace].
type Namespaced struct {
	markup   string
	width    float64
	height   float64
	viewBox  string
	location asset.Location
}

// Markup returns the full document, outer <svg> included.
func (n Namespaced) Markup() string { return n.markup }

// Size returns the intrinsic width and height; zero means unknown.
func (n Namespaced) Size() (width, height float64) { return n.width, n.height }

// ViewBox returns the source view box, or "".
func (n Namespaced) ViewBox() string { return n.viewBox }

// Location returns the location the ids were derived from.
func (n Namespaced) Location() asset.Location { return n.location }

// Body returns the markup inside the outer <svg> element.
func (n Namespaced) Body() string {
	m := n.markup
	if !strings.HasPrefix(m, "<") {
		return m
	}
	end := strings.IndexByte(m, '>')
	if end < 0 || m[end-1] == '/' {
		return ""
	}
	closeAt := strings.LastIndex(m, "</")
	if closeAt <= end {
		return ""
	}
	return m[end+1 : closeAt]
}

// Namespace rewrites every IDPrefix identifier into
// IDPrefix + Fragment(loc) + "-" + original suffix. Only identifier positions
// change: id attributes, href="#…" and url(#…) in attribute values. Text
// content is left alone.
func Namespace(a Annotated, loc asset.Location) Namespaced {
	prefix := IDPrefix + Fragment(loc) + "-"
	scoped := func(id string) string {
		return prefix + id[len(IDPrefix):]
	}
	markup := startTagRe.ReplaceAllStringFunc(a.markup, func(tag string) string {
		return attrRe.ReplaceAllStringFunc(tag, func(attr string) string {
			sub := attrRe.FindStringSubmatch(attr)
			name, quoted := sub[2], sub[4]
			quote, v := quoted[:1], quoted[1:len(quoted)-1]
			switch {
			case name == "id":
				if prefixedIDRe.MatchString(v) {
					v = scoped(v)
				}
			case name == "href" || strings.HasSuffix(name, ":href"):
				if id, ok := strings.CutPrefix(v, "#"); ok && prefixedIDRe.MatchString(id) {
					v = "#" + scoped(id)
				}
			default:
				v = prefixedURLRe.ReplaceAllStringFunc(v, func(u string) string {
					return "url(#" + scoped(u[len("url(#"):len(u)-1]) + ")"
				})
			}
			return sub[1] + name + sub[3] + quote + v + quote
		})
	})
	return Namespaced{
		markup:   markup,
		width:    a.width,
		height:   a.height,
		viewBox:  a.viewBox,
		location: loc,
	}
}

// Fragment renders loc as its directory components and base name joined by
// "-". Bytes outside [A-Za-z0-9] are written as _xx hex, so components never
// contain the delimiter and distinct locations always give distinct fragments.
func Fragment(loc asset.Location) string {
	parts := make([]string, 0, len(loc.Dirs)+1)
	for _, d := range loc.Dirs {
		parts = append(parts, escapeComponent(d))
	}
	parts = append(parts, escapeComponent(loc.Name))
	return strings.Join(parts, "-")
}

func escapeComponent(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "_%02x", c)
	}
	return b.String()
}
