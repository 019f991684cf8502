package svg

import (
	"regexp"
	"strconv"
	"strings"
)

// PaintMarker is prepended to fill and stroke attribute names. The rendering
// component reads _fill/_stroke as defaults it may override.
const PaintMarker = "_"

var (
	shapeTagRe = regexp.MustCompile(`<(path|rect|circle|polygon|line|polyline|ellipse)([\s/>])`)
	startTagRe = regexp.MustCompile(`<[A-Za-z_][^<>]*>`)
	attrRe     = regexp.MustCompile(`(\s)([A-Za-z_:][-A-Za-z0-9_:.]*)(\s*=\s*)("[^"]*"|'[^']*')`)
)

// Annotated is sanitized markup with shape ordinals and marked paint
// attributes. It can only be produced by [Annotate].
type Annotated struct {
	markup  string
	width   float64
	height  float64
	viewBox string
	shapes  int
}

// Markup returns the annotated document.
func (a Annotated) Markup() string { return a.markup }

// Annotate numbers every paintable shape in document order starting at 0 and
// renames fill/stroke attributes on every element. The result is a new value;
// s is not modified.
func Annotate(s Sanitized) Annotated {
	markup, shapes := numberShapes(s.markup)
	return Annotated{
		markup:  markPaint(markup),
		width:   s.width,
		height:  s.height,
		viewBox: s.viewBox,
		shapes:  shapes,
	}
}

func numberShapes(m string) (string, int) {
	matches := shapeTagRe.FindAllStringSubmatchIndex(m, -1)
	if len(matches) == 0 {
		return m, 0
	}
	var b strings.Builder
	b.Grow(len(m) + len(matches)*10)
	last := 0
	for pid, loc := range matches {
		nameEnd := loc[3]
		b.WriteString(m[last:nameEnd])
		b.WriteString(` pid="`)
		b.WriteString(strconv.Itoa(pid))
		b.WriteByte('"')
		last = nameEnd
	}
	b.WriteString(m[last:])
	return b.String(), len(matches)
}

func markPaint(m string) string {
	return startTagRe.ReplaceAllStringFunc(m, func(tag string) string {
		return attrRe.ReplaceAllStringFunc(tag, func(attr string) string {
			sub := attrRe.FindStringSubmatch(attr)
			if sub[2] != "fill" && sub[2] != "stroke" {
				return attr
			}
			return sub[1] + PaintMarker + sub[2] + sub[3] + sub[4]
		})
	})
}
