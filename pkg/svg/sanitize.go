package svg

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/matzehuels/svgicon/pkg/errors"
)

// IDPrefix is the reserved prefix carried by every id the sanitizer keeps.
const IDPrefix = "svgicon-"

// Sanitizer cleans a raw SVG document. Implementations must be safe for
// concurrent use.
type Sanitizer interface {
	Sanitize(ctx context.Context, src []byte) (Sanitized, error)
}

// Sanitized is the output of a [Sanitizer].
type Sanitized struct {
	markup  string
	width   float64
	height  float64
	viewBox string
}

// NewSanitized wraps the output of an external sanitizer. Width and height
// are zero when unknown; viewBox is empty when the source had none.
func NewSanitized(markup string, width, height float64, viewBox string) Sanitized {
	return Sanitized{markup: markup, width: width, height: height, viewBox: viewBox}
}

// Markup returns the full sanitized document, outer <svg> included.
func (s Sanitized) Markup() string { return s.markup }

// Size returns the intrinsic width and height; zero means unknown.
func (s Sanitized) Size() (width, height float64) { return s.width, s.height }

// ViewBox returns the four-number view box, or "" if the source had none.
func (s Sanitized) ViewBox() string { return s.viewBox }

type sanitizedJSON struct {
	Markup  string  `json:"markup"`
	Width   float64 `json:"width,omitempty"`
	Height  float64 `json:"height,omitempty"`
	ViewBox string  `json:"view_box,omitempty"`
}

// MarshalJSON implements json.Marshaler so results can be cached.
func (s Sanitized) MarshalJSON() ([]byte, error) {
	return json.Marshal(sanitizedJSON{Markup: s.markup, Width: s.width, Height: s.height, ViewBox: s.viewBox})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Sanitized) UnmarshalJSON(data []byte) error {
	var v sanitizedJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = NewSanitized(v.Markup, v.Width, v.Height, v.ViewBox)
	return nil
}

// =============================================================================
// Default sanitizer
// =============================================================================

// SanitizerVersion changes whenever the default sanitizer's output changes,
// which invalidates cached results.
const SanitizerVersion = "2"

// svgNamespace is the SVG namespace URI.
const svgNamespace = "http://www.w3.org/2000/svg"

// droppedElements are removed together with their subtree.
var droppedElements = map[string]bool{
	"title":    true,
	"desc":     true,
	"metadata": true,
	"style":    true,
	"script":   true,
}

// editorPrefixes are namespace prefixes written by drawing tools.
var editorPrefixes = map[string]bool{
	"sodipodi": true,
	"inkscape": true,
	"sketch":   true,
	"serif":    true,
	"i":        true,
	"x":        true,
	"graph":    true,
}

var droppedAttrs = map[string]bool{
	"version":           true,
	"enable-background": true,
	"data-name":         true,
}

var (
	numberRe     = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`)
	leadNumRe    = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?`)
	listSepRe    = regexp.MustCompile(`[\s,]+`)
	urlRefRe     = regexp.MustCompile(`url\(\s*['"]?#([^'")\s]+)['"]?\s*\)`)
	entityDeclRe = regexp.MustCompile(`<!ENTITY\s+(\S+)\s+["']([^"']*)["']\s*>`)
)

type xmlSanitizer struct{}

// NewSanitizer returns the built-in sanitizer.
func NewSanitizer() Sanitizer {
	return xmlSanitizer{}
}

// node is a parsed element or a text run.
type node struct {
	name     xml.Name
	attrs    []xml.Attr
	children []*node
	text     string
	isText   bool
}

func (n *node) attr(local string) (string, bool) {
	for _, a := range n.attrs {
		if a.Name.Space == "" && a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

func (n *node) removeAttrs(locals ...string) {
	kept := n.attrs[:0]
	for _, a := range n.attrs {
		drop := false
		if a.Name.Space == "" {
			for _, l := range locals {
				if a.Name.Local == l {
					drop = true
					break
				}
			}
		}
		if !drop {
			kept = append(kept, a)
		}
	}
	n.attrs = kept
}

// Sanitize implements Sanitizer.
func (xmlSanitizer) Sanitize(ctx context.Context, src []byte) (Sanitized, error) {
	root, err := parse(ctx, src)
	if err != nil {
		return Sanitized{}, err
	}
	if root.name.Space != "" || root.name.Local != "svg" {
		return Sanitized{}, errors.New(errors.ErrCodeSanitize, "root element is <%s>, want <svg>", qualified(root.name))
	}

	width, _ := parseLength(root, "width")
	height, _ := parseLength(root, "height")
	viewBox := parseViewBox(root)

	refs := collectRefs(root, nil)
	pruneDefs(root, refs)
	convertShapes(root)
	renameIDs(root, refs)

	var buf bytes.Buffer
	write(&buf, root)
	return NewSanitized(buf.String(), width, height, viewBox), nil
}

// frame is one open element during parsing; n is nil inside dropped subtrees.
type frame struct {
	name xml.Name
	n    *node
}

// parse builds a cleaned element tree. Dropped elements and attributes never
// enter the tree.
func parse(ctx context.Context, src []byte) (*node, error) {
	d := xml.NewDecoder(bytes.NewReader(src))
	d.Strict = true
	d.Entity = map[string]string{}

	var (
		root  *node
		stack []frame
		skip  int // depth inside a dropped subtree
		// prefixes bound to the SVG namespace; their elements are written
		// unprefixed
		svgPrefixes = map[string]bool{}
	)

	for i := 0; ; i++ {
		if i%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrap(errors.ErrCodeTimeout, err, "sanitize interrupted")
			}
		}

		tok, err := d.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeSanitize, err, "malformed document")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if root != nil && len(stack) == 0 {
				return nil, errors.New(errors.ErrCodeSanitize, "multiple root elements")
			}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" && a.Value == svgNamespace {
					svgPrefixes[a.Name.Local] = true
				}
			}
			name := t.Name
			if svgPrefixes[name.Space] {
				name.Space = ""
			}
			if skip > 0 || (len(stack) > 0 && dropElement(name)) {
				skip++
				stack = append(stack, frame{name: t.Name})
				continue
			}
			n := &node{name: name, attrs: cleanAttrs(t.Attr, svgPrefixes)}
			if len(stack) == 0 {
				root = n
				if name != t.Name {
					n.setDefaultNamespace()
				}
			} else {
				parent := stack[len(stack)-1].n
				parent.children = append(parent.children, n)
			}
			stack = append(stack, frame{name: t.Name, n: n})

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, errors.New(errors.ErrCodeSanitize, "unexpected </%s>", qualified(t.Name))
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if top.name != t.Name {
				return nil, errors.New(errors.ErrCodeSanitize, "element <%s> closed by </%s>", qualified(top.name), qualified(t.Name))
			}
			if top.n == nil {
				skip--
			}

		case xml.CharData:
			if len(stack) == 0 {
				if len(bytes.TrimSpace(t)) > 0 {
					return nil, errors.New(errors.ErrCodeSanitize, "text outside the root element")
				}
				continue
			}
			if skip > 0 || len(bytes.TrimSpace(t)) == 0 {
				continue
			}
			parent := stack[len(stack)-1].n
			parent.children = append(parent.children, &node{isText: true, text: string(t)})

		case xml.Directive:
			// Illustrator declares entities in the doctype and uses them in attributes.
			for _, m := range entityDeclRe.FindAllSubmatch(t, -1) {
				d.Entity[string(m[1])] = string(m[2])
			}
		}
	}

	if len(stack) != 0 {
		return nil, errors.New(errors.ErrCodeSanitize, "unexpected end of document")
	}
	if root == nil {
		return nil, errors.New(errors.ErrCodeSanitize, "document has no root element")
	}
	return root, nil
}

func dropElement(name xml.Name) bool {
	if editorPrefixes[name.Space] {
		return true
	}
	return name.Space == "" && droppedElements[name.Local]
}

func cleanAttrs(attrs []xml.Attr, svgPrefixes map[string]bool) []xml.Attr {
	out := make([]xml.Attr, 0, len(attrs))
	for _, a := range attrs {
		switch {
		case a.Name.Space == "xmlns" && svgPrefixes[a.Name.Local]:
		case editorPrefixes[a.Name.Space]:
		case a.Name.Space == "xmlns" && editorPrefixes[a.Name.Local]:
		case a.Name.Space == "xml" && a.Name.Local == "space":
		case a.Name.Space == "" && droppedAttrs[a.Name.Local]:
		case a.Name.Space == "" && strings.HasPrefix(strings.ToLower(a.Name.Local), "on"):
		default:
			out = append(out, a)
		}
	}
	return out
}

// setDefaultNamespace declares the SVG namespace on a root whose prefix was
// removed.
func (n *node) setDefaultNamespace() {
	for _, a := range n.attrs {
		if a.Name.Space == "" && a.Name.Local == "xmlns" {
			return
		}
	}
	n.attrs = append([]xml.Attr{{Name: xml.Name{Local: "xmlns"}, Value: svgNamespace}}, n.attrs...)
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// =============================================================================
// Size and view box
// =============================================================================

// parseLength reads a root dimension the way parseFloat would, ignoring
// trailing units. Percentages and non-positive values are unknown.
func parseLength(n *node, local string) (float64, bool) {
	v, ok := n.attr(local)
	if !ok {
		return 0, false
	}
	v = strings.TrimSpace(v)
	if strings.HasSuffix(v, "%") {
		return 0, false
	}
	m := leadNumRe.FindString(v)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return f, true
}

func parseViewBox(n *node) string {
	v, ok := n.attr("viewBox")
	if !ok {
		return ""
	}
	nums, ok := parseNumbers(v)
	if !ok || len(nums) != 4 {
		return ""
	}
	parts := make([]string, 4)
	for i, f := range nums {
		parts[i] = formatNumber(f)
	}
	return strings.Join(parts, " ")
}

func parseNumbers(s string) ([]float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	fields := listSepRe.Split(s, -1)
	nums := make([]float64, 0, len(fields))
	for _, f := range fields {
		if !numberRe.MatchString(f) {
			return nil, false
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, false
		}
		nums = append(nums, v)
	}
	return nums, true
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// =============================================================================
// Identifiers
// =============================================================================

// collectRefs returns the set of ids referenced through url(#id) or href="#id".
func collectRefs(n *node, refs map[string]bool) map[string]bool {
	if refs == nil {
		refs = map[string]bool{}
	}
	if n.isText {
		return refs
	}
	for _, a := range n.attrs {
		if a.Name.Local == "href" && strings.HasPrefix(a.Value, "#") {
			refs[a.Value[1:]] = true
		}
		for _, m := range urlRefRe.FindAllStringSubmatch(a.Value, -1) {
			refs[m[1]] = true
		}
	}
	for _, c := range n.children {
		collectRefs(c, refs)
	}
	return refs
}

// pruneDefs drops <defs> children that hold no referenced id, then drops
// <defs> elements left empty.
func pruneDefs(n *node, refs map[string]bool) {
	kept := n.children[:0]
	for _, c := range n.children {
		if c.isText {
			kept = append(kept, c)
			continue
		}
		if c.name.Space == "" && c.name.Local == "defs" {
			defKids := c.children[:0]
			for _, dc := range c.children {
				if !dc.isText && hasReferencedID(dc, refs) {
					defKids = append(defKids, dc)
				}
			}
			c.children = defKids
			if len(c.children) == 0 {
				continue
			}
		}
		pruneDefs(c, refs)
		kept = append(kept, c)
	}
	n.children = kept
}

func hasReferencedID(n *node, refs map[string]bool) bool {
	if n.isText {
		return false
	}
	if id, ok := n.attr("id"); ok && refs[id] {
		return true
	}
	for _, c := range n.children {
		if hasReferencedID(c, refs) {
			return true
		}
	}
	return false
}

// renameIDs gives each referenced id a short name under IDPrefix in document
// order, removes unreferenced ids, and rewrites references.
func renameIDs(root *node, refs map[string]bool) {
	mapping := map[string]string{}
	var assign func(n *node)
	assign = func(n *node) {
		if n.isText {
			return
		}
		if id, ok := n.attr("id"); ok {
			if refs[id] {
				if _, seen := mapping[id]; !seen {
					mapping[id] = IDPrefix + shortName(len(mapping))
				}
			} else {
				n.removeAttrs("id")
			}
		}
		for _, c := range n.children {
			assign(c)
		}
	}
	assign(root)

	var rewrite func(n *node)
	rewrite = func(n *node) {
		if n.isText {
			return
		}
		for i, a := range n.attrs {
			switch {
			case a.Name.Space == "" && a.Name.Local == "id":
				if to, ok := mapping[a.Value]; ok {
					n.attrs[i].Value = to
				}
			case a.Name.Local == "href" && strings.HasPrefix(a.Value, "#"):
				if to, ok := mapping[a.Value[1:]]; ok {
					n.attrs[i].Value = "#" + to
				}
			default:
				n.attrs[i].Value = urlRefRe.ReplaceAllStringFunc(a.Value, func(m string) string {
					id := urlRefRe.FindStringSubmatch(m)[1]
					if to, ok := mapping[id]; ok {
						return "url(#" + to + ")"
					}
					return m
				})
			}
		}
		for _, c := range n.children {
			rewrite(c)
		}
	}
	rewrite(root)
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// shortName maps 0, 1, … to a, b, … Z, aa, ab, …
func shortName(i int) string {
	var b []byte
	for i++; i > 0; i /= len(idAlphabet) {
		i--
		b = append([]byte{idAlphabet[i%len(idAlphabet)]}, b...)
	}
	return string(b)
}

// =============================================================================
// Shapes
// =============================================================================

// convertShapes rewrites rect, line, polyline and polygon into path elements
// when their geometry is plain numbers. Circles and ellipses are kept.
func convertShapes(n *node) {
	if n.isText {
		return
	}
	if n.name.Space == "" {
		if d, drop, ok := shapePath(n); ok {
			n.name.Local = "path"
			n.removeAttrs(drop...)
			n.attrs = append([]xml.Attr{{Name: xml.Name{Local: "d"}, Value: d}}, n.attrs...)
		}
	}
	for _, c := range n.children {
		convertShapes(c)
	}
}

func shapePath(n *node) (d string, drop []string, ok bool) {
	num := func(local string) (float64, bool) {
		v, present := n.attr(local)
		if !present {
			return 0, true
		}
		v = strings.TrimSpace(v)
		if !numberRe.MatchString(v) {
			return 0, false
		}
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}

	switch n.name.Local {
	case "rect":
		rx, okx := num("rx")
		ry, oky := num("ry")
		if !okx || !oky || rx != 0 || ry != 0 {
			return "", nil, false
		}
		x, ok1 := num("x")
		y, ok2 := num("y")
		w, ok3 := num("width")
		h, ok4 := num("height")
		if !ok1 || !ok2 || !ok3 || !ok4 || w <= 0 || h <= 0 {
			return "", nil, false
		}
		d = fmt.Sprintf("M%s %sH%sV%sH%sz",
			formatNumber(x), formatNumber(y), formatNumber(x+w), formatNumber(y+h), formatNumber(x))
		return d, []string{"x", "y", "width", "height", "rx", "ry"}, true

	case "line":
		x1, ok1 := num("x1")
		y1, ok2 := num("y1")
		x2, ok3 := num("x2")
		y2, ok4 := num("y2")
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return "", nil, false
		}
		d = fmt.Sprintf("M%s %sL%s %s", formatNumber(x1), formatNumber(y1), formatNumber(x2), formatNumber(y2))
		return d, []string{"x1", "y1", "x2", "y2"}, true

	case "polyline", "polygon":
		v, present := n.attr("points")
		if !present {
			return "", nil, false
		}
		pts, valid := parseNumbers(v)
		if !valid || len(pts) < 4 || len(pts)%2 != 0 {
			return "", nil, false
		}
		var b strings.Builder
		for i := 0; i < len(pts); i += 2 {
			switch i {
			case 0:
				b.WriteByte('M')
			case 2:
				b.WriteByte('L')
			default:
				b.WriteByte(' ')
			}
			b.WriteString(formatNumber(pts[i]))
			b.WriteByte(' ')
			b.WriteString(formatNumber(pts[i+1]))
		}
		if n.name.Local == "polygon" {
			b.WriteByte('z')
		}
		return b.String(), []string{"points"}, true
	}
	return "", nil, false
}

// =============================================================================
// Serialization
// =============================================================================

var (
	attrEscaper = strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `>`, "&gt;", `"`, "&quot;", "\n", "&#10;", "\r", "&#13;", "\t", "&#9;")
	textEscaper = strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `>`, "&gt;")
)

func write(buf *bytes.Buffer, n *node) {
	if n.isText {
		buf.WriteString(textEscaper.Replace(n.text))
		return
	}
	buf.WriteByte('<')
	buf.WriteString(qualified(n.name))
	for _, a := range n.attrs {
		buf.WriteByte(' ')
		buf.WriteString(qualified(a.Name))
		buf.WriteString(`="`)
		buf.WriteString(attrEscaper.Replace(a.Value))
		buf.WriteByte('"')
	}
	if len(n.children) == 0 {
		buf.WriteString("/>")
		return
	}
	buf.WriteByte('>')
	for _, c := range n.children {
		write(buf, c)
	}
	buf.WriteString("</")
	buf.WriteString(qualified(n.name))
	buf.WriteByte('>')
}
