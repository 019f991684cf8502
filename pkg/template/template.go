// Package template renders icon modules from text templates with ${name}
// placeholders.
//
// Substitution is a single pass: values are never rescanned, so a variable
// containing "${x}" is emitted literally. Unknown or empty variables render as
// the empty string.
package template

import (
	_ "embed"
	"os"
	"regexp"
	"strings"

	"github.com/matzehuels/svgicon/pkg/errors"
)

// Style selects the module system used by generated files.
type Style string

const (
	StyleRequire Style = "require" // CommonJS require('./x')
	StyleImport  Style = "import"  // ES module import './x'
)

// Variables bound for every icon.
const (
	VarName    = "name"
	VarWidth   = "width"
	VarHeight  = "height"
	VarViewBox = "viewBox"
	VarData    = "data"
)

// Names lists the variables bound for every icon.
func Names() []string {
	return []string{VarName, VarWidth, VarHeight, VarViewBox, VarData}
}

var (
	//go:embed templates/icon.tpl.txt
	requireTemplate string

	//go:embed templates/icon.tpl.es6.txt
	importTemplate string
)

var placeholderRe = regexp.MustCompile(`\$\{(\w+)\}`)

// Vars maps placeholder names to their rendered values.
type Vars map[string]string

// Builtin returns the embedded template for style.
func Builtin(style Style) string {
	if style == StyleImport {
		return importTemplate
	}
	return requireTemplate
}

// Load reads a template from path. An empty path returns the built-in
// template for style.
func Load(path string, style Style) (string, error) {
	if path == "" {
		return Builtin(style), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidTemplate, err, "read template %s", path)
	}
	return string(data), nil
}

// Compile replaces every ${name} placeholder in tpl with vars[name].
func Compile(tpl string, vars Vars) string {
	return placeholderRe.ReplaceAllStringFunc(tpl, func(m string) string {
		return vars[m[2:len(m)-1]]
	})
}

// Placeholders lists the distinct placeholder names used by tpl in order of
// first appearance.
func Placeholders(tpl string) []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(tpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

var jsEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\u2028", `\u2028`,
	"\u2029", `\u2029`,
)

// EscapeJS escapes s for embedding inside a single-quoted JavaScript string.
func EscapeJS(s string) string {
	return jsEscaper.Replace(s)
}
