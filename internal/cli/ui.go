package cli

import (
	"fmt"
	"io"
	"path"
	"slices"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/svgicon/pkg/errors"
	"github.com/matzehuels/svgicon/pkg/pipeline"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Public Styles
// =============================================================================

var (
	// StyleTitle for main headings.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for data values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)
)

// =============================================================================
// Internal Styles
// =============================================================================

var (
	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)

	styleTableHeader = lipgloss.NewStyle().Foreground(colorGray).Bold(true).Padding(0, 1)
	styleTableCell   = lipgloss.NewStyle().Padding(0, 1)
)

// =============================================================================
// Icons
// =============================================================================

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
)

// =============================================================================
// Status Output
// =============================================================================

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconSuccess.Render(iconSuccess)+" "+fmt.Sprintf(format, args...))
}

func printError(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconError.Render(iconError)+" "+fmt.Sprintf(format, args...))
}

func printWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconWarning.Render(iconWarning)+" "+StyleWarning.Render(fmt.Sprintf(format, args...)))
}

func printInfo(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconInfo.Render(iconInfo)+" "+fmt.Sprintf(format, args...))
}

// printDetail prints an indented, dimmed line.
func printDetail(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, "  "+StyleDim.Render(fmt.Sprintf(format, args...)))
}

// printFile prints a written file.
func printFile(w io.Writer, path string) {
	fmt.Fprintln(w, "  "+StyleDim.Render(iconArrow)+" "+StyleValue.Render(path))
}

// =============================================================================
// Run Output
// =============================================================================

// printEvent prints one status line per pipeline event.
func printEvent(w io.Writer, e pipeline.Event) {
	switch e.Kind {
	case pipeline.EventIcon:
		printSuccess(w, "%s", e.Path)
	case pipeline.EventManifest:
		printFile(w, e.Path)
	case pipeline.EventSkipped:
		printWarning(w, "skipped %s: %s", e.Path, errors.UserMessage(e.Err))
	}
}

// dirCount is one row of the run summary.
type dirCount struct {
	dir     string
	icons   int
	skipped int
}

// summarize counts icons and skipped assets per source directory, sorted by
// directory with the root first.
func summarize(res *pipeline.Result) []dirCount {
	counts := map[string]*dirCount{}
	get := func(dir string) *dirCount {
		if dir == "" {
			dir = "."
		}
		if c, ok := counts[dir]; ok {
			return c
		}
		c := &dirCount{dir: dir}
		counts[dir] = c
		return c
	}
	for _, ic := range res.Icons {
		get(ic.Location.Dir()).icons++
	}
	for _, f := range res.Failures {
		get(path.Dir(f.Rel)).skipped++
	}

	rows := make([]dirCount, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, *c)
	}
	slices.SortFunc(rows, func(a, b dirCount) int {
		switch {
		case a.dir == b.dir:
			return 0
		case a.dir == ".":
			return -1
		case b.dir == ".":
			return 1
		case a.dir < b.dir:
			return -1
		}
		return 1
	})
	return rows
}

// renderSummary renders the per-directory table of a finished run.
func renderSummary(res *pipeline.Result) string {
	rows := summarize(res)
	data := make([][]string, 0, len(rows)+1)
	for _, r := range rows {
		data = append(data, []string{r.dir, strconv.Itoa(r.icons), strconv.Itoa(r.skipped)})
	}
	data = append(data, []string{"total", strconv.Itoa(res.Stats.Icons), strconv.Itoa(res.Stats.Failures)})

	last := len(data) - 1
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Directory", "Icons", "Skipped").
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == -1:
				return styleTableHeader
			case row == last:
				return styleTableCell.Bold(true)
			case col == 2 && data[row][2] != "0":
				return styleTableCell.Foreground(colorYellow)
			case col > 0:
				return styleTableCell.Foreground(colorCyan)
			}
			return styleTableCell
		})
	return t.Render()
}
