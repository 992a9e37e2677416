package formatter

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/penwyp/go-fade-canvas/internal/util"
	"golang.org/x/term"
)

const (
	defaultTermWidth = 80
	minLabelWidth    = 8
	timeLayout       = "2006-01-02 15:04:05"
)

// TableFormatter renders the report as box-drawn tables.
type TableFormatter struct {
	color bool
	width int
}

func NewTableFormatter(color bool) *TableFormatter {
	return &TableFormatter{color: color, width: terminalWidth()}
}

func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w < 40 {
		return defaultTermWidth
	}
	return w
}

type tableWriter struct {
	w   io.Writer
	err error
}

func (t *tableWriter) printf(format string, args ...interface{}) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, format, args...)
}

// border prints a top, middle or bottom rule.
func (t *tableWriter) border(widths []int, kind string) {
	var left, middle, right string
	switch kind {
	case "top":
		left, middle, right = "┌", "┬", "┐"
	case "middle":
		left, middle, right = "├", "┼", "┤"
	default:
		left, middle, right = "└", "┴", "┘"
	}
	t.printf("%s", left)
	for i, width := range widths {
		t.printf("%s", strings.Repeat("─", width+2))
		if i < len(widths)-1 {
			t.printf("%s", middle)
		}
	}
	t.printf("%s\n", right)
}

// row prints cells already padded to their widths.
func (t *tableWriter) row(cells []string) {
	t.printf("│")
	for _, c := range cells {
		t.printf(" %s │", c)
	}
	t.printf("\n")
}

func columnWidths(headers []string, rows [][]string) []int {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = util.GetDisplayWidth(h)
	}
	for _, r := range rows {
		for i, v := range r {
			if w := util.GetDisplayWidth(v); w > widths[i] {
				widths[i] = w
			}
		}
	}
	return widths
}

// table prints headers and rows; columns listed in right are right-aligned. decorate may
// prefix a padded cell with escape sequences that take no width.
func (t *tableWriter) table(headers []string, rows [][]string, right map[int]bool, decorate func(row, col int, padded string) string) {
	widths := columnWidths(headers, rows)
	pad := func(i int, v string) string {
		if right[i] {
			return util.PadLeft(v, widths[i])
		}
		return util.PadRight(v, widths[i])
	}

	t.border(widths, "top")
	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = pad(i, h)
	}
	t.row(cells)
	t.border(widths, "middle")
	for ri, r := range rows {
		for i, v := range r {
			cells[i] = pad(i, v)
			if decorate != nil {
				cells[i] = decorate(ri, i, cells[i])
			}
		}
		t.row(cells)
	}
	t.border(widths, "bottom")
}

func (f *TableFormatter) title(s string) string {
	if f.color {
		return util.FormatDataTitle(s)
	}
	return s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(timeLayout)
}

func (f *TableFormatter) Format(w io.Writer, r *Report) error {
	t := &tableWriter{w: w}
	total := r.Width * r.Height

	header := "Fade Canvas"
	if f.color {
		header = util.FormatHeaderTitle(header)
	}
	t.printf("%s  %s\n\n", header, r.DataDir)

	t.printf("%s\n", f.title("Canvas"))
	overview := [][]string{
		{"Size", fmt.Sprintf("%dx%d", r.Width, r.Height)},
		{"Version", fmt.Sprintf("%d", r.Version)},
		{"Live", fmt.Sprintf("%s (%s)", util.FormatNumber(r.Live), util.FormatPercent(r.Live, total))},
		{"Fading", util.FormatNumber(r.Fading)},
		{"Dead", util.FormatNumber(r.Dead)},
		{"Oldest paint", formatTime(r.OldestPaint)},
		{"Newest paint", formatTime(r.NewestPaint)},
		{"Next death", formatTime(r.NextDeath)},
		{"Gallery", util.FormatNumber(r.Gallery)},
	}
	t.table([]string{"Field", "Value"}, overview, nil, nil)

	if len(r.TopColors) > 0 {
		t.printf("\n%s\n", f.title("Top Colors"))
		rows := make([][]string, len(r.TopColors))
		for i, c := range r.TopColors {
			rows[i] = []string{"  " + c.Hex, util.FormatNumber(c.Count), util.FormatPercent(c.Count, r.Live)}
		}
		t.table([]string{"Color", "Pixels", "Share"}, rows, map[int]bool{1: true, 2: true},
			func(row, col int, padded string) string {
				if col != 0 || !f.color {
					return padded
				}
				c := r.TopColors[row]
				return util.Swatch(c.R, c.G, c.B) + padded[2:]
			})
	}

	t.printf("\n%s\n", f.title(fmt.Sprintf("Snapshots (%d)", len(r.Snapshots))))
	if len(r.Snapshots) == 0 {
		t.printf("  none\n")
		return t.err
	}
	labelWidth := f.width - 36 - 20 - 5 - 13
	if labelWidth < minLabelWidth {
		labelWidth = minLabelWidth
	}
	rows := make([][]string, len(r.Snapshots))
	for i, s := range r.Snapshots {
		image := "no"
		if s.HasImage {
			image = "yes"
		}
		rows[i] = []string{s.ID, s.Timestamp.Format(timeLayout), runewidth.Truncate(s.Label, labelWidth, "…"), image}
	}
	t.table([]string{"ID", "Time", "Label", "Image"}, rows, nil, nil)
	return t.err
}
