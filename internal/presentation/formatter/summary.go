package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/penwyp/go-fade-canvas/internal/util"
)

// SummaryFormatter prints a short plain-text report.
type SummaryFormatter struct{}

// NewSummaryFormatter creates a new instance of SummaryFormatter.
func NewSummaryFormatter() *SummaryFormatter {
	return &SummaryFormatter{}
}

// Format writes the summary.
func (f *SummaryFormatter) Format(w io.Writer, r *Report) error {
	var b strings.Builder
	total := r.Width * r.Height

	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString("Fade Canvas Summary\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	fmt.Fprintf(&b, "Data Dir: %s\n", r.DataDir)
	fmt.Fprintf(&b, "Canvas: %dx%d (version %d)\n\n", r.Width, r.Height, r.Version)

	if r.Live == 0 {
		b.WriteString("Canvas is blank\n")
	} else {
		b.WriteString("Pixels:\n")
		fmt.Fprintf(&b, "  Live: %s (%s)\n", util.FormatNumber(r.Live), util.FormatPercent(r.Live, total))
		fmt.Fprintf(&b, "  Fading: %s\n", util.FormatNumber(r.Fading))
		fmt.Fprintf(&b, "  Last paint: %s ago\n", util.FormatDuration(r.GeneratedAt.Sub(*r.NewestPaint)))
		fmt.Fprintf(&b, "  Next death: in %s\n", util.FormatDuration(r.NextDeath.Sub(r.GeneratedAt)))
		if len(r.TopColors) > 0 {
			fmt.Fprintf(&b, "  Top color: %s x%d\n", r.TopColors[0].Hex, r.TopColors[0].Count)
		}
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Snapshots: %d\n", len(r.Snapshots))
	if n := len(r.Snapshots); n > 0 {
		last := r.Snapshots[n-1]
		fmt.Fprintf(&b, "  Latest: %s %q at %s\n", last.ID, last.Label, last.Timestamp.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(&b, "Gallery: %d\n\n", r.Gallery)
	b.WriteString(strings.Repeat("=", 60) + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}
