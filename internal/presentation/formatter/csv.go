package formatter

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/penwyp/go-fade-canvas/internal/util"
)

// CSVFormatter dumps one row per live cell.
type CSVFormatter struct{}

func NewCSVFormatter() *CSVFormatter {
	return &CSVFormatter{}
}

func (f *CSVFormatter) Format(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)

	headers := []string{"x", "y", "color", "alpha", "initial_alpha", "painted_at", "fade_start", "fade_end"}
	if err := cw.Write(headers); err != nil {
		return err
	}
	for _, row := range r.Cells {
		record := []string{
			strconv.Itoa(row.X),
			strconv.Itoa(row.Y),
			util.FormatHexColor(row.Cell.R, row.Cell.G, row.Cell.B),
			strconv.Itoa(int(row.Cell.A)),
			strconv.Itoa(int(row.Cell.InitialAlpha)),
			row.PaintedAt.UTC().Format(time.RFC3339),
			row.FadeStart.UTC().Format(time.RFC3339),
			row.FadeEnd.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
