package canvas

import (
	"errors"
	"fmt"
	"strings"
)

// PixelWrite is one client-submitted write. Fields are ints so out-of-range values can be seen and
// dropped instead of silently wrapping.
type PixelWrite struct {
	X int `json:"x"`
	Y int `json:"y"`
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
	A int `json:"a"`
}

// Pixel is a rendered cell state carried by diff events.
type Pixel struct {
	X int   `json:"x"`
	Y int   `json:"y"`
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

// Cell is one grid position's full paint state.
type Cell struct {
	R, G, B, A   uint8
	PaintedAt    int64
	FadeStart    float32
	FadeEnd      float32
	InitialAlpha uint8
}

// Dead reports whether the cell is in the canonical not-aging state.
func (c Cell) Dead() bool {
	return c.PaintedAt == 0
}

// RepaintPolicy decides whether a non-erasing write restarts a live cell's fade clock.
type RepaintPolicy int

const (
	// RepaintDiffColorRefresh refreshes dead cells and cells whose RGB changes.
	RepaintDiffColorRefresh RepaintPolicy = iota
	// RepaintAlways refreshes on every non-transparent write.
	RepaintAlways
	// RepaintNever refreshes only dead cells.
	RepaintNever
)

var ErrUnknownPolicy = errors.New("unknown repaint policy")

// ParseRepaintPolicy accepts "always", "never" and "diff_color_refresh" (the default for "").
func ParseRepaintPolicy(s string) (RepaintPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "diff_color_refresh":
		return RepaintDiffColorRefresh, nil
	case "always":
		return RepaintAlways, nil
	case "never":
		return RepaintNever, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

func (p RepaintPolicy) String() string {
	switch p {
	case RepaintAlways:
		return "always"
	case RepaintNever:
		return "never"
	default:
		return "diff_color_refresh"
	}
}

// refreshes applies the policy to a non-erasing write.
func (p RepaintPolicy) refreshes(wasDead, sameRGB bool) bool {
	switch p {
	case RepaintAlways:
		return true
	case RepaintNever:
		return wasDead
	default:
		return wasDead || !sameRGB
	}
}
