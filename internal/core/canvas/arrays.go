package canvas

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Fixed on-disk widths per cell.
const (
	ColorBytes        = 4
	PaintedAtBytes    = 8
	FadeBytes         = 8 // start and end as float32
	InitialAlphaBytes = 1
)

var ErrCorruptState = errors.New("corrupt persisted grid state")

var blobMagic = [4]byte{'F', 'C', 'G', '1'}

// GridArrays is a detached copy of the four parallel cell arrays.
type GridArrays struct {
	Width        int
	Height       int
	Colors       []byte    // RGBA, 4 bytes per cell
	PaintedAt    []int64   // unix seconds, 0 = dead
	Fade         []float32 // start,end pairs
	InitialAlpha []byte

	// Version is the store's mutation counter at copy time.
	Version uint64
}

// NewGridArrays allocates an all-dead grid.
func NewGridArrays(width, height int) *GridArrays {
	n := width * height
	return &GridArrays{
		Width:        width,
		Height:       height,
		Colors:       make([]byte, n*ColorBytes),
		PaintedAt:    make([]int64, n),
		Fade:         make([]float32, n*2),
		InitialAlpha: make([]byte, n),
	}
}

// Validate checks every array has the size the dimensions imply.
func (a *GridArrays) Validate() error {
	n := a.Width * a.Height
	if a.Width <= 0 || a.Height <= 0 {
		return fmt.Errorf("%w: bad dimensions %dx%d", ErrCorruptState, a.Width, a.Height)
	}
	if len(a.Colors) != n*ColorBytes {
		return fmt.Errorf("%w: colors has %d bytes, want %d", ErrCorruptState, len(a.Colors), n*ColorBytes)
	}
	if len(a.PaintedAt) != n {
		return fmt.Errorf("%w: painted_at has %d cells, want %d", ErrCorruptState, len(a.PaintedAt), n)
	}
	if len(a.Fade) != n*2 {
		return fmt.Errorf("%w: fade has %d values, want %d", ErrCorruptState, len(a.Fade), n*2)
	}
	if len(a.InitialAlpha) != n {
		return fmt.Errorf("%w: initial_alpha has %d cells, want %d", ErrCorruptState, len(a.InitialAlpha), n)
	}
	return nil
}

// EncodePaintedAt encodes timestamps as little-endian int64s.
func EncodePaintedAt(v []int64) []byte {
	out := make([]byte, len(v)*PaintedAtBytes)
	for i, ts := range v {
		binary.LittleEndian.PutUint64(out[i*PaintedAtBytes:], uint64(ts))
	}
	return out
}

// DecodePaintedAt decodes exactly n timestamps.
func DecodePaintedAt(data []byte, n int) ([]int64, error) {
	if len(data) != n*PaintedAtBytes {
		return nil, fmt.Errorf("%w: painted_at is %d bytes, want %d", ErrCorruptState, len(data), n*PaintedAtBytes)
	}
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(data[i*PaintedAtBytes:]))
	}
	return out, nil
}

// EncodeFade encodes fade windows as little-endian float32 pairs.
func EncodeFade(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// DecodeFade decodes exactly n fade windows.
func DecodeFade(data []byte, n int) ([]float32, error) {
	if len(data) != n*FadeBytes {
		return nil, fmt.Errorf("%w: fade is %d bytes, want %d", ErrCorruptState, len(data), n*FadeBytes)
	}
	out := make([]float32, n*2)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}

// MarshalBinary packs the arrays into one blob: magic, width, height, then the four arrays.
func (a *GridArrays) MarshalBinary() ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	n := a.Width * a.Height
	out := make([]byte, 0, 12+n*(ColorBytes+PaintedAtBytes+FadeBytes+InitialAlphaBytes))
	out = append(out, blobMagic[:]...)
	out = binary.LittleEndian.AppendUint32(out, uint32(a.Width))
	out = binary.LittleEndian.AppendUint32(out, uint32(a.Height))
	out = append(out, a.Colors...)
	out = append(out, EncodePaintedAt(a.PaintedAt)...)
	out = append(out, EncodeFade(a.Fade)...)
	out = append(out, a.InitialAlpha...)
	return out, nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (a *GridArrays) UnmarshalBinary(data []byte) error {
	if len(data) < 12 || [4]byte(data[:4]) != blobMagic {
		return fmt.Errorf("%w: missing grid blob header", ErrCorruptState)
	}
	width := int(binary.LittleEndian.Uint32(data[4:8]))
	height := int(binary.LittleEndian.Uint32(data[8:12]))
	n := width * height
	body := data[12:]
	if width <= 0 || height <= 0 || len(body) != n*(ColorBytes+PaintedAtBytes+FadeBytes+InitialAlphaBytes) {
		return fmt.Errorf("%w: grid blob body is %d bytes for %dx%d", ErrCorruptState, len(body), width, height)
	}

	colors := append([]byte(nil), body[:n*ColorBytes]...)
	body = body[n*ColorBytes:]
	paintedAt, err := DecodePaintedAt(body[:n*PaintedAtBytes], n)
	if err != nil {
		return err
	}
	body = body[n*PaintedAtBytes:]
	fade, err := DecodeFade(body[:n*FadeBytes], n)
	if err != nil {
		return err
	}
	body = body[n*FadeBytes:]

	*a = GridArrays{
		Width:        width,
		Height:       height,
		Colors:       colors,
		PaintedAt:    paintedAt,
		Fade:         fade,
		InitialAlpha: append([]byte(nil), body...),
	}
	return nil
}
