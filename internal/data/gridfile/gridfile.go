// Package gridfile persists the grid as four fixed-width little-endian arrays, one file each, every
// file replaced atomically.
package gridfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/penwyp/go-fade-canvas/internal/core/canvas"
	"github.com/penwyp/go-fade-canvas/internal/util"
)

const (
	ColorsFile       = "colors.bin"
	PaintedAtFile    = "painted_at.bin"
	FadeFile         = "fade.bin"
	InitialAlphaFile = "initial_alpha.bin"
)

// Dir reads and writes the grid arrays in one directory. Saves are serialized and versioned: a
// copy older than the last one written is skipped.
type Dir struct {
	path string

	mu       sync.Mutex
	written  uint64
	hasSaved bool
}

// Open creates the directory if needed.
func Open(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create grid directory %s: %w", path, err)
	}
	return &Dir{path: path}, nil
}

// Path returns the directory.
func (d *Dir) Path() string { return d.path }

// Save writes all four arrays. It reports false when a is older than what is already on disk.
func (d *Dir) Save(a *canvas.GridArrays) (bool, error) {
	if err := a.Validate(); err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hasSaved && a.Version <= d.written {
		return false, nil
	}

	files := []struct {
		name string
		data []byte
	}{
		{ColorsFile, a.Colors},
		{PaintedAtFile, canvas.EncodePaintedAt(a.PaintedAt)},
		{FadeFile, canvas.EncodeFade(a.Fade)},
		{InitialAlphaFile, a.InitialAlpha},
	}
	for _, f := range files {
		if err := util.WriteFileAtomic(filepath.Join(d.path, f.name), f.data, 0644); err != nil {
			return false, fmt.Errorf("failed to persist %s: %w", f.name, err)
		}
	}
	d.written = a.Version
	d.hasSaved = true
	return true, nil
}

// Load reads the arrays for a width x height grid. When no file exists the error wraps
// os.ErrNotExist; a partial set or a size mismatch wraps canvas.ErrCorruptState.
func (d *Dir) Load(width, height int) (*canvas.GridArrays, error) {
	n := width * height
	raw := map[string][]byte{}
	missing := 0
	for _, name := range []string{ColorsFile, PaintedAtFile, FadeFile, InitialAlphaFile} {
		data, err := os.ReadFile(filepath.Join(d.path, name))
		if errors.Is(err, os.ErrNotExist) {
			missing++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		raw[name] = data
	}
	switch missing {
	case 0:
	case 4:
		return nil, fmt.Errorf("no persisted grid in %s: %w", d.path, os.ErrNotExist)
	default:
		return nil, fmt.Errorf("%w: %d of 4 grid files missing in %s", canvas.ErrCorruptState, missing, d.path)
	}

	a := &canvas.GridArrays{
		Width:        width,
		Height:       height,
		Colors:       raw[ColorsFile],
		InitialAlpha: raw[InitialAlphaFile],
	}
	var err error
	if a.PaintedAt, err = canvas.DecodePaintedAt(raw[PaintedAtFile], n); err != nil {
		return nil, err
	}
	if a.Fade, err = canvas.DecodeFade(raw[FadeFile], n); err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}
