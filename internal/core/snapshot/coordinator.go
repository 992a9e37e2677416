// Package snapshot captures the grid plus companion state as immutable, id-keyed units and keeps
// an append-only index of them.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/penwyp/go-fade-canvas/internal/core/canvas"
	"github.com/penwyp/go-fade-canvas/internal/util"
)

// Blob keys inside a snapshot.
const (
	IndexKey      = "index.json"
	GridBlob      = "grid.bin"
	CompanionBlob = "companion.json"
	PreviewBlob   = "preview.png"
)

var (
	ErrNotFound   = errors.New("snapshot not found")
	ErrEmptyImage = errors.New("empty snapshot image")
)

// BlobStore persists opaque byte blobs by key. Put must be atomic per key.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// GridSource yields a consistent copy of the grid.
type GridSource interface {
	Arrays() *canvas.GridArrays
}

// CompanionSource yields the companion state to bundle into a snapshot. Implementations copy under
// their own lock and return encoded bytes.
type CompanionSource interface {
	Snapshot() ([]byte, error)
}

// Meta is one index record. Only HasImage changes after creation.
type Meta struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Label          string    `json:"label"`
	HasImage       bool      `json:"has_image"`
	GridChecksum   string    `json:"grid_checksum"`
	CompanionBytes int       `json:"companion_bytes"`
}

// Coordinator owns the snapshot index.
type Coordinator struct {
	blobs     BlobStore
	grid      GridSource
	companion CompanionSource
	clock     util.Clock
	newID     func() string

	mu    sync.Mutex
	index []Meta
}

// NewCoordinator creates a coordinator. companion may be nil, in which case an empty JSON object
// is bundled.
func NewCoordinator(blobs BlobStore, grid GridSource, companion CompanionSource, clock util.Clock) *Coordinator {
	if clock == nil {
		clock = util.SystemClock()
	}
	return &Coordinator{
		blobs:     blobs,
		grid:      grid,
		companion: companion,
		clock:     clock,
		newID:     uuid.NewString,
	}
}

func blobKey(id, name string) string {
	return id + "/" + name
}

// LoadIndex reads the persisted index. A missing index is an empty one.
func (c *Coordinator) LoadIndex(ctx context.Context) error {
	data, err := c.blobs.Get(ctx, IndexKey)
	if errors.Is(err, os.ErrNotExist) {
		c.mu.Lock()
		c.index = nil
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read snapshot index: %w", err)
	}

	var index []Meta
	if err := sonic.Unmarshal(data, &index); err != nil {
		return fmt.Errorf("failed to decode snapshot index: %w", err)
	}
	c.mu.Lock()
	c.index = index
	c.mu.Unlock()
	return nil
}

// Capture writes the grid and companion blobs under a fresh id and appends the record. On any
// failure written blobs are removed and the index is left untouched.
func (c *Coordinator) Capture(ctx context.Context, label string) (Meta, error) {
	grid, err := c.grid.Arrays().MarshalBinary()
	if err != nil {
		return Meta{}, fmt.Errorf("failed to encode grid: %w", err)
	}
	companion := []byte("{}")
	if c.companion != nil {
		companion, err = c.companion.Snapshot()
		if err != nil {
			return Meta{}, fmt.Errorf("failed to read companion state: %w", err)
		}
	}

	meta := Meta{
		ID:             c.newID(),
		Timestamp:      c.clock.Now(),
		Label:          label,
		GridChecksum:   util.Fingerprint(grid),
		CompanionBytes: len(companion),
	}

	var written []string
	rollback := func() {
		for _, key := range written {
			if err := c.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
				util.LogWarnf("Failed to remove partial snapshot blob %s: %v", key, err)
			}
		}
	}

	for _, blob := range []struct {
		name string
		data []byte
	}{
		{GridBlob, grid},
		{CompanionBlob, companion},
	} {
		key := blobKey(meta.ID, blob.name)
		if err := c.blobs.Put(ctx, key, blob.data); err != nil {
			rollback()
			return Meta{}, fmt.Errorf("failed to write %s: %w", key, err)
		}
		written = append(written, key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	next := append(append(make([]Meta, 0, len(c.index)+1), c.index...), meta)
	if err := c.writeIndex(ctx, next); err != nil {
		rollback()
		return Meta{}, err
	}
	c.index = next
	return meta, nil
}

// writeIndex persists index. Caller holds mu.
func (c *Coordinator) writeIndex(ctx context.Context, index []Meta) error {
	data, err := sonic.ConfigStd.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot index: %w", err)
	}
	if err := c.blobs.Put(ctx, IndexKey, data); err != nil {
		return fmt.Errorf("failed to write snapshot index: %w", err)
	}
	return nil
}

// AttachImage stores a rendered preview for an existing snapshot and flags it in the index. The
// snapshot's raw data is never touched.
func (c *Coordinator) AttachImage(ctx context.Context, id string, png []byte) (Meta, error) {
	if len(png) == 0 {
		return Meta{}, ErrEmptyImage
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	pos := c.find(id)
	if pos < 0 {
		return Meta{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := c.blobs.Put(ctx, blobKey(id, PreviewBlob), png); err != nil {
		return Meta{}, fmt.Errorf("failed to write preview for %s: %w", id, err)
	}
	if c.index[pos].HasImage {
		return c.index[pos], nil
	}

	next := append([]Meta(nil), c.index...)
	next[pos].HasImage = true
	if err := c.writeIndex(ctx, next); err != nil {
		return Meta{}, err
	}
	c.index = next
	return next[pos], nil
}

func (c *Coordinator) find(id string) int {
	for i := len(c.index) - 1; i >= 0; i-- {
		if c.index[i].ID == id {
			return i
		}
	}
	return -1
}

// List returns all records, oldest first.
func (c *Coordinator) List() []Meta {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Meta(nil), c.index...)
}

// Get returns one record.
func (c *Coordinator) Get(id string) (Meta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos := c.find(id)
	if pos < 0 {
		return Meta{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c.index[pos], nil
}

// Load reads back a snapshot's grid and companion blobs.
func (c *Coordinator) Load(ctx context.Context, id string) (Meta, *canvas.GridArrays, []byte, error) {
	meta, err := c.Get(id)
	if err != nil {
		return Meta{}, nil, nil, err
	}
	data, err := c.blobs.Get(ctx, blobKey(id, GridBlob))
	if err != nil {
		return Meta{}, nil, nil, fmt.Errorf("failed to read grid for %s: %w", id, err)
	}
	if util.Fingerprint(data) != meta.GridChecksum {
		return Meta{}, nil, nil, fmt.Errorf("%w: snapshot %s checksum mismatch", canvas.ErrCorruptState, id)
	}
	grid := &canvas.GridArrays{}
	if err := grid.UnmarshalBinary(data); err != nil {
		return Meta{}, nil, nil, err
	}
	companion, err := c.blobs.Get(ctx, blobKey(id, CompanionBlob))
	if err != nil {
		return Meta{}, nil, nil, fmt.Errorf("failed to read companion state for %s: %w", id, err)
	}
	return meta, grid, companion, nil
}

// Preview returns the attached image.
func (c *Coordinator) Preview(ctx context.Context, id string) ([]byte, error) {
	meta, err := c.Get(id)
	if err != nil {
		return nil, err
	}
	if !meta.HasImage {
		return nil, fmt.Errorf("%w: %s has no preview", ErrNotFound, id)
	}
	return c.blobs.Get(ctx, blobKey(id, PreviewBlob))
}
