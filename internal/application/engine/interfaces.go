package engine

import (
	"context"

	"github.com/penwyp/go-fade-canvas/internal/core/canvas"
	"github.com/penwyp/go-fade-canvas/internal/core/snapshot"
)

// GridPersister writes a grid copy to durable storage
type GridPersister interface {
	// Save writes a, reporting false when a is older than what is already stored
	Save(a *canvas.GridArrays) (bool, error)
}

// SnapshotCapturer captures full-canvas snapshots
type SnapshotCapturer interface {
	// Capture stores the current grid and companion state under a new id
	Capture(ctx context.Context, label string) (snapshot.Meta, error)
}
