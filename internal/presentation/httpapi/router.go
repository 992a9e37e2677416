// Package httpapi binds the canvas engine to HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/penwyp/go-fade-canvas/internal/application/engine"
	"github.com/penwyp/go-fade-canvas/internal/core/canvas"
	"github.com/penwyp/go-fade-canvas/internal/core/events"
	"github.com/penwyp/go-fade-canvas/internal/core/snapshot"
	"github.com/penwyp/go-fade-canvas/internal/data/gallery"
	"github.com/penwyp/go-fade-canvas/internal/util"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Body limits
const (
	maxJSONBody  = 4 << 20
	maxImageBody = 16 << 20
)

// Canvas is the engine surface the API drives
type Canvas interface {
	ApplyPaintBatch(ctx context.Context, writes []canvas.PixelWrite) (engine.BatchResult, error)
	GetFullGrid() engine.Grid
	GetEventsSince(cursor string) []events.Event
	GetActivity() engine.Activity
	RequestSnapshot(ctx context.Context, label string) (snapshot.Meta, error)
	AttachSnapshotImage(ctx context.Context, id string, png []byte) (snapshot.Meta, error)
	ListSnapshots() []snapshot.Meta
	SnapshotPreview(ctx context.Context, id string) ([]byte, error)
}

// Companion serves and updates the avatar state
type Companion interface {
	State() map[string]interface{}
	Merge(patch map[string]interface{}) (map[string]interface{}, error)
}

// Gallery stores saved compositions
type Gallery interface {
	Save(ctx context.Context, author, label string, png []byte) (gallery.Entry, error)
	List(ctx context.Context, limit int) ([]gallery.Entry, error)
	Get(ctx context.Context, id string) (gallery.Entry, []byte, error)
}

// Deps are the collaborators behind the routes. Companion and Gallery are optional; their routes
// are only registered when set.
type Deps struct {
	Canvas    Canvas
	Companion Companion
	Gallery   Gallery
	Metrics   bool
}

type handler struct {
	deps   Deps
	logger util.LoggerInterface
}

// NewRouter builds the gin engine with every route.
func NewRouter(deps Deps) *gin.Engine {
	h := &handler{deps: deps, logger: util.Component("http")}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.logger), CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")
	{
		api.GET("/get_paint_canvas", h.getPaintCanvas)
		api.POST("/paint_pixel", LimitBody(maxJSONBody), h.paintPixel)
		api.GET("/paint_events", h.paintEvents)
		api.GET("/activity", h.activity)

		api.POST("/snapshot", LimitBody(maxImageBody), h.snapshot)
		api.POST("/snapshot_attach_png/:id", LimitBody(maxImageBody), h.attachPNG)
		api.GET("/snapshots", h.listSnapshots)
		api.GET("/snapshots/:id/preview", h.snapshotPreview)

		if deps.Companion != nil {
			api.GET("/state", h.getState)
			api.POST("/set", LimitBody(maxJSONBody), h.setState)
		}
		if deps.Gallery != nil {
			api.GET("/gallery", h.listGallery)
			api.POST("/gallery/save", LimitBody(maxImageBody), h.saveGallery)
			api.GET("/gallery/:id", h.getGallery)
		}
	}
	return r
}

// Serve runs handler on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		util.LogInfof("HTTP API listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown failed: %w", err)
		}
		util.LogInfo("HTTP API stopped")
		return nil
	}
}
