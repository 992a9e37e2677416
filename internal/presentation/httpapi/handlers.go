package httpapi

import (
	"encoding/base64"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/penwyp/go-fade-canvas/internal/application/engine"
	"github.com/penwyp/go-fade-canvas/internal/core/canvas"
	"github.com/penwyp/go-fade-canvas/internal/core/snapshot"
	"github.com/penwyp/go-fade-canvas/internal/data/gallery"
	"github.com/penwyp/go-fade-canvas/internal/metrics"
	"github.com/penwyp/go-fade-canvas/internal/util"
)

const defaultGalleryLimit = 50

var pixelFields = [...]string{"x", "y", "r", "g", "b", "a"}

type canvasResponse struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pixels string `json:"pixels"`
}

type paintResponse struct {
	Changed   int    `json:"changed"`
	Dropped   int    `json:"dropped"`
	Malformed int    `json:"malformed"`
	EventID   string `json:"event_id,omitempty"`
}

type snapshotRequest struct {
	Label           string `json:"label"`
	CompositePNGB64 string `json:"composite_png_b64"`
}

type snapshotResponse struct {
	snapshot.Meta
	AttachError string `json:"attach_error,omitempty"`
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(c, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		BadRequest(c, "failed to read request body")
		return nil, false
	}
	return body, true
}

// decodeObject parses a JSON object body. A nil map with ok means the response was already sent.
func decodeObject(c *gin.Context) (map[string]interface{}, bool) {
	body, ok := readBody(c)
	if !ok {
		return nil, false
	}
	var obj map[string]interface{}
	if err := sonic.Unmarshal(body, &obj); err != nil || obj == nil {
		BadRequest(c, "body must be a JSON object")
		return nil, false
	}
	return obj, true
}

// asInt accepts JSON numbers with no fractional part.
func asInt(v interface{}) (int, bool) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

// parsePixelWrites turns the raw pixels array into writes, counting entries it cannot read.
// Range checks stay with the store.
func parsePixelWrites(raw []interface{}) ([]canvas.PixelWrite, int) {
	writes := make([]canvas.PixelWrite, 0, len(raw))
	malformed := 0
	for _, item := range raw {
		obj, ok := item.(map[string]interface{})
		if !ok {
			malformed++
			continue
		}
		var vals [len(pixelFields)]int
		valid := true
		for i, name := range pixelFields {
			if vals[i], valid = asInt(obj[name]); !valid {
				break
			}
		}
		if !valid {
			malformed++
			continue
		}
		writes = append(writes, canvas.PixelWrite{X: vals[0], Y: vals[1], R: vals[2], G: vals[3], B: vals[4], A: vals[5]})
	}
	return writes, malformed
}

// decodePNG accepts plain base64 or a data URL.
func decodePNG(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(s)
}

func (h *handler) getPaintCanvas(c *gin.Context) {
	grid := h.deps.Canvas.GetFullGrid()
	Success(c, canvasResponse{
		Width:  grid.Width,
		Height: grid.Height,
		Pixels: base64.StdEncoding.EncodeToString(grid.Pixels),
	})
}

func (h *handler) paintPixel(c *gin.Context) {
	obj, ok := decodeObject(c)
	if !ok {
		return
	}
	raw, ok := obj["pixels"].([]interface{})
	if !ok {
		BadRequest(c, "pixels must be an array")
		return
	}
	if len(raw) == 0 {
		BadRequest(c, engine.ErrEmptyBatch.Error())
		return
	}

	writes, malformed := parsePixelWrites(raw)
	if len(writes) == 0 {
		Success(c, paintResponse{Malformed: malformed})
		return
	}
	res, err := h.deps.Canvas.ApplyPaintBatch(c.Request.Context(), writes)
	if err != nil {
		if errors.Is(err, engine.ErrEmptyBatch) {
			BadRequest(c, err.Error())
			return
		}
		_ = c.Error(err)
		InternalError(c, "failed to apply paint batch")
		return
	}
	Success(c, paintResponse{
		Changed:   res.ChangedCount,
		Dropped:   res.DroppedCount,
		Malformed: malformed,
		EventID:   res.EventID,
	})
}

func (h *handler) paintEvents(c *gin.Context) {
	Success(c, h.deps.Canvas.GetEventsSince(c.Query("since")))
}

func (h *handler) activity(c *gin.Context) {
	Success(c, h.deps.Canvas.GetActivity())
}

func (h *handler) snapshot(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	var req snapshotRequest
	if len(body) > 0 {
		if err := sonic.Unmarshal(body, &req); err != nil {
			BadRequest(c, "body must be a JSON object")
			return
		}
	}

	var image []byte
	if req.CompositePNGB64 != "" {
		var err error
		if image, err = decodePNG(req.CompositePNGB64); err != nil {
			BadRequest(c, "composite_png_b64 is not valid base64")
			return
		}
	}

	meta, err := h.deps.Canvas.RequestSnapshot(c.Request.Context(), req.Label)
	if err != nil {
		_ = c.Error(err)
		InternalError(c, "snapshot failed")
		return
	}
	resp := snapshotResponse{Meta: meta}
	if len(image) > 0 {
		// The snapshot exists already; a failed attach is reported, not fatal.
		if attached, err := h.deps.Canvas.AttachSnapshotImage(c.Request.Context(), meta.ID, image); err != nil {
			h.logger.WithContext(c.Request.Context()).Warn("Snapshot image attach failed", util.F("id", meta.ID), util.Err(err))
			resp.AttachError = err.Error()
		} else {
			resp.Meta = attached
		}
	}
	Success(c, resp)
}

func (h *handler) attachPNG(c *gin.Context) {
	obj, ok := decodeObject(c)
	if !ok {
		return
	}
	b64, _ := obj["composite_png_b64"].(string)
	image, err := decodePNG(b64)
	if err != nil {
		BadRequest(c, "composite_png_b64 is not valid base64")
		return
	}

	meta, err := h.deps.Canvas.AttachSnapshotImage(c.Request.Context(), c.Param("id"), image)
	switch {
	case err == nil:
		Success(c, meta)
	case errors.Is(err, snapshot.ErrNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, snapshot.ErrEmptyImage):
		BadRequest(c, err.Error())
	default:
		_ = c.Error(err)
		InternalError(c, "failed to attach image")
	}
}

func (h *handler) listSnapshots(c *gin.Context) {
	list := h.deps.Canvas.ListSnapshots()
	if list == nil {
		list = []snapshot.Meta{}
	}
	Success(c, list)
}

func (h *handler) snapshotPreview(c *gin.Context) {
	data, err := h.deps.Canvas.SnapshotPreview(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			NotFound(c, err.Error())
			return
		}
		_ = c.Error(err)
		InternalError(c, "failed to read preview")
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}

func (h *handler) getState(c *gin.Context) {
	Success(c, h.deps.Companion.State())
}

func (h *handler) setState(c *gin.Context) {
	patch, ok := decodeObject(c)
	if !ok {
		return
	}
	state, err := h.deps.Companion.Merge(patch)
	if err != nil {
		_ = c.Error(err)
		InternalError(c, "failed to save companion state")
		return
	}
	Success(c, state)
}

func (h *handler) listGallery(c *gin.Context) {
	limit := defaultGalleryLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := h.deps.Gallery.List(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		InternalError(c, "failed to list gallery")
		return
	}
	Success(c, entries)
}

func (h *handler) saveGallery(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	entry, err := h.deps.Gallery.Save(c.Request.Context(), c.GetHeader("X-Author"), c.GetHeader("X-Label"), body)
	if err != nil {
		if errors.Is(err, gallery.ErrNotPNG) {
			BadRequest(c, err.Error())
			return
		}
		_ = c.Error(err)
		InternalError(c, "failed to save to gallery")
		return
	}
	metrics.GallerySavesTotal.Inc()
	Success(c, entry)
}

func (h *handler) getGallery(c *gin.Context) {
	_, data, err := h.deps.Gallery.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gallery.ErrNotFound) {
			NotFound(c, err.Error())
			return
		}
		_ = c.Error(err)
		InternalError(c, "failed to read gallery entry")
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}
