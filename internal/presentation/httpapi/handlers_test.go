package httpapi

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/penwyp/go-fade-canvas/internal/application/engine"
	"github.com/penwyp/go-fade-canvas/internal/data/companion"
	"github.com/penwyp/go-fade-canvas/internal/data/gallery"
	"github.com/penwyp/go-fade-canvas/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type constSource struct{}

func (constSource) Float64() float64 { return 0.5 }

var fakePNG = append([]byte("\x89PNG\r\n\x1a\n"), 0, 0, 0, 13, 'I', 'H', 'D', 'R')

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router *gin.Engine
	engine *engine.Engine
	clock  *util.ManualClock
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	clock := util.NewManualClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))

	watcher, err := companion.NewWatcher(filepath.Join(dir, "babyState.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = watcher.Close() })

	cfg := engine.DefaultConfig()
	cfg.DataDir = dir
	cfg.Timezone = "UTC"
	eng, err := engine.New(cfg, engine.Options{Clock: clock, Companion: watcher, Source: constSource{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	store, err := gallery.Open(filepath.Join(dir, "gallery.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return &testServer{
		router: NewRouter(Deps{Canvas: eng, Companion: watcher, Gallery: store, Metrics: true}),
		engine: eng,
		clock:  clock,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) postJSON(t *testing.T, path string, v interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := sonic.Marshal(v)
	require.NoError(t, err)
	return s.do(t, http.MethodPost, path, body, map[string]string{"Content-Type": "application/json"})
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if out != nil {
		require.NoError(t, sonic.Unmarshal(env.Data, out))
	}
	return env
}

func pixel(x, y, r, g, b, a int) map[string]int {
	return map[string]int{"x": x, "y": y, "r": r, "g": g, "b": b, "a": a}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = s.do(t, http.MethodGet, "/health", nil, map[string]string{RequestIDHeader: "req-1"})
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))
}

func TestPaintThenReadCanvas(t *testing.T) {
	s := newTestServer(t)

	w := s.postJSON(t, "/api/paint_pixel", map[string]interface{}{
		"pixels": []interface{}{
			pixel(0, 0, 255, 0, 0, 255),
			pixel(99, 0, 1, 1, 1, 255),
			map[string]interface{}{"x": 1, "y": 0, "r": "red"},
			"junk",
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var paint paintResponse
	env := decodeData(t, w, &paint)
	assert.Equal(t, 0, env.Code)
	assert.Equal(t, 1, paint.Changed)
	assert.Equal(t, 1, paint.Dropped)
	assert.Equal(t, 2, paint.Malformed)
	assert.NotEmpty(t, paint.EventID)

	w = s.do(t, http.MethodGet, "/api/get_paint_canvas", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var grid canvasResponse
	decodeData(t, w, &grid)
	assert.Equal(t, 64, grid.Width)
	assert.Equal(t, 64, grid.Height)
	raw, err := base64.StdEncoding.DecodeString(grid.Pixels)
	require.NoError(t, err)
	require.Len(t, raw, 64*64*4)
	assert.Equal(t, []byte{255, 0, 0, 255}, raw[:4])
}

func TestPaintRejectsBadBodies(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "pixels please"},
		{name: "array body", body: `[{"x":0}]`},
		{name: "missing pixels", body: `{"pixel":[]}`},
		{name: "pixels not array", body: `{"pixels":{"x":0}}`},
		{name: "empty batch", body: `{"pixels":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/paint_pixel", []byte(tt.body), nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			env := decodeData(t, w, nil)
			assert.Equal(t, http.StatusBadRequest, env.Code)
		})
	}
}

func TestPaintAllMalformedIsNotAnError(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/paint_pixel", []byte(`{"pixels":[{"x":1.5,"y":0,"r":0,"g":0,"b":0,"a":0}]}`), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var paint paintResponse
	decodeData(t, w, &paint)
	assert.Zero(t, paint.Changed)
	assert.Equal(t, 1, paint.Malformed)
	assert.Empty(t, paint.EventID)
}

func TestPaintEventsPolling(t *testing.T) {
	s := newTestServer(t)
	paint := func(x int) {
		w := s.postJSON(t, "/api/paint_pixel", map[string]interface{}{"pixels": []interface{}{pixel(x, 2, 9, 9, 9, 255)}})
		require.Equal(t, http.StatusOK, w.Code)
	}
	poll := func(cursor string) []map[string]interface{} {
		w := s.do(t, http.MethodGet, "/api/paint_events?since="+cursor, nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var evs []map[string]interface{}
		decodeData(t, w, &evs)
		return evs
	}

	evs := poll("")
	require.Len(t, evs, 1)
	assert.Equal(t, true, evs[0]["resync"])
	assert.Equal(t, "", evs[0]["id"])

	paint(1)
	evs = poll("")
	require.Len(t, evs, 1)
	assert.Equal(t, true, evs[0]["resync"], "no cursor still means resync")
	cursor, _ := evs[0]["id"].(string)
	require.NotEmpty(t, cursor)

	paint(2)
	evs = poll(cursor)
	require.Len(t, evs, 1)
	assert.Nil(t, evs[0]["resync"])
	pixels, _ := evs[0]["pixels"].([]interface{})
	require.Len(t, pixels, 1)
	next, _ := evs[0]["id"].(string)

	assert.Empty(t, poll(next))
}

func TestActivityEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/activity", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var a engine.Activity
	decodeData(t, w, &a)
	assert.Nil(t, a.IdleSeconds)
	assert.Equal(t, 30.0, a.WindowSeconds)

	s.postJSON(t, "/api/paint_pixel", map[string]interface{}{"pixels": []interface{}{pixel(2, 2, 9, 9, 9, 255)}})
	s.clock.Advance(5 * time.Second)

	w = s.do(t, http.MethodGet, "/api/activity", nil, nil)
	a = engine.Activity{}
	decodeData(t, w, &a)
	assert.Equal(t, 1, a.PixelsInWindow)
	require.NotNil(t, a.IdleSeconds)
	assert.InDelta(t, 5.0, *a.IdleSeconds, 0.001)
	assert.False(t, a.BurstActive)
}

func TestSnapshotWithInlineImage(t *testing.T) {
	s := newTestServer(t)
	s.postJSON(t, "/api/paint_pixel", map[string]interface{}{"pixels": []interface{}{pixel(0, 0, 1, 2, 3, 255)}})

	w := s.postJSON(t, "/api/snapshot", snapshotRequest{
		Label:           "sunset",
		CompositePNGB64: "data:image/png;base64," + base64.StdEncoding.EncodeToString(fakePNG),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var snap snapshotResponse
	decodeData(t, w, &snap)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "sunset", snap.Label)
	assert.True(t, snap.HasImage)
	assert.Empty(t, snap.AttachError)

	w = s.do(t, http.MethodGet, "/api/snapshots/"+snap.ID+"/preview", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, fakePNG, w.Body.Bytes())

	w = s.do(t, http.MethodGet, "/api/snapshots", nil, nil)
	var list []map[string]interface{}
	decodeData(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, snap.ID, list[0]["id"])
}

func TestSnapshotThenAttach(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/snapshot", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap snapshotResponse
	decodeData(t, w, &snap)
	assert.Equal(t, engine.DefaultSnapshotLabel, snap.Label)
	assert.False(t, snap.HasImage)

	w = s.do(t, http.MethodGet, "/api/snapshots/"+snap.ID+"/preview", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	tests := []struct {
		name   string
		id     string
		body   interface{}
		status int
	}{
		{name: "unknown id", id: "nope", body: map[string]string{"composite_png_b64": base64.StdEncoding.EncodeToString(fakePNG)}, status: http.StatusNotFound},
		{name: "empty image", id: snap.ID, body: map[string]string{"composite_png_b64": ""}, status: http.StatusBadRequest},
		{name: "bad base64", id: snap.ID, body: map[string]string{"composite_png_b64": "%%%"}, status: http.StatusBadRequest},
		{name: "attached", id: snap.ID, body: map[string]string{"composite_png_b64": base64.StdEncoding.EncodeToString(fakePNG)}, status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.postJSON(t, "/api/snapshot_attach_png/"+tt.id, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
	assert.True(t, s.engine.ListSnapshots()[0].HasImage)
}

func TestCompanionState(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/state", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var state map[string]interface{}
	decodeData(t, w, &state)
	assert.EqualValues(t, 133, state["R"])
	assert.Equal(t, false, state["isSpeaking"])

	w = s.postJSON(t, "/api/set", map[string]interface{}{"isSpeaking": true, "speechText": "hi"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/state", nil, nil)
	state = nil
	decodeData(t, w, &state)
	assert.Equal(t, true, state["isSpeaking"])
	assert.Equal(t, "hi", state["speechText"])
	assert.EqualValues(t, 5, state["eyes"], "merged, not replaced")

	w = s.do(t, http.MethodPost, "/api/set", []byte(`"nope"`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGalleryRoundTrip(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/gallery/save", fakePNG, map[string]string{
		"Content-Type": "image/png",
		"x-author":     "ada",
		"x-label":      "first light",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var entry gallery.Entry
	decodeData(t, w, &entry)
	assert.Equal(t, "ada", entry.Author)
	assert.Equal(t, "first light", entry.Label)

	w = s.do(t, http.MethodPost, "/api/gallery/save", []byte("GIF89a"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/gallery", nil, nil)
	var entries []gallery.Entry
	decodeData(t, w, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)

	w = s.do(t, http.MethodGet, "/api/gallery?limit=zero", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/gallery/"+entry.ID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, fakePNG, w.Body.Bytes())

	w = s.do(t, http.MethodGet, "/api/gallery/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodOptions, "/api/paint_pixel", nil, map[string]string{"Origin": "http://localhost:5173"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Author")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.postJSON(t, "/api/paint_pixel", map[string]interface{}{"pixels": []interface{}{pixel(0, 0, 1, 1, 1, 255)}})

	w := s.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "fade_canvas_pixels_painted_total")
}

func TestOptionalRoutesAbsent(t *testing.T) {
	r := NewRouter(Deps{Canvas: newTestServer(t).engine})
	for _, path := range []string{"/api/state", "/api/gallery", "/metrics"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestParsePixelWrites(t *testing.T) {
	raw := []interface{}{
		map[string]interface{}{"x": 1.0, "y": 2.0, "r": 3.0, "g": 4.0, "b": 5.0, "a": 6.0},
		map[string]interface{}{"x": 1.0, "y": 2.0, "r": 3.0, "g": 4.0, "b": 5.0},
		map[string]interface{}{"x": 1e12, "y": 2.0, "r": 3.0, "g": 4.0, "b": 5.0, "a": 6.0},
		map[string]interface{}{"x": -1.0, "y": 2.0, "r": 3.0, "g": 4.0, "b": 5.0, "a": 6.0},
		nil,
	}
	writes, malformed := parsePixelWrites(raw)
	assert.Equal(t, 3, malformed)
	require.Len(t, writes, 2)
	assert.Equal(t, 6, writes[0].A)
	assert.Equal(t, -1, writes[1].X, "range checks belong to the store")
}
